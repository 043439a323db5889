package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/probe"
	"github.com/shortontech/botgate/pkg/config"
)

// probeOptions holds options for the probe command.
type probeOptions struct {
	url       string
	bin       string
	userAgent string
	headless  bool
	timeout   time.Duration
}

func (a *App) newProbeCmd() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Classify a real browser",
		Long: `Launch Chrome, run the same collector /probe.js uses and print the report
together with the decision.

Examples:
  # What does headless Chrome look like?
  botgate probe

  # Load a page first, with a visible browser
  botgate probe --url https://site.example/ --headless=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.probe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "about:blank", "Page to load before collecting")
	cmd.Flags().StringVar(&opts.bin, "bin", "", "Browser binary (downloaded when empty)")
	cmd.Flags().StringVar(&opts.userAgent, "ua", "", "Override the browser user agent")
	cmd.Flags().BoolVar(&opts.headless, "headless", true, "Run the browser headless")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall probe timeout")

	return cmd
}

func (a *App) probe(cmd *cobra.Command, opts *probeOptions) error {
	cfg := config.Load()
	if err := cfg.Resolve(); err != nil {
		return err
	}
	log := commandLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	p := probe.New(probe.Options{
		URL:       opts.url,
		Bin:       opts.bin,
		Headless:  opts.headless,
		UserAgent: opts.userAgent,
		Timeout:   opts.timeout,
	}, log)

	s, report, err := p.Signature(cmd.Context())
	if err != nil {
		return err
	}
	c := classify.New(classify.Config{BotPatterns: cfg.BotPatterns})
	return writeResult(a.stdout, c, s, &report)
}
