package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/detection"
	"github.com/shortontech/botgate/internal/render"
	"github.com/shortontech/botgate/pkg/config"
)

// classifyOptions holds options for the classify command.
type classifyOptions struct {
	userAgent    string
	phantom      bool
	webdriver    bool
	globals      []string
	noDOM        bool
	noCookies    bool
	noStorage    bool
	plugins      int
	patternsFile string
}

// result is what classify and probe print.
type result struct {
	Signature classify.Signature     `json:"signature"`
	Decision  classify.Decision      `json:"decision"`
	Branch    render.Branch          `json:"branch"`
	Report    *detection.ProbeReport `json:"report,omitempty"`
}

func (a *App) newClassifyCmd() *cobra.Command {
	opts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a hand-built signature",
		Long: `Classify a signature assembled from flags and print the decision as JSON.

Browser globals are inferred from the user agent unless --globals is given.

Examples:
  # A crawler
  botgate classify --ua "Googlebot/2.1"

  # Firefox driven by WebDriver
  botgate classify --ua "Mozilla/5.0 Firefox/126.0" --webdriver --globals firefox`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.classify(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.userAgent, "ua", "", "User agent string")
	cmd.Flags().BoolVar(&opts.phantom, "phantom", false, "Report headless automation markers")
	cmd.Flags().BoolVar(&opts.webdriver, "webdriver", false, "Report navigator.webdriver")
	cmd.Flags().StringSliceVar(&opts.globals, "globals", nil, "Browser globals present (chrome, safari, firefox, opera)")
	cmd.Flags().BoolVar(&opts.noDOM, "no-dom", false, "Report missing DOM APIs")
	cmd.Flags().BoolVar(&opts.noCookies, "no-cookies", false, "Report cookies disabled")
	cmd.Flags().BoolVar(&opts.noStorage, "no-storage", false, "Report localStorage not writable")
	cmd.Flags().IntVar(&opts.plugins, "plugins", 0, "Plugin count")
	cmd.Flags().StringVar(&opts.patternsFile, "patterns-file", "", "Bot patterns file (overrides BOT_PATTERNS_FILE)")

	return cmd
}

func (a *App) classify(cmd *cobra.Command, opts *classifyOptions) error {
	cfg := config.Load()
	if opts.patternsFile != "" {
		cfg.BotPatternsFile = opts.patternsFile
	}
	if err := cfg.Resolve(); err != nil {
		return err
	}

	s := detection.HeaderSignature(opts.userAgent)
	if cmd.Flags().Changed("globals") {
		g, err := parseGlobals(opts.globals)
		if err != nil {
			return err
		}
		s.Globals = g
	}
	s.PhantomMarkers = opts.phantom
	s.Webdriver = opts.webdriver
	s.DOMAPIs = !opts.noDOM
	s.CookiesEnabled = !opts.noCookies
	s.LocalStorageWritable = !opts.noStorage
	if opts.plugins > 0 {
		s.PluginCount = opts.plugins
	}

	c := classify.New(classify.Config{BotPatterns: cfg.BotPatterns})
	return writeResult(a.stdout, c, s, nil)
}

func parseGlobals(names []string) (classify.BrowserGlobals, error) {
	var g classify.BrowserGlobals
	for _, name := range names {
		switch name {
		case "chrome":
			g.Chrome = true
		case "safari":
			g.Safari = true
		case "firefox":
			g.Firefox = true
		case "opera":
			g.Opera = true
		case "", "none":
		default:
			return g, fmt.Errorf("unknown browser global %q", name)
		}
	}
	return g, nil
}

func writeResult(w io.Writer, c *classify.Classifier, s classify.Signature, report *detection.ProbeReport) error {
	d := c.Decide(s)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result{
		Signature: s,
		Decision:  d,
		Branch:    render.Select(d.Bot),
		Report:    report,
	})
}
