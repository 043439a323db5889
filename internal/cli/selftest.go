package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/detection"
	"github.com/shortontech/botgate/internal/event"
	"github.com/shortontech/botgate/internal/metrics"
	"github.com/shortontech/botgate/internal/sink"
)

const (
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	firefoxUA   = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// scenario is one known signature and the verdict it must produce.
type scenario struct {
	Name      string
	Signature classify.Signature
	WantBot   bool
	WantRule  string
}

// desktop is a well-behaved Chrome-family browser.
func desktop(ua string) classify.Signature {
	s := classify.NewSignature(ua)
	s.Globals = classify.BrowserGlobals{Chrome: true}
	s.PluginCount = 5
	return s
}

func selftestScenarios() []scenario {
	pluginless := desktop(chromeUA)
	pluginless.PluginCount = 0

	driven := classify.NewSignature(firefoxUA)
	driven.Webdriver = true

	cookieless := desktop(chromeUA)
	cookieless.CookiesEnabled = false

	return []scenario{
		{"crawler user agent", desktop(googlebotUA), true, classify.RuleBotPattern},
		{"desktop chrome", desktop(chromeUA), false, classify.RuleDefault},
		{"chrome without plugins", pluginless, false, classify.RulePluginOverride},
		{"webdriver without chrome or safari", driven, true, classify.RuleWebdriverClaim},
		{"cookies disabled", cookieless, true, classify.RuleMissingStorage},
	}
}

// selftestOptions holds options for the selftest command.
type selftestOptions struct {
	emit  bool
	delay time.Duration
}

func (a *App) newSelftestCmd() *cobra.Command {
	opts := &selftestOptions{}

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run known signatures through the classifier",
		Long: `Classify a fixed set of signatures with the configured patterns, print a
table of verdicts and, with --emit, send one classification event per
scenario through the configured OUTPUTS.

Exits non-zero if any verdict differs from the expected one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.selftest(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.emit, "emit", false, "Send scenario events through the configured sinks")
	cmd.Flags().DurationVar(&opts.delay, "delay", 0, "Pause between emitted events")

	return cmd
}

func (a *App) selftest(cmd *cobra.Command, opts *selftestOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := commandLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	emit := func(event.Event) {}
	if opts.emit {
		sinks, err := sink.FromNames(cfg.Outputs, log)
		if err != nil {
			return err
		}
		fanout := sink.NewFanout(sinks, metrics.NewMetrics(), log)
		if err := fanout.Start(cmd.Context()); err != nil {
			return fmt.Errorf("start sinks: %w", err)
		}
		defer func() {
			if err := fanout.Close(); err != nil {
				log.Warnw("sink close", "error", err)
			}
		}()
		emit = fanout.Emit
	}

	c := classify.New(classify.Config{BotPatterns: cfg.BotPatterns})
	failed := runSelftest(a.stdout, c, selftestScenarios(), emit, opts.delay)
	if failed > 0 {
		return fmt.Errorf("selftest: %d scenario(s) failed", failed)
	}
	return nil
}

// runSelftest classifies each scenario, prints a row per scenario and
// returns the number of mismatches.
func runSelftest(w io.Writer, c *classify.Classifier, scenarios []scenario, emit func(event.Event), delay time.Duration) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tVERDICT\tRULE\tRESULT")

	failed := 0
	for i, sc := range scenarios {
		d := c.Decide(sc.Signature)
		status := "ok"
		if d.Bot != sc.WantBot || d.Rule != sc.WantRule {
			status = fmt.Sprintf("FAIL (want bot=%t rule=%s)", sc.WantBot, sc.WantRule)
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sc.Name, verdict(d.Bot), d.Rule, status)

		emit(scenarioEvent(i, sc, d))
		if delay > 0 && i < len(scenarios)-1 {
			time.Sleep(delay)
		}
	}
	_ = tw.Flush()
	return failed
}

func scenarioEvent(i int, sc scenario, d classify.Decision) event.Event {
	info := detection.AnalyzeUserAgent(sc.Signature.UserAgent)
	return event.Event{
		EventID: uuid.NewString(),
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Type:    event.TypeClassification,
		Source:  event.SourceProbe,
		Verdict: d,
		Path:    "/selftest",
		Device: event.DeviceInfo{
			UA:       sc.Signature.UserAgent,
			Browser:  info.Browser,
			Platform: info.Platform,
		},
		Session: event.SessionInfo{VisitorID: fmt.Sprintf("selftest-%d", i+1)},
	}
}

func verdict(bot bool) string {
	if bot {
		return "bot"
	}
	return "human"
}
