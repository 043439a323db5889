// Package classify decides whether a visitor is an automated agent.
//
// The decision is an ordered chain of named rules. Each rule either abstains
// or returns a verdict; the first verdict wins and anything that reaches the
// end of the chain is treated as human.
package classify

// DefaultBotPatterns is the built-in pattern list, in match order.
var DefaultBotPatterns = []string{
	"googlebot",
	"google-extended",
	"bingbot",
	"slurp",
	"duckduckbot",
	"baiduspider",
	"yandexbot",
	"sogou",
	"exabot",
	"facebot",
	"ia_archiver",
	"facebookexternalhit",
	"twitterbot",
	"rogerbot",
	"linkedinbot",
	"embedly",
	"quora link preview",
	"showyoubot",
	"outbrain",
	"pinterest",
	"slackbot",
	"vkShare",
	"W3C_Validator",
	"whatsapp",
	"flipboard",
	"tumblr",
	"bitlybot",
	"skypeuripreview",
	"nuzzel",
	"redditbot",
	"applebot",
	"google-structured-data-testing-tool",
	"google page speed",
	"pingdom.com_bot",
	"semrushbot",
	"ahrefsbot",
	"mj12bot",
	"dotbot",
	"megaindex",
	"blexbot",
	"petalbot",
	"headless",
	"phantomjs",
	"selenium",
	"webdriver",
	"crawler",
	"spider",
	"bot",
}

// Config is the injected classifier configuration.
type Config struct {
	BotPatterns []string
}

// Decision is a verdict together with the rule that produced it.
type Decision struct {
	Bot     bool   `json:"bot"`
	Rule    string `json:"rule"`
	Pattern string `json:"pattern,omitempty"`
}

// Classifier evaluates a fixed rule chain. It is immutable after New and safe
// for concurrent use.
type Classifier struct {
	patterns *PatternRule
	rules    []Rule
}

// Option customises a Classifier.
type Option func(*Classifier)

// WithRules replaces the rules evaluated after the pattern rule.
func WithRules(rules ...Rule) Option {
	return func(c *Classifier) {
		c.rules = append([]Rule{c.patterns}, rules...)
	}
}

// New builds a classifier. A nil pattern list falls back to DefaultBotPatterns.
func New(cfg Config, opts ...Option) *Classifier {
	patterns := cfg.BotPatterns
	if patterns == nil {
		patterns = DefaultBotPatterns
	}
	c := &Classifier{patterns: NewPatternRule(patterns)}
	c.rules = []Rule{
		c.patterns,
		HeadlessMarkerRule,
		WebdriverClaimRule,
		MissingBrowserAPIsRule,
		MissingStorageRule,
		PluginOverrideRule,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decide runs the chain and reports which rule decided.
func (c *Classifier) Decide(s Signature) Decision {
	for _, r := range c.rules {
		switch r.Evaluate(s) {
		case Bot:
			d := Decision{Bot: true, Rule: r.Name()}
			if r.Name() == RuleBotPattern {
				d.Pattern, _ = c.patterns.Match(s.UserAgent)
			}
			return d
		case Human:
			return Decision{Bot: false, Rule: r.Name()}
		}
	}
	return Decision{Bot: false, Rule: RuleDefault}
}

// Classify reports whether s looks like an automated agent.
func (c *Classifier) Classify(s Signature) bool {
	return c.Decide(s).Bot
}

// IsRealUser is the negation of Classify.
func (c *Classifier) IsRealUser(s Signature) bool {
	return !c.Classify(s)
}

// Rules returns the rule names in evaluation order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name()
	}
	return names
}

// Patterns returns the normalised bot patterns.
func (c *Classifier) Patterns() []string { return c.patterns.Patterns() }
