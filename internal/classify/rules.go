package classify

import "strings"

// Verdict is the outcome of a single rule.
type Verdict int

const (
	// Abstain lets evaluation continue with the next rule.
	Abstain Verdict = iota
	Bot
	Human
)

func (v Verdict) String() string {
	switch v {
	case Bot:
		return "bot"
	case Human:
		return "human"
	}
	return "abstain"
}

// Rule is one named predicate in the classification chain.
type Rule interface {
	Name() string
	Evaluate(s Signature) Verdict
}

// Rule names, also used as metric and event labels.
const (
	RuleBotPattern         = "bot-pattern"
	RuleHeadlessMarker     = "headless-marker"
	RuleWebdriverClaim     = "webdriver-claim"
	RuleMissingBrowserAPIs = "missing-browser-apis"
	RuleMissingStorage     = "missing-storage"
	RulePluginOverride     = "plugin-override"
	RuleDefault            = "default"
)

// PatternRule matches the user agent against an ordered list of substrings.
type PatternRule struct {
	patterns []string
}

// NewPatternRule lowercases and copies patterns; empty entries are dropped.
func NewPatternRule(patterns []string) *PatternRule {
	p := make([]string, 0, len(patterns))
	for _, pat := range patterns {
		if pat = strings.ToLower(strings.TrimSpace(pat)); pat != "" {
			p = append(p, pat)
		}
	}
	return &PatternRule{patterns: p}
}

func (r *PatternRule) Name() string { return RuleBotPattern }

func (r *PatternRule) Evaluate(s Signature) Verdict {
	if _, ok := r.Match(s.UserAgent); ok {
		return Bot
	}
	return Abstain
}

// Match returns the first pattern contained in userAgent.
// A googlebot match is trusted as-is; the claimed identity is not verified.
func (r *PatternRule) Match(userAgent string) (string, bool) {
	ua := strings.ToLower(userAgent)
	for _, p := range r.patterns {
		if strings.Contains(ua, p) {
			return p, true
		}
	}
	return "", false
}

// Patterns returns a copy of the normalised pattern list.
func (r *PatternRule) Patterns() []string {
	out := make([]string, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(Signature) Verdict
}

func (f RuleFunc) Name() string                 { return f.RuleName }
func (f RuleFunc) Evaluate(s Signature) Verdict { return f.Fn(s) }

// HeadlessMarkerRule flags known automation-framework globals.
var HeadlessMarkerRule Rule = RuleFunc{RuleHeadlessMarker, func(s Signature) Verdict {
	if s.PhantomMarkers {
		return Bot
	}
	return Abstain
}}

// WebdriverClaimRule flags an explicit automation claim unless a chrome or
// safari global is present.
var WebdriverClaimRule Rule = RuleFunc{RuleWebdriverClaim, func(s Signature) Verdict {
	if s.Webdriver && !s.Globals.Chrome && !s.Globals.Safari {
		return Bot
	}
	return Abstain
}}

// MissingBrowserAPIsRule fires only when both the browser indicators and the
// baseline DOM APIs are missing.
var MissingBrowserAPIsRule Rule = RuleFunc{RuleMissingBrowserAPIs, func(s Signature) Verdict {
	if !s.HasKnownBrowserGlobal() && !s.DOMAPIs {
		return Bot
	}
	return Abstain
}}

// MissingStorageRule flags disabled cookies or a failed storage probe.
var MissingStorageRule Rule = RuleFunc{RuleMissingStorage, func(s Signature) Verdict {
	if !s.CookiesEnabled || !s.LocalStorageWritable {
		return Bot
	}
	return Abstain
}}

// PluginOverrideRule treats a zero-plugin Chrome as human. Modern headless
// Chrome variants reach this rule looking otherwise legitimate and are let
// through on purpose.
var PluginOverrideRule Rule = RuleFunc{RulePluginOverride, func(s Signature) Verdict {
	if s.PluginCount == 0 && strings.Contains(s.UserAgent, "chrome") {
		return Human
	}
	return Abstain
}}
