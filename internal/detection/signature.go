// Package detection turns what the server can observe into classifier
// signatures.
package detection

import (
	"net/http"

	"github.com/shortontech/botgate/internal/classify"
)

// headlessMarkers are the automation-framework globals the probe looks for.
var headlessMarkers = map[string]bool{
	"phantom":     true,
	"__nightmare": true,
	"callPhantom": true,
	"_phantom":    true,
}

// FromRequest builds a header signature. Only the user agent is observable;
// browser globals are inferred from the browser family and every other trait
// takes the value a compliant browser reports, so only user-agent rules fire.
func FromRequest(r *http.Request) classify.Signature {
	return HeaderSignature(r.UserAgent())
}

// HeaderSignature is FromRequest for a bare user agent string.
func HeaderSignature(ua string) classify.Signature {
	s := classify.NewSignature(ua)
	s.Globals = globalsFor(AnalyzeUserAgent(ua).Browser)
	return s
}

// DOMSupport lists the baseline DOM capabilities the probe checks.
type DOMSupport struct {
	QuerySelector    bool `json:"query_selector"`
	AddEventListener bool `json:"add_event_listener"`
	CreateElement    bool `json:"create_element"`
}

// ProbeReport is the document posted by /probe.js and returned by the
// headless audit probe.
type ProbeReport struct {
	UserAgent       string     `json:"user_agent"`
	HeadlessMarkers []string   `json:"headless_markers"`
	Webdriver       bool       `json:"webdriver"`
	Globals         []string   `json:"globals"`
	DOM             DOMSupport `json:"dom"`
	CookieEnabled   bool       `json:"cookie_enabled"`
	LocalStorage    bool       `json:"local_storage"`
	Plugins         int        `json:"plugins"`
}

// Signature converts the report. fallbackUA is used when the report carries
// no user agent.
func (p ProbeReport) Signature(fallbackUA string) classify.Signature {
	ua := p.UserAgent
	if ua == "" {
		ua = fallbackUA
	}
	s := classify.NewSignature(ua)
	for _, m := range p.HeadlessMarkers {
		if headlessMarkers[m] {
			s.PhantomMarkers = true
			break
		}
	}
	s.Webdriver = p.Webdriver
	for _, g := range p.Globals {
		switch g {
		case "chrome":
			s.Globals.Chrome = true
		case "safari":
			s.Globals.Safari = true
		case "firefox":
			s.Globals.Firefox = true
		case "opera":
			s.Globals.Opera = true
		}
	}
	s.DOMAPIs = p.DOM.QuerySelector && p.DOM.AddEventListener && p.DOM.CreateElement
	s.CookiesEnabled = p.CookieEnabled
	s.LocalStorageWritable = p.LocalStorage
	if p.Plugins > 0 {
		s.PluginCount = p.Plugins
	}
	return s
}
