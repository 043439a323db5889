package classify

import "strings"

// BrowserGlobals records which mainstream-browser globals the page could see.
type BrowserGlobals struct {
	Chrome  bool `json:"chrome"`
	Safari  bool `json:"safari"`
	Firefox bool `json:"firefox"`
	Opera   bool `json:"opera"`
}

// Signature is a snapshot of the traits observable at classification time.
// It is a plain value; callers build a fresh one for every classification.
type Signature struct {
	UserAgent            string         `json:"user_agent"` // lowercased
	EdgeToken            bool           `json:"edge_token"` // raw user agent contains "Edge"
	PhantomMarkers       bool           `json:"phantom_markers"`
	Webdriver            bool           `json:"webdriver"`
	Globals              BrowserGlobals `json:"globals"`
	DOMAPIs              bool           `json:"dom_apis"`
	CookiesEnabled       bool           `json:"cookies_enabled"`
	LocalStorageWritable bool           `json:"local_storage_writable"`
	PluginCount          int            `json:"plugin_count"`
}

// NewSignature returns a signature for userAgent with every other trait set the
// way an ordinary desktop browser reports it.
func NewSignature(userAgent string) Signature {
	return Signature{
		UserAgent:            strings.ToLower(userAgent),
		EdgeToken:            strings.Contains(userAgent, "Edge"),
		DOMAPIs:              true,
		CookiesEnabled:       true,
		LocalStorageWritable: true,
	}
}

// HasKnownBrowserGlobal reports whether any mainstream-browser indicator is
// present. Edge has no global; it counts when the raw user agent carries the
// case-sensitive "Edge" token.
func (s Signature) HasKnownBrowserGlobal() bool {
	g := s.Globals
	return g.Chrome || g.Safari || g.Firefox || g.Opera || s.EdgeToken
}
