package detection

import (
	"strings"

	"github.com/shortontech/botgate/internal/classify"
)

// UAInfo is the coarse platform and browser family read from a user agent.
type UAInfo struct {
	Platform string `json:"platform,omitempty"`
	Browser  string `json:"browser,omitempty"`
}

// AnalyzeUserAgent extracts platform and browser family from a user agent.
func AnalyzeUserAgent(userAgent string) UAInfo {
	lowerUA := strings.ToLower(userAgent)
	return UAInfo{
		Platform: extractPlatform(lowerUA),
		Browser:  extractBrowser(lowerUA),
	}
}

// extractPlatform extracts platform information from user-agent string
func extractPlatform(lowerUA string) string {
	// Check mobile platforms first (iOS UAs contain "Mac OS X")
	switch {
	case strings.Contains(lowerUA, "iphone") || strings.Contains(lowerUA, "ipad"):
		return "iOS"
	case strings.Contains(lowerUA, "android"):
		return "Android"
	case strings.Contains(lowerUA, "windows"):
		return "Windows"
	case strings.Contains(lowerUA, "mac"):
		return "macOS"
	case strings.Contains(lowerUA, "linux"):
		return "Linux"
	}
	return ""
}

// extractBrowser extracts browser information from user-agent string
func extractBrowser(lowerUA string) string {
	switch {
	case strings.Contains(lowerUA, "edge/") || strings.Contains(lowerUA, "edg/"):
		return "Edge"
	case strings.Contains(lowerUA, "opr/") || strings.Contains(lowerUA, "opera"):
		return "Opera"
	case strings.Contains(lowerUA, "chrome"):
		return "Chrome"
	case strings.Contains(lowerUA, "firefox"):
		return "Firefox"
	case strings.Contains(lowerUA, "safari"):
		return "Safari"
	}
	return ""
}

// globalsFor maps a browser family to the globals that browser exposes.
// Chromium derivatives all expose window.chrome.
func globalsFor(browser string) classify.BrowserGlobals {
	switch browser {
	case "Chrome", "Edge":
		return classify.BrowserGlobals{Chrome: true}
	case "Opera":
		return classify.BrowserGlobals{Chrome: true, Opera: true}
	case "Safari":
		return classify.BrowserGlobals{Safari: true}
	case "Firefox":
		return classify.BrowserGlobals{Firefox: true}
	}
	return classify.BrowserGlobals{}
}
