package event

import "github.com/shortontech/botgate/internal/classify"

// Event types.
const (
	TypeClassification = "classification"
	TypeConsent        = "consent"
)

// Signature sources.
const (
	SourceHeader = "header"
	SourceProbe  = "probe"
)

// Envelope for one journal entry. Optional fields are omitted when empty.
type Event struct {
	EventID string `json:"event_id,omitempty"`
	TS      string `json:"ts,omitempty"`   // ISO8601
	Type    string `json:"type,omitempty"` // "classification" or "consent"
	Source  string `json:"source,omitempty"`

	Verdict classify.Decision `json:"verdict"`
	Path    string            `json:"path,omitempty"`
	Device  DeviceInfo        `json:"device,omitempty"`
	Session SessionInfo       `json:"session,omitempty"`
	Server  ServerMeta        `json:"server,omitempty"`
	Consent ConsentInfo       `json:"consent,omitempty"`
}

type DeviceInfo struct {
	UA       string `json:"ua,omitempty"`
	Browser  string `json:"browser,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type SessionInfo struct {
	VisitorID string `json:"visitor_id,omitempty"`
}

type ServerMeta struct {
	IPHash            string `json:"ip_hash,omitempty"` // HMAC of client IP (if enabled)
	HeaderFingerprint string `json:"header_fingerprint,omitempty"`
}

type ConsentInfo struct {
	Decision string `json:"decision,omitempty"` // "granted" or "denied"
}
