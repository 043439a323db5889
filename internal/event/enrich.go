package event

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/botgate/internal/detection"
	"github.com/shortontech/botgate/pkg/config"
)

// EnrichServerFields fills the fields the server can set safely.
func EnrichServerFields(r *http.Request, e *Event, cfg config.Config) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.TS == "" {
		e.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if e.Type == "" {
		e.Type = TypeClassification
	}
	if e.Path == "" && r.URL != nil {
		e.Path = r.URL.Path
	}
	if e.Device.UA == "" {
		e.Device.UA = r.UserAgent()
	}
	if e.Device.Browser == "" && e.Device.Platform == "" {
		info := detection.AnalyzeUserAgent(e.Device.UA)
		e.Device.Browser = info.Browser
		e.Device.Platform = info.Platform
	}

	e.Server.IPHash = hashIP(detection.ClientIP(r, cfg.TrustProxy), cfg.IPHashSecret)
	e.Server.HeaderFingerprint = detection.HeaderFingerprint(r.Header)
}

// hashIP returns a daily-salted HMAC of ip, or "" when no secret is set.
func hashIP(ip, secret string) string {
	if secret == "" || ip == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(time.Now().UTC().Format("2006-01-02")))
	mac.Write([]byte{0})
	mac.Write([]byte(ip))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}
