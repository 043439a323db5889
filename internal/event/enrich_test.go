package event

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/botgate/pkg/config"
)

func TestEnrichServerFields(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/review", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0")
		e := &Event{}
		before := time.Now().UTC()

		EnrichServerFields(req, e, config.Config{})

		if _, err := uuid.Parse(e.EventID); err != nil {
			t.Errorf("EventID should be a UUID: %v", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, e.TS)
		if err != nil {
			t.Fatalf("timestamp should be RFC3339Nano: %v", err)
		}
		if ts.Before(before) {
			t.Errorf("timestamp %v should be recent", ts)
		}
		if e.Type != TypeClassification {
			t.Errorf("Type = %q, want %q", e.Type, TypeClassification)
		}
		if e.Path != "/review" {
			t.Errorf("Path = %q", e.Path)
		}
		if e.Device.Browser != "Chrome" || e.Device.Platform != "Windows" {
			t.Errorf("Device = %+v", e.Device)
		}
		if e.Server.HeaderFingerprint == "" {
			t.Error("header fingerprint should be set")
		}
		if e.Server.IPHash != "" {
			t.Error("IP hash should be empty without a secret")
		}
	})

	t.Run("preserves caller values", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/classify", nil)
		e := &Event{EventID: "fixed", TS: "2026-01-01T00:00:00Z", Type: TypeConsent, Path: "/consent/accept"}

		EnrichServerFields(req, e, config.Config{})

		if e.EventID != "fixed" || e.TS != "2026-01-01T00:00:00Z" || e.Type != TypeConsent || e.Path != "/consent/accept" {
			t.Errorf("caller fields overwritten: %+v", e)
		}
	})

	t.Run("hashes ip with secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		a, b := &Event{}, &Event{}

		EnrichServerFields(req, a, config.Config{IPHashSecret: "s1"})
		EnrichServerFields(req, b, config.Config{IPHashSecret: "s2"})

		if a.Server.IPHash == "" || len(a.Server.IPHash) != 32 {
			t.Errorf("IPHash = %q, want 32 hex chars", a.Server.IPHash)
		}
		if a.Server.IPHash == b.Server.IPHash {
			t.Error("different secrets should give different hashes")
		}
		if a.Server.IPHash == "203.0.113.9" {
			t.Error("raw IP must not be stored")
		}
	})
}
