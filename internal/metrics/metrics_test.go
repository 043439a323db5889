package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestLoadConfig(t *testing.T) {
	t.Run("returns defaults when env not set", func(t *testing.T) {
		for _, key := range []string{"METRICS_ENABLED", "METRICS_ADDR", "METRICS_TLS_CERT", "METRICS_TLS_KEY", "METRICS_CLIENT_CA", "METRICS_REQUIRE_TLS", "METRICS_INLINE"} {
			t.Setenv(key, "")
		}

		cfg := LoadConfig()

		if cfg.Enabled {
			t.Error("Enabled should be false by default")
		}
		if cfg.Addr != "127.0.0.1:9090" {
			t.Errorf("Addr = %q, want 127.0.0.1:9090", cfg.Addr)
		}
		if cfg.RequireTLS {
			t.Error("RequireTLS should be false by default")
		}
	})

	t.Run("loads custom values from environment", func(t *testing.T) {
		t.Setenv("METRICS_ENABLED", "true")
		t.Setenv("METRICS_ADDR", ":9999")
		t.Setenv("METRICS_REQUIRE_TLS", "not-a-bool")
		t.Setenv("METRICS_INLINE", "true")

		cfg := LoadConfig()

		if !cfg.Enabled || cfg.Addr != ":9999" || !cfg.Inline {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if cfg.RequireTLS {
			t.Error("invalid bool should fall back to default")
		}
	})
}

func TestCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveClassification("header", true, "bot-pattern")
	m.ObserveClassification("header", true, "bot-pattern")
	m.ObserveClassification("probe", false, "default")
	m.IncrementConsent("granted")
	m.IncrementStoreErrors("redis")
	m.IncrementEventsEmitted("log")
	m.IncrementSinkErrors("kafka")
	m.IncrementHTTPRequests("/", "GET", "200")
	m.ObserveHTTPDuration("/", "GET", 15*time.Millisecond)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"bot classifications", testutil.ToFloat64(m.Classifications.WithLabelValues("header", "bot", "bot-pattern")), 2},
		{"human classifications", testutil.ToFloat64(m.Classifications.WithLabelValues("probe", "human", "default")), 1},
		{"consents", testutil.ToFloat64(m.Consents.WithLabelValues("granted")), 1},
		{"store errors", testutil.ToFloat64(m.StoreErrors.WithLabelValues("redis")), 1},
		{"events emitted", testutil.ToFloat64(m.EventsEmitted.WithLabelValues("log")), 1},
		{"sink errors", testutil.ToFloat64(m.SinkErrors.WithLabelValues("kafka")), 1},
		{"http requests", testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/", "GET", "200")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveClassification("header", true, "x")
	m.IncrementConsent("denied")
	m.IncrementStoreErrors("memory")
	m.IncrementEventsEmitted("log")
	m.IncrementSinkErrors("log")
	m.IncrementHTTPRequests("/", "GET", "200")
	m.ObserveHTTPDuration("/", "GET", time.Second)
}

func TestIndependentInstances(t *testing.T) {
	// Separate registries must not collide on registration.
	a, b := NewMetrics(), NewMetrics()
	a.IncrementConsent("granted")
	if got := testutil.ToFloat64(b.Consents.WithLabelValues("granted")); got != 0 {
		t.Errorf("instances share state: %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.IncrementConsent("denied")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `botgate_consent_total{decision="denied"} 1`) {
		t.Errorf("exposition missing consent counter:\n%s", w.Body.String())
	}
}

func TestServer(t *testing.T) {
	log := zap.NewNop().Sugar()

	t.Run("disabled server is a no-op", func(t *testing.T) {
		s, err := NewServer(Config{Enabled: false, Addr: "127.0.0.1:0"}, NewMetrics(), log)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Start(context.Background()); err != nil {
			t.Errorf("Start() = %v", err)
		}
		if err := s.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() = %v", err)
		}
	})

	t.Run("sets timeouts", func(t *testing.T) {
		s, err := NewServer(Config{Addr: ":0"}, NewMetrics(), log)
		if err != nil {
			t.Fatal(err)
		}
		if s.server.ReadTimeout != 10*time.Second || s.server.WriteTimeout != 10*time.Second || s.server.IdleTimeout != 60*time.Second {
			t.Errorf("unexpected timeouts: %v %v %v", s.server.ReadTimeout, s.server.WriteTimeout, s.server.IdleTimeout)
		}
	})

	t.Run("serves metrics and health", func(t *testing.T) {
		s, err := NewServer(Config{Addr: ":0"}, NewMetrics(), log)
		if err != nil {
			t.Fatal(err)
		}
		ts := httptest.NewServer(s.server.Handler)
		defer ts.Close()

		for _, path := range []string{"/metrics", "/healthz"} {
			resp, err := http.Get(ts.URL + path)
			if err != nil {
				t.Fatalf("GET %s: %v", path, err)
			}
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("GET %s status = %d", path, resp.StatusCode)
			}
			if path == "/healthz" && string(body) != "OK" {
				t.Errorf("health body = %q", body)
			}
		}
	})

	t.Run("configures TLS when required", func(t *testing.T) {
		s, err := NewServer(Config{Addr: ":0", RequireTLS: true, TLSCert: "c.pem", TLSKey: "k.pem"}, NewMetrics(), log)
		if err != nil {
			t.Fatal(err)
		}
		if s.server.TLSConfig == nil {
			t.Error("expected TLS config")
		}
	})

	t.Run("rejects unreadable client CA", func(t *testing.T) {
		cfg := Config{Addr: ":0", RequireTLS: true, TLSCert: "c.pem", TLSKey: "k.pem", ClientCA: filepath.Join(t.TempDir(), "missing.pem")}
		if _, err := NewServer(cfg, NewMetrics(), log); err == nil {
			t.Error("expected error for missing client CA")
		}
	})
}

func TestLoadCertPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCertPool(path); err == nil {
		t.Error("expected error for PEM without certificates")
	}
}
