package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/assets"
	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/consent"
	"github.com/shortontech/botgate/internal/detection"
	"github.com/shortontech/botgate/internal/event"
	"github.com/shortontech/botgate/internal/metrics"
	"github.com/shortontech/botgate/internal/render"
	cfg "github.com/shortontech/botgate/pkg/config"
)

type Env struct {
	Cfg          cfg.Config
	Classifier   *classify.Classifier
	Renderer     *render.Renderer
	Gate         *consent.Gate
	Proxy        *ContentProxy     // optional upstream for bot content
	Emit         func(event.Event) // injected sink fan-out
	Metrics      *metrics.Metrics
	ServeMetrics bool // expose /metrics on the main listener
	Log          *zap.SugaredLogger
}

func (e Env) logger() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}

func (e Env) emit(r *http.Request, evt event.Event) {
	if e.Emit == nil {
		return
	}
	event.EnrichServerFields(r, &evt, e.Cfg)
	e.Emit(evt)
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reports ready once the consent store answers a ping.
func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Gate != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := e.Gate.Store().Ping(ctx); err != nil {
			e.logger().Warnw("readiness check failed", "backend", e.Gate.Store().Name(), "error", err)
			http.Error(w, "consent store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Page classifies the request from its headers and serves the matching
// branch. Any path not claimed by another route lands here.
func (e Env) Page(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	d := e.Classifier.Decide(detection.FromRequest(r))
	e.Metrics.ObserveClassification(event.SourceHeader, d.Bot, d.Rule)
	vid := visitorID(w, r, e.Cfg.TrustProxy)
	e.emit(r, event.Event{
		Type:    event.TypeClassification,
		Source:  event.SourceHeader,
		Verdict: d,
		Session: event.SessionInfo{VisitorID: vid},
	})

	origin := detection.Origin(r, e.Cfg.TrustProxy)
	w.Header().Add("Vary", "User-Agent")

	if d.Bot && e.Proxy != nil {
		e.Proxy.Serve(w, r, render.StructuredData(e.Renderer.Config().Content, origin))
		return
	}

	var buf bytes.Buffer
	if err := e.Renderer.Render(&buf, d.Bot, origin); err != nil {
		e.logger().Errorw("render page", "branch", render.Select(d.Bot), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

type classifyResponse struct {
	Bot         bool          `json:"bot"`
	Rule        string        `json:"rule"`
	Pattern     string        `json:"pattern,omitempty"`
	Branch      render.Branch `json:"branch"`
	RedirectURL string        `json:"redirect_url"`
	KeyPrefix   string        `json:"key_prefix"`
	// StructuredData is set for bots so the page can add the JSON-LD
	// documents it was served without.
	StructuredData []any `json:"structured_data,omitempty"`
}

// POST /classify: classifies a probe report collected in the browser.
func (e Env) Classify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	defer r.Body.Close()

	var report detection.ProbeReport
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, e.Cfg.MaxBodyBytes))
	if err := dec.Decode(&report); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	d := e.Classifier.Decide(report.Signature(r.UserAgent()))
	e.Metrics.ObserveClassification(event.SourceProbe, d.Bot, d.Rule)
	vid := visitorID(w, r, e.Cfg.TrustProxy)
	e.emit(r, event.Event{
		Type:    event.TypeClassification,
		Source:  event.SourceProbe,
		Verdict: d,
		Session: event.SessionInfo{VisitorID: vid},
	})

	resp := classifyResponse{
		Bot:         d.Bot,
		Rule:        d.Rule,
		Pattern:     d.Pattern,
		Branch:      render.Select(d.Bot),
		RedirectURL: e.Cfg.RedirectURL,
		KeyPrefix:   e.Cfg.ConsentKeyPrefix,
	}
	if d.Bot {
		resp.StructuredData = render.StructuredData(e.Renderer.Config().Content, detection.Origin(r, e.Cfg.TrustProxy))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Consent handles /consent/accept and /consent/deny. Only same-origin POSTs
// record a decision. A form submit is answered with a redirect, anything else
// with the redirect URL as JSON.
func (e Env) Consent(decision consent.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !sameOrigin(r, e.Cfg.TrustProxy) {
			e.logger().Debugw("consent: cross-site request rejected",
				"origin", r.Header.Get("Origin"),
				"fetch_site", r.Header.Get("Sec-Fetch-Site"),
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		vid := visitorID(w, r, e.Cfg.TrustProxy)
		dest := e.Gate.Decide(r.Context(), vid, decision)
		e.emit(r, event.Event{
			Type:    event.TypeConsent,
			Session: event.SessionInfo{VisitorID: vid},
			Consent: event.ConsentInfo{Decision: string(decision)},
		})

		if isFormPost(r) {
			http.Redirect(w, r, dest, http.StatusSeeOther)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"decision":     string(decision),
			"redirect_url": dest,
		})
	}
}

// sameOrigin reports whether r was sent by a page on this site. Browsers
// send Sec-Fetch-Site or Origin on POST; requests with neither are not from
// a browser page and pass.
func sameOrigin(r *http.Request, trustProxy bool) bool {
	switch r.Header.Get("Sec-Fetch-Site") {
	case "same-origin", "none":
		return true
	case "":
	default:
		return false
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.EqualFold(origin, detection.Origin(r, trustProxy))
}

func isFormPost(r *http.Request) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

func (e Env) ProbeScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(assets.ProbeJS)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
