package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/consent"
	"github.com/shortontech/botgate/internal/render"
)

// ContentProxy fetches bot content from an upstream origin and injects the
// structured data documents into HTML responses.
type ContentProxy struct {
	origin *url.URL
	client *http.Client
	log    *zap.SugaredLogger
}

func NewContentProxy(origin string, log *zap.SugaredLogger) (*ContentProxy, error) {
	u, err := url.Parse(origin)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("invalid content origin %q", origin)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ContentProxy{
		origin: u,
		log:    log,
		client: &http.Client{
			Timeout: 30 * time.Second, // 30 second timeout for proxied requests
		},
	}, nil
}

// hopHeaders are not forwarded in either direction.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Serve proxies r to the origin, preserving path and query.
func (p *ContentProxy) Serve(w http.ResponseWriter, r *http.Request, docs []any) {
	target := *p.origin
	target.Path = r.URL.Path
	target.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
	defer cancel()

	proxyReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), nil)
	if err != nil {
		p.log.Errorw("proxy: create request", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		proxyReq.Header.Del(h)
	}
	// gzip is the only encoding injectBody can rewrite.
	if strings.Contains(strings.ToLower(r.Header.Get("Accept-Encoding")), "gzip") {
		proxyReq.Header.Set("Accept-Encoding", "gzip")
	} else {
		proxyReq.Header.Set("Accept-Encoding", "identity")
	}
	proxyReq.Host = target.Host

	resp, err := p.client.Do(proxyReq)
	if err != nil {
		p.log.Warnw("proxy: upstream request failed", "url", target.String(), "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}

	if r.Method == http.MethodHead || !isHTMLContent(resp.Header.Get("Content-Type")) {
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			p.log.Warnw("proxy: copy response body", "error", err)
		}
		return
	}

	body, err := p.injectBody(resp, docs)
	if err != nil {
		p.log.Warnw("proxy: structured data not injected", "url", target.String(), "error", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		p.log.Warnw("proxy: write response body", "error", err)
	}
}

// injectBody reads the upstream HTML, adds docs and restores the original
// gzip encoding. Bodies in any other encoding are returned untouched.
func (p *ContentProxy) injectBody(resp *http.Response, docs []any) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var gzipped bool
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip", "x-gzip":
		gzipped = true
	default:
		p.log.Debugw("proxy: passing encoded body through", "encoding", enc)
		return raw, nil
	}

	html := raw
	if gzipped {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		if html, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
	}

	out, err := render.InjectStructuredData(html, docs)
	if err != nil {
		return nil, err
	}
	if !gzipped {
		return out, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(out); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

// isHTMLContent checks if the content type indicates HTML content (case-insensitive)
func isHTMLContent(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// routes are the fixed paths; everything else is a page.
var routes = []string{
	"/classify",
	"/consent/accept",
	"/consent/deny",
	"/probe.js",
	"/healthz",
	"/readyz",
	"/metrics",
}

func NewMux(e Env) http.Handler {
	if e.Proxy == nil && e.Cfg.BotContentOrigin != "" {
		p, err := NewContentProxy(e.Cfg.BotContentOrigin, e.Log)
		if err != nil {
			e.logger().Warnw("bot content proxy disabled", "error", err)
		} else {
			e.Proxy = p
			e.logger().Infow("bot content proxied", "origin", e.Cfg.BotContentOrigin)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc("/classify", e.Classify)
	mux.HandleFunc("/consent/accept", e.Consent(consent.Granted))
	mux.HandleFunc("/consent/deny", e.Consent(consent.Denied))
	mux.HandleFunc("/probe.js", e.ProbeScript)
	if e.ServeMetrics && e.Metrics != nil {
		mux.Handle("/metrics", e.Metrics.Handler())
	}
	mux.HandleFunc("/", e.Page)

	return RequestLogger(e.logger())(MetricsMiddleware(e.Metrics)(cors(mux)))
}
