// Package probe audits how a real browser would be classified. It launches
// Chrome through go-rod, evaluates the same collector script /probe.js uses
// and returns the resulting report.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/assets"
	"github.com/shortontech/botgate/internal/classify"
	"github.com/shortontech/botgate/internal/detection"
)

type Options struct {
	URL       string // page loaded before collecting; about:blank when empty
	Bin       string // browser binary; rod downloads one when empty
	Headless  bool
	UserAgent string // overrides the browser's own user agent
	Timeout   time.Duration
}

type Prober struct {
	opts Options
	log  *zap.SugaredLogger
}

func New(opts Options, log *zap.SugaredLogger) *Prober {
	if opts.URL == "" {
		opts.URL = "about:blank"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Prober{opts: opts, log: log}
}

// Collect launches a browser, loads the page and evaluates the collector.
func (p *Prober) Collect(ctx context.Context) (detection.ProbeReport, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	l := launcher.New().
		Context(ctx).
		Headless(p.opts.Headless).
		Leakless(false)
	if p.opts.Bin != "" {
		l = l.Bin(p.opts.Bin)
	}
	if p.opts.UserAgent != "" {
		l = l.Set("user-agent", p.opts.UserAgent)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return detection.ProbeReport{}, fmt.Errorf("probe: launch browser: %w", err)
	}
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return detection.ProbeReport{}, fmt.Errorf("probe: connect browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			p.log.Debugw("probe: close browser", "error", err)
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: p.opts.URL})
	if err != nil {
		return detection.ProbeReport{}, fmt.Errorf("probe: open %s: %w", p.opts.URL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return detection.ProbeReport{}, fmt.Errorf("probe: wait load: %w", err)
	}

	res, err := page.Eval(assets.CollectJS)
	if err != nil {
		return detection.ProbeReport{}, fmt.Errorf("probe: evaluate collector: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return detection.ProbeReport{}, fmt.Errorf("probe: read result: %w", err)
	}
	report, err := decodeReport(raw)
	if err != nil {
		return detection.ProbeReport{}, err
	}
	p.log.Debugw("probe: collected", "url", p.opts.URL, "ua", report.UserAgent)
	return report, nil
}

// Signature collects a report and converts it for the classifier.
func (p *Prober) Signature(ctx context.Context) (classify.Signature, detection.ProbeReport, error) {
	report, err := p.Collect(ctx)
	if err != nil {
		return classify.Signature{}, report, err
	}
	return report.Signature(p.opts.UserAgent), report, nil
}

var errEmptyReport = errors.New("probe: collector returned no report")

func decodeReport(raw []byte) (detection.ProbeReport, error) {
	var report detection.ProbeReport
	if len(raw) == 0 || string(raw) == "null" {
		return report, errEmptyReport
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return report, fmt.Errorf("probe: decode report: %w", err)
	}
	return report, nil
}
