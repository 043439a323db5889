package consent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/metrics"
)

// Gate records a consent choice and hands back the destination. Accept and
// deny lead to the same place; only the stored flag differs.
type Gate struct {
	store       Store
	redirectURL string
	metrics     *metrics.Metrics
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewGate(store Store, redirectURL string, m *metrics.Metrics, log *zap.SugaredLogger) *Gate {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Gate{store: store, redirectURL: redirectURL, metrics: m, log: log, now: time.Now}
}

// RedirectURL is the fixed destination for both choices.
func (g *Gate) RedirectURL() string { return g.redirectURL }

// Store returns the backing store.
func (g *Gate) Store() Store { return g.store }

// Decide stores the flags and returns the redirect URL. A failed write is
// logged and counted but never blocks the redirect.
func (g *Gate) Decide(ctx context.Context, visitorID string, d Decision) string {
	g.metrics.IncrementConsent(string(d))
	rec := Record{Decision: d, At: g.now().UTC()}
	if err := g.store.Save(ctx, visitorID, rec); err != nil {
		g.metrics.IncrementStoreErrors(g.store.Name())
		g.log.Warnw("consent flag not stored",
			"backend", g.store.Name(),
			"visitor_id", visitorID,
			"decision", d,
			"error", err,
		)
	}
	return g.redirectURL
}
