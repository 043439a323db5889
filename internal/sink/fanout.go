package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/event"
	"github.com/shortontech/botgate/internal/metrics"
)

// Fanout delivers each event to every configured sink. A failing sink
// never blocks the others or the caller.
type Fanout struct {
	sinks   []Sink
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

func NewFanout(sinks []Sink, m *metrics.Metrics, log *zap.SugaredLogger) *Fanout {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Fanout{sinks: sinks, metrics: m, log: log}
}

// Start starts every sink, stopping at the first failure.
func (f *Fanout) Start(ctx context.Context) error {
	for _, s := range f.sinks {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start sink %s: %w", s.Name(), err)
		}
		f.log.Infow("sink started", "sink", s.Name())
	}
	return nil
}

// Emit hands e to every sink. Errors are logged and counted.
func (f *Fanout) Emit(e event.Event) {
	if f == nil {
		return
	}
	for _, s := range f.sinks {
		if err := s.Enqueue(e); err != nil {
			f.metrics.IncrementSinkErrors(s.Name())
			f.log.Warnw("sink enqueue failed", "sink", s.Name(), "event_id", e.EventID, "error", err)
			continue
		}
		f.metrics.IncrementEventsEmitted(s.Name())
	}
}

func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Names lists the configured sinks in order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}
