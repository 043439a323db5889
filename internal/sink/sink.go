// Package sink delivers verdict journal events to one or more outputs.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shortontech/botgate/internal/event"
)

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(e event.Event) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}

// FromNames builds the sinks listed in OUTPUTS. Unknown names are an error.
func FromNames(names []string, log *zap.SugaredLogger) ([]Sink, error) {
	sinks := make([]Sink, 0, len(names))
	for _, name := range names {
		switch name {
		case "log":
			sinks = append(sinks, NewLogSink())
		case "kafka":
			sinks = append(sinks, NewKafkaSinkFromEnv().WithLogger(log))
		default:
			return nil, fmt.Errorf("unknown output %q", name)
		}
	}
	return sinks, nil
}
