// Package consent records a visitor's accept or deny choice on the consent
// gate. A choice is two flags per visitor: the decision and the time it was
// made.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shortontech/botgate/pkg/config"
)

type Decision string

const (
	Granted Decision = "granted"
	Denied  Decision = "denied"
)

// ErrNotFound is returned by Load when a visitor has no recorded decision.
var ErrNotFound = errors.New("consent: no decision recorded")

// Record is the stored pair of flags.
type Record struct {
	Decision Decision  `json:"decision"`
	At       time.Time `json:"at"`
}

// Flag key suffixes, prefixed with the configured key prefix.
const (
	flagDecision = "consent"
	flagTime     = "consent_time"
)

type Store interface {
	Save(ctx context.Context, visitorID string, rec Record) error
	Load(ctx context.Context, visitorID string) (Record, error)
	Ping(ctx context.Context) error
	Close() error
	Name() string // backend name for metrics and logging
}

// Open builds the store selected by CONSENT_STORE.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.ConsentStore {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStoreFromConfig(ctx, cfg)
	case "postgres":
		return OpenPGStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("consent: unknown store %q", cfg.ConsentStore)
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// decode rebuilds a Record from its two flag values.
func decode(decision, at string) (Record, error) {
	if decision == "" {
		return Record{}, ErrNotFound
	}
	rec := Record{Decision: Decision(decision)}
	if at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return Record{}, fmt.Errorf("consent: parse %s: %w", flagTime, err)
		}
		rec.At = t
	}
	return rec, nil
}
