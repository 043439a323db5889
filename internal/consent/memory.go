package consent

import (
	"context"
	"sync"
)

// MemoryStore keeps flags in process. It is the default and suits a single
// instance or tests.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]Record)}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Save(_ context.Context, visitorID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.At = rec.At.UTC()
	s.flags[visitorID] = rec
	return nil
}

func (s *MemoryStore) Load(_ context.Context, visitorID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.flags[visitorID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }
