package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/shortontech/botgate/internal/event"
)

// LogSink appends one JSON object per line to LOG_PATH, or stdout.
type LogSink struct {
	dst string
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

func NewLogSink() *LogSink {
	return &LogSink{dst: getEnvOr("LOG_PATH", "botgate.ndjson")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dst == "stdout" {
		s.enc = json.NewEncoder(os.Stdout)
		return nil
	}
	f, err := os.OpenFile(s.dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.dst, err)
	}
	s.f = f
	s.enc = json.NewEncoder(f)
	return nil
}

func (s *LogSink) Enqueue(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc == nil {
		return fmt.Errorf("log sink not started")
	}
	return s.enc.Encode(e)
}

func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enc = nil
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
