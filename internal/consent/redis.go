package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shortontech/botgate/pkg/config"
)

// RedisStore writes the flags as plain string keys:
// <prefix>consent:<visitor> and <prefix>consent_time:<visitor>.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration // zero keeps keys forever
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisStoreFromConfig dials REDIS_ADDR and verifies the connection.
func NewRedisStoreFromConfig(ctx context.Context, cfg config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	s := NewRedisStore(client, cfg.ConsentKeyPrefix, cfg.ConsentTTL)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) key(flag, visitorID string) string {
	return s.prefix + flag + ":" + visitorID
}

func (s *RedisStore) Save(ctx context.Context, visitorID string, rec Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(flagDecision, visitorID), string(rec.Decision), s.ttl)
		pipe.Set(ctx, s.key(flagTime, visitorID), formatTime(rec.At), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("consent: redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, visitorID string) (Record, error) {
	vals, err := s.client.MGet(ctx, s.key(flagDecision, visitorID), s.key(flagTime, visitorID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("consent: redis load: %w", err)
	}
	var decision, at string
	if len(vals) == 2 {
		decision, _ = vals[0].(string)
		at, _ = vals[1].(string)
	}
	return decode(decision, at)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("consent: redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
