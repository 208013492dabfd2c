// Package cache implements the stale-while-revalidate entry cache over a
// Redis-compatible store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
)

// envelope is the stored shape of an entry. The payload stays opaque; the
// timing fields drive the fresh/stale/expired tri-state on read.
type envelope struct {
	Payload    []byte    `json:"payload"`
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// RedisStore implements interfaces.EntryStore on go-redis.
type RedisStore struct {
	client *redis.Client
	logger arbor.ILogger
	now    func() time.Time
}

// NewRedisStore connects to the configured Redis URL.
func NewRedisStore(redisURL string, logger arbor.ILogger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return &RedisStore{
		client: redis.NewClient(opts),
		logger: logger,
		now:    time.Now,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests with
// miniredis.
func NewRedisStoreWithClient(client *redis.Client, logger arbor.ILogger) *RedisStore {
	return &RedisStore{client: client, logger: logger, now: time.Now}
}

// Get returns the entry for key, or nil when absent. Corrupt envelopes are
// deleted and reported as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (*interfaces.CacheEntry, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn().Str("key", key).Err(err).Msg("Dropping corrupt cache entry")
		s.client.Del(ctx, key)
		return nil, nil
	}

	return &interfaces.CacheEntry{
		Key:       key,
		Payload:   env.Payload,
		CreatedAt: env.CreatedAt,
		TTL:       time.Duration(env.TTLSeconds) * time.Second,
	}, nil
}

// Set stores the entry. The Redis TTL is twice the entry TTL so the store
// itself evicts at hard expiry; reads between stale and hard expiry serve
// the stale payload.
func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	env := envelope{
		Payload:    payload,
		CreatedAt:  s.now().UTC(),
		TTLSeconds: int(ttl / time.Second),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}

	if err := s.client.Set(ctx, key, data, 2*ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes a single key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Ping verifies store connectivity for health reporting.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
