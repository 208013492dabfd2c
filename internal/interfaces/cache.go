package interfaces

import (
	"context"
	"time"
)

// CachePhase is the lifecycle phase of an entry relative to now.
type CachePhase string

const (
	CacheFresh   CachePhase = "fresh"
	CacheStale   CachePhase = "stale"
	CacheExpired CachePhase = "expired"
	CacheMiss    CachePhase = "miss"
)

// CacheEntry is an opaque payload plus the timing metadata that drives the
// fresh/stale/expired tri-state.
type CacheEntry struct {
	Key       string        `json:"key"`
	Payload   []byte        `json:"payload"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// StaleAt is the end of the fresh window.
func (e *CacheEntry) StaleAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// HardExpiresAt is the end of the serve-stale window; the stale window
// equals the fresh window.
func (e *CacheEntry) HardExpiresAt() time.Time {
	return e.CreatedAt.Add(2 * e.TTL)
}

// Phase classifies the entry at the given instant.
func (e *CacheEntry) Phase(now time.Time) CachePhase {
	switch {
	case !now.After(e.StaleAt()):
		return CacheFresh
	case !now.After(e.HardExpiresAt()):
		return CacheStale
	default:
		return CacheExpired
	}
}

// EntryStore is the underlying cache entry storage (Redis in production,
// miniredis in tests). It knows nothing about SWR semantics.
type EntryStore interface {
	// Get returns the entry for key, or nil when absent.
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores the entry with a storage TTL of twice the entry TTL so
	// the store itself evicts at hard expiry.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// RevalidationTrigger is invoked asynchronously when a stale entry is
// served. Implementations must be safe to call concurrently.
type RevalidationTrigger func(ctx context.Context, key string)
