package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/interfaces"
)

// Fetcher loads the payload for a key from the source of truth on a miss
// or during background revalidation.
type Fetcher func(ctx context.Context) ([]byte, error)

// SWRResult is the outcome of a cache-through read.
type SWRResult struct {
	Data   []byte
	Cached bool
	Stale  bool
}

// SWR serves entries through the fresh/stale/expired tri-state. Stale hits
// are returned immediately while a background revalidation refreshes the
// entry; concurrent stale reads of a key share one revalidation while it is
// in flight, and a stale read after it returns schedules another. Background failures are logged and
// swallowed; a foreground read never fails because a refresh failed.
type SWR struct {
	store  interfaces.EntryStore
	logger arbor.ILogger
	now    func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewSWR creates the SWR layer over an entry store.
func NewSWR(store interfaces.EntryStore, logger arbor.ILogger) *SWR {
	return &SWR{
		store:    store,
		logger:   logger,
		now:      time.Now,
		inFlight: make(map[string]bool),
	}
}

// NewSWRWithClock creates the SWR layer with an injected clock for tests.
func NewSWRWithClock(store interfaces.EntryStore, logger arbor.ILogger, now func() time.Time) *SWR {
	s := NewSWR(store, logger)
	s.now = now
	return s
}

// Get returns the entry for key regardless of phase, or nil on a miss.
// Hard-expired entries are deleted lazily and reported as a miss.
func (s *SWR) Get(ctx context.Context, key string) (*interfaces.CacheEntry, interfaces.CachePhase, error) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, interfaces.CacheMiss, err
	}
	if entry == nil {
		return nil, interfaces.CacheMiss, nil
	}

	phase := entry.Phase(s.now())
	if phase == interfaces.CacheExpired {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("Failed to delete expired cache entry")
		}
		return nil, interfaces.CacheMiss, nil
	}
	return entry, phase, nil
}

// Set stores a payload under key with the given fresh TTL.
func (s *SWR) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.store.Set(ctx, key, data, ttl)
}

// Delete removes a single key.
func (s *SWR) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}

// GetWithSWR reads through the cache. On a miss the fetcher runs inline
// and the result is stored. On a stale hit the stale payload is returned
// and a background revalidation is scheduled unless one is already in
// flight for the key; once it returns, the next stale read schedules a new
// one. The revalidation is revalTrigger when provided, else fetch-and-set.
func (s *SWR) GetWithSWR(ctx context.Context, key string, fetcher Fetcher, ttl time.Duration, revalTrigger interfaces.RevalidationTrigger) (*SWRResult, error) {
	entry, phase, err := s.Get(ctx, key)
	if err != nil {
		// A broken entry store degrades to fetch-through rather than
		// failing the read.
		s.logger.Warn().Str("key", key).Err(err).Msg("Cache read failed, fetching direct")
		phase = interfaces.CacheMiss
	}

	switch phase {
	case interfaces.CacheFresh:
		return &SWRResult{Data: entry.Payload, Cached: true, Stale: false}, nil

	case interfaces.CacheStale:
		s.scheduleRevalidation(key, fetcher, ttl, revalTrigger)
		return &SWRResult{Data: entry.Payload, Cached: true, Stale: true}, nil

	default:
		data, err := fetcher(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.Set(ctx, key, data, ttl); err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("Failed to store fetched cache entry")
		}
		return &SWRResult{Data: data, Cached: false, Stale: false}, nil
	}
}

// scheduleRevalidation fires the background refresh for a stale key,
// deduplicated via the in-flight set so concurrent stale reads trigger a
// single revalidation.
func (s *SWR) scheduleRevalidation(key string, fetcher Fetcher, ttl time.Duration, revalTrigger interfaces.RevalidationTrigger) {
	s.mu.Lock()
	if s.inFlight[key] {
		s.mu.Unlock()
		return
	}
	s.inFlight[key] = true
	s.mu.Unlock()

	common.SafeGo(s.logger, "cache-revalidate:"+key, func() {
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, key)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if revalTrigger != nil {
			revalTrigger(ctx, key)
			return
		}

		data, err := fetcher(ctx)
		if err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("Background revalidation failed")
			return
		}
		if err := s.Set(ctx, key, data, ttl); err != nil {
			s.logger.Warn().Str("key", key).Err(err).Msg("Background revalidation store failed")
		}
	})
}

// CacheControl returns the header value matching the SWR window so any
// downstream edge cache also serves within it.
func CacheControl(ttl time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int(2*ttl/time.Second))
}
