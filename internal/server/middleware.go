package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Context key for correlation ID
type contextKey string

const correlationIDKey contextKey = "correlation_id"

// requestIDMiddleware extracts or generates a correlation ID for request
// tracking.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Request-ID")
		if correlationID == "" {
			correlationID = r.Header.Get("X-Correlation-ID")
		}
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs one line per request with timing.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.app.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Str("duration", time.Since(started).String()).
			Msg("HTTP request")
	})
}

// recoveryMiddleware converts handler panics into 500 responses.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.app.Logger.Error().
					Str("path", r.URL.Path).
					Str("panic", fmt.Sprintf("%v", rec)).
					Msg("Recovered from handler panic")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":     "internal_error",
					"message":   "an internal error occurred",
					"code":      http.StatusInternalServerError,
					"timestamp": time.Now().UTC(),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// clientLimiters hands out a token bucket per client IP. Entries are
// dropped after an idle hour to bound the map.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	perMin   int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiters(perMinute int) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*clientLimiter),
		perMin:   perMinute,
	}
}

func (c *clientLimiters) get(ip string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.limiters[ip]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	for key, entry := range c.limiters {
		if now.Sub(entry.lastSeen) > time.Hour {
			delete(c.limiters, key)
		}
	}

	limiter := rate.NewLimiter(rate.Limit(float64(c.perMin)/60.0), c.perMin)
	c.limiters[ip] = &clientLimiter{limiter: limiter, lastSeen: now}
	return limiter
}

// rateLimitMiddleware bounds requests per client IP on the read API.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !s.limiters.get(ip).Allow() {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":     "rate_limited",
				"message":   "too many requests",
				"code":      http.StatusTooManyRequests,
				"timestamp": time.Now().UTC(),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
