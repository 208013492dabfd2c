package interfaces

// RateLimiter bounds request rates per key over minute and hour windows.
// Decisions are non-blocking; the limiter is process-local unless a
// coordinating store is configured.
type RateLimiter interface {
	// Allowed reports whether key is strictly under both window limits.
	Allowed(key string) bool

	// Record appends a hit for key.
	Record(key string)

	// Usage returns the current minute and hour counts for key.
	Usage(key string) (minute int, hour int)
}
