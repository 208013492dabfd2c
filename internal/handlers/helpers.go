// Package handlers implements the HTTP surface: the read API, the signed
// job intake, and the job admin endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// Pagination bounds for list endpoints.
const (
	defaultLimit = 20
	maxLimit     = 100
)

// meta is the response metadata carried on every successful read.
type meta struct {
	Cached    bool      `json:"cached"`
	Stale     bool      `json:"stale"`
	Timestamp time.Time `json:"timestamp"`
}

// dataEnvelope is the success response shape.
type dataEnvelope struct {
	Data interface{} `json:"data"`
	Meta meta        `json:"meta"`
}

// errorEnvelope is the error response shape.
type errorEnvelope struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// pageResult wraps a list payload with its pagination totals.
type pageResult struct {
	Items  interface{} `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// writeData writes the success envelope with cache metadata.
func writeData(w http.ResponseWriter, data interface{}, cached, stale bool) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dataEnvelope{
		Data: data,
		Meta: meta{Cached: cached, Stale: stale, Timestamp: time.Now().UTC()},
	})
}

// writeRawData writes an already-serialized payload inside the envelope.
func writeRawData(w http.ResponseWriter, payload []byte, cached, stale bool) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dataEnvelope{
		Data: json.RawMessage(payload),
		Meta: meta{Cached: cached, Stale: stale, Timestamp: time.Now().UTC()},
	})
}

// writeError writes the error envelope for a status code.
func writeError(w http.ResponseWriter, code int, label, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorEnvelope{
		Error:     label,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	})
}

// writeDomainError translates the error taxonomy to HTTP exactly once.
func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	var notFoundErr *models.NotFoundError
	var rateLimitedErr *models.RateLimitedError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_error", validationErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, "not_found", notFoundErr.Error())
	case errors.As(err, &rateLimitedErr):
		if rateLimitedErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateLimitedErr.RetryAfter/time.Second)))
		}
		writeError(w, http.StatusTooManyRequests, "rate_limited", rateLimitedErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred")
	}
}

// parsePagination validates limit and offset query parameters.
func parsePagination(r *http.Request) (int, int, error) {
	limit := defaultLimit
	offset := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxLimit {
			return 0, 0, models.NewValidationError("limit", "limit must be an integer between 1 and 100")
		}
		limit = parsed
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, models.NewValidationError("offset", "offset must be a non-negative integer")
		}
		offset = parsed
	}

	return limit, offset, nil
}
