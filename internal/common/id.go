package common

import (
	"github.com/google/uuid"
)

// NewID generates a new UUID string for entity and job rows
func NewID() string {
	return uuid.New().String()
}

// NewWorkerID generates a unique worker identity with the "worker_" prefix.
// Format: worker_<uuid>
func NewWorkerID() string {
	return "worker_" + uuid.New().String()
}

// IsUUID reports whether s parses as a UUID. Used for path id validation.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
