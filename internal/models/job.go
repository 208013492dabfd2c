package models

import (
	"time"
)

// JobType classifies what a scrape job targets.
type JobType string

const (
	JobTypeNavigation JobType = "navigation"
	JobTypeCategory   JobType = "category"
	JobTypeProduct    JobType = "product"
)

// ParseJobType validates a job type string.
func ParseJobType(s string) (JobType, bool) {
	switch JobType(s) {
	case JobTypeNavigation, JobTypeCategory, JobTypeProduct:
		return JobType(s), true
	}
	return "", false
}

// JobStatus is the queue state of a job.
// Transitions: queued -> running -> (completed | queued | failed).
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Priority bounds for jobs. Re-enqueues of an existing non-terminal job
// raise its priority to the max of old and new.
const (
	MinPriority = 0
	MaxPriority = 10
)

// ClampPriority forces a priority into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Job is a unit of scraper work: a type plus a target URL. At most one
// non-terminal job exists per (type, target_url).
type Job struct {
	ID          string     `db:"id" json:"id"`
	Type        JobType    `db:"type" json:"type"`
	TargetURL   string     `db:"target_url" json:"target_url"`
	Priority    int        `db:"priority" json:"priority"`
	Status      JobStatus  `db:"status" json:"status"`
	Attempts    int        `db:"attempts" json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	LockedAt    *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LockedBy    *string    `db:"locked_by" json:"locked_by,omitempty"`
	LastError   *string    `db:"last_error" json:"last_error,omitempty"`
	Metadata    JSONMap    `db:"metadata" json:"metadata"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// JobRequest is the enqueue payload accepted by the queue and the signed
// intake endpoint.
type JobRequest struct {
	Type        string  `json:"type" validate:"required,oneof=navigation category product"`
	TargetURL   string  `json:"target_url" validate:"required,url"`
	Priority    int     `json:"priority" validate:"gte=0,lte=10"`
	Metadata    JSONMap `json:"metadata"`
	MaxAttempts int     `json:"max_attempts,omitempty" validate:"gte=0"`
}

// Validate checks a job request before it reaches the queue.
func (r *JobRequest) Validate() error {
	if _, ok := ParseJobType(r.Type); !ok {
		return NewValidationError("type", "type must be one of navigation, category, product")
	}
	if err := validateSourceURL(r.TargetURL); err != nil {
		return NewValidationError("target_url", "target URL must be absolute http(s)")
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return NewValidationError("priority", "priority must be between 0 and 10")
	}
	return nil
}

// JobResult is what a worker reports on completion; it is merged into the
// job's metadata.
type JobResult struct {
	ItemsProcessed int   `json:"itemsProcessed"`
	DurationMs     int64 `json:"durationMs"`
}

// JobStats summarizes queue state by status for the admin surface.
type JobStats struct {
	Queued    int `db:"queued" json:"queued"`
	Running   int `db:"running" json:"running"`
	Completed int `db:"completed" json:"completed"`
	Failed    int `db:"failed" json:"failed"`
}
