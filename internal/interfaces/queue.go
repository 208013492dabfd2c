package interfaces

import (
	"context"

	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// JobQueue is the durable work queue shared by the API side (enqueue) and
// the scraper workers (lease/ack). Delivery is at-least-once; upsert
// idempotency on the storage side makes reruns safe.
type JobQueue interface {
	// Enqueue inserts a job or, when a non-terminal job for the same
	// (type, target_url) exists, raises its priority and returns its id.
	Enqueue(ctx context.Context, req models.JobRequest) (string, error)

	// Dequeue leases the best available job for the worker among queued
	// jobs and running jobs whose lease expired: highest priority first,
	// then oldest. Returns nil
	// (not an error) when the queue is empty.
	Dequeue(ctx context.Context, workerID string) (*models.Job, error)

	// Complete marks a job done and merges the result into its metadata.
	// Completing an already-completed job is a no-op.
	Complete(ctx context.Context, jobID string, result models.JobResult) error

	// Fail records an error; the job is requeued while attempts remain,
	// otherwise it lands in failed.
	Fail(ctx context.Context, jobID string, jobErr error) error

	// Requeue forces a failed job back to queued iff attempts remain.
	Requeue(ctx context.Context, jobID string) error

	// ReleaseWorkerLocks returns jobs leased by workerID to queued; a job
	// on its final attempt goes to failed instead. Called on worker shutdown.
	ReleaseWorkerLocks(ctx context.Context, workerID string) (int, error)

	// SweepExpiredLeases resets running jobs whose lease lapsed.
	SweepExpiredLeases(ctx context.Context) (int, error)

	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	Stats(ctx context.Context) (*models.JobStats, error)
}
