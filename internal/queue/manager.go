// Package queue implements the durable job queue on Postgres. Leasing
// uses row-level locking with SKIP LOCKED so concurrent workers never
// observe the same row.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
	"github.com/vaibhavdavedev/datashelf/internal/models"
)

// ErrJobNotFound is returned when a job id does not resolve.
var ErrJobNotFound = errors.New("job not found")

// ErrNotRequeueable is returned when a failed job has no attempts left.
var ErrNotRequeueable = errors.New("job has exhausted its attempts")

// Manager is the Postgres-backed job queue.
type Manager struct {
	db          *sqlx.DB
	logger      arbor.ILogger
	leaseTTL    time.Duration
	maxAttempts int
}

// NewManager creates a queue manager over a shared database handle.
func NewManager(db *sqlx.DB, logger arbor.ILogger, leaseTTL time.Duration, maxAttempts int) *Manager {
	if leaseTTL <= 0 {
		leaseTTL = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Manager{
		db:          db,
		logger:      logger,
		leaseTTL:    leaseTTL,
		maxAttempts: maxAttempts,
	}
}

const jobColumns = `id, type, target_url, priority, status, attempts, max_attempts,
	locked_at, locked_by, last_error, metadata, created_at, updated_at, completed_at`

// Enqueue inserts a job, or raises the priority of an existing non-terminal
// job for the same (type, target_url) and returns its id.
func (m *Manager) Enqueue(ctx context.Context, req models.JobRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	jobType, _ := models.ParseJobType(req.Type)
	priority := models.ClampPriority(req.Priority)
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = m.maxAttempts
	}

	metadata, err := json.Marshal(orEmptyMap(req.Metadata))
	if err != nil {
		return "", fmt.Errorf("failed to marshal job metadata: %w", err)
	}

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", models.NewDatabaseError("queue.enqueue.begin", err)
	}
	defer tx.Rollback()

	// Lock any live row for this target so a concurrent enqueue of the
	// same job serializes instead of violating the partial unique index.
	var existing struct {
		ID       string `db:"id"`
		Priority int    `db:"priority"`
	}
	err = tx.GetContext(ctx, &existing, `
		SELECT id, priority FROM jobs
		WHERE type = $1 AND target_url = $2 AND status IN ('queued', 'running')
		FOR UPDATE`, jobType, req.TargetURL)
	switch {
	case err == nil:
		if priority > existing.Priority {
			if _, err := tx.ExecContext(ctx, `
				UPDATE jobs SET priority = $1, updated_at = now() WHERE id = $2`,
				priority, existing.ID); err != nil {
				return "", models.NewDatabaseError("queue.enqueue.bump", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return "", models.NewDatabaseError("queue.enqueue.commit", err)
		}
		m.logger.Debug().
			Str("job_id", existing.ID).
			Str("target_url", req.TargetURL).
			Int("priority", priority).
			Msg("Job deduplicated onto existing queue entry")
		return existing.ID, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return "", models.NewDatabaseError("queue.enqueue.lookup", err)
	}

	id := common.NewID()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (id, type, target_url, priority, status, attempts, max_attempts, metadata)
		VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6)`,
		id, jobType, req.TargetURL, priority, maxAttempts, string(metadata)); err != nil {
		return "", models.NewDatabaseError("queue.enqueue.insert", err)
	}

	if err := tx.Commit(); err != nil {
		return "", models.NewDatabaseError("queue.enqueue.commit", err)
	}

	m.logger.Info().
		Str("job_id", id).
		Str("type", string(jobType)).
		Str("target_url", req.TargetURL).
		Int("priority", priority).
		Msg("Job enqueued")
	return id, nil
}

// Dequeue leases the best available job for workerID: the highest-priority
// oldest queued row, or a running row whose lease has lapsed. Returns nil
// when nothing is available.
func (m *Manager) Dequeue(ctx context.Context, workerID string) (*models.Job, error) {
	var job models.Job
	err := m.db.GetContext(ctx, &job, `
		UPDATE jobs SET
			status = 'running',
			locked_at = now(),
			locked_by = $1,
			attempts = attempts + 1,
			updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE (status = 'queued'
			   OR (status = 'running' AND locked_at < now() - ($2 * interval '1 second')))
			  AND attempts < max_attempts
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID, m.leaseTTL.Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewDatabaseError("queue.dequeue", err)
	}

	m.logger.Debug().
		Str("job_id", job.ID).
		Str("worker_id", workerID).
		Int("attempts", job.Attempts).
		Msg("Job leased")
	return &job, nil
}

// Complete marks a job completed and merges the worker result into its
// metadata. Completing an already-completed job is a no-op.
func (m *Manager) Complete(ctx context.Context, jobID string, result models.JobResult) error {
	resultJSON, err := json.Marshal(map[string]interface{}{
		"itemsProcessed": result.ItemsProcessed,
		"durationMs":     result.DurationMs,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}

	res, err := m.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = 'completed',
			completed_at = now(),
			locked_at = NULL,
			locked_by = NULL,
			metadata = metadata || $1::jsonb,
			updated_at = now()
		WHERE id = $2 AND status <> 'completed'`,
		string(resultJSON), jobID)
	if err != nil {
		return models.NewDatabaseError("queue.complete", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		// Either unknown or already completed; check which.
		exists, err := m.jobExists(ctx, jobID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrJobNotFound
		}
		return nil
	}

	m.logger.Info().
		Str("job_id", jobID).
		Int("items_processed", result.ItemsProcessed).
		Msg("Job completed")
	return nil
}

// Fail records an error against a job. The job returns to queued while
// attempts remain, otherwise it lands in failed.
func (m *Manager) Fail(ctx context.Context, jobID string, jobErr error) error {
	message := "unknown error"
	if jobErr != nil {
		message = jobErr.Error()
	}

	var status string
	err := m.db.GetContext(ctx, &status, `
		UPDATE jobs SET
			status = CASE WHEN attempts < max_attempts THEN 'queued' ELSE 'failed' END,
			locked_at = NULL,
			locked_by = NULL,
			last_error = $1,
			updated_at = now()
		WHERE id = $2 AND status = 'running'
		RETURNING status`,
		message, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		exists, checkErr := m.jobExists(ctx, jobID)
		if checkErr != nil {
			return checkErr
		}
		if !exists {
			return ErrJobNotFound
		}
		// Not running; nothing to fail.
		return nil
	}
	if err != nil {
		return models.NewDatabaseError("queue.fail", err)
	}

	m.logger.Warn().
		Str("job_id", jobID).
		Str("status", status).
		Str("error", message).
		Msg("Job failed attempt")
	return nil
}

// Requeue forces a failed job back to queued iff attempts remain. Admin
// surface only.
func (m *Manager) Requeue(ctx context.Context, jobID string) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = 'queued',
			locked_at = NULL,
			locked_by = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'failed' AND attempts < max_attempts`,
		jobID)
	if err != nil {
		return models.NewDatabaseError("queue.requeue", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		exists, checkErr := m.jobExists(ctx, jobID)
		if checkErr != nil {
			return checkErr
		}
		if !exists {
			return ErrJobNotFound
		}
		return ErrNotRequeueable
	}

	m.logger.Info().Str("job_id", jobID).Msg("Job requeued by admin")
	return nil
}

// ReleaseWorkerLocks returns every job leased by workerID to queued.
// Called on worker shutdown so in-flight work is picked up immediately
// instead of waiting out the lease. A job released on its final attempt
// is retired instead of requeued.
func (m *Manager) ReleaseWorkerLocks(ctx context.Context, workerID string) (int, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = CASE WHEN attempts < max_attempts THEN 'queued' ELSE 'failed' END,
			locked_at = NULL,
			locked_by = NULL,
			updated_at = now()
		WHERE locked_by = $1 AND status = 'running'`,
		workerID)
	if err != nil {
		return 0, models.NewDatabaseError("queue.release_locks", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		m.logger.Info().
			Str("worker_id", workerID).
			Int64("released", rows).
			Msg("Released worker locks")
	}
	return int(rows), nil
}

// SweepExpiredLeases resets running jobs whose lease lapsed. Expired work
// with attempts remaining is also reclaimable directly by Dequeue; the
// sweep keeps status counts honest and retires jobs that timed out on
// their final attempt.
func (m *Manager) SweepExpiredLeases(ctx context.Context) (int, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = CASE WHEN attempts < max_attempts THEN 'queued' ELSE 'failed' END,
			last_error = CASE WHEN attempts < max_attempts THEN last_error ELSE 'lease expired on final attempt' END,
			locked_at = NULL,
			locked_by = NULL,
			updated_at = now()
		WHERE status = 'running' AND locked_at < now() - ($1 * interval '1 second')`,
		m.leaseTTL.Seconds())
	if err != nil {
		return 0, models.NewDatabaseError("queue.sweep", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		m.logger.Warn().Int64("reset", rows).Msg("Reset expired job leases")
	}
	return int(rows), nil
}

// GetJob fetches a job by id.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := m.db.GetContext(ctx, &job,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, models.NewDatabaseError("queue.get_job", err)
	}
	return &job, nil
}

// Stats returns job counts by status for the admin surface.
func (m *Manager) Stats(ctx context.Context) (*models.JobStats, error) {
	var stats models.JobStats
	err := m.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued')    AS queued,
			COUNT(*) FILTER (WHERE status = 'running')   AS running,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'failed')    AS failed
		FROM jobs`)
	if err != nil {
		return nil, models.NewDatabaseError("queue.stats", err)
	}
	return &stats, nil
}

func (m *Manager) jobExists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	err := m.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, jobID)
	if err != nil {
		return false, models.NewDatabaseError("queue.exists", err)
	}
	return exists, nil
}

func orEmptyMap(m models.JSONMap) models.JSONMap {
	if m == nil {
		return models.JSONMap{}
	}
	return m
}
