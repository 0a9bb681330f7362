package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/learnhub/enrollment-be/internal/domain"
)

func marshalResult(result map[string]interface{}) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

const jobColumns = `
	job_id, queue, kind, payload, priority, status, worker_id,
	attempts_made, max_attempts, backoff_policy, backoff_base_ms,
	run_at, repeat_key, progress, result, last_error, created_at, updated_at
`

// Storage handles all database operations on the jobs table. The table is
// the source of truth for job state; RabbitMQ only carries delivery hints.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// InsertJob persists a new job row. A conflicting job_id that is still
// pending, scheduled or running makes this a no-op; a terminal job under
// the same id is reset for a fresh run. Returns whether a run was created.
func (s *Storage) InsertJob(ctx context.Context, job *domain.Job) (bool, error) {
	query := `
		INSERT INTO jobs (
			job_id, queue, kind, payload, priority, status,
			attempts_made, max_attempts, backoff_policy, backoff_base_ms,
			run_at, repeat_key, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			0, $7, $8, $9,
			$10, $11, NOW(), NOW()
		)
		ON CONFLICT (job_id) DO UPDATE
		SET queue = EXCLUDED.queue,
		    kind = EXCLUDED.kind,
		    payload = EXCLUDED.payload,
		    priority = EXCLUDED.priority,
		    status = EXCLUDED.status,
		    worker_id = NULL,
		    attempts_made = 0,
		    max_attempts = EXCLUDED.max_attempts,
		    backoff_policy = EXCLUDED.backoff_policy,
		    backoff_base_ms = EXCLUDED.backoff_base_ms,
		    run_at = EXCLUDED.run_at,
		    progress = 0,
		    result = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE jobs.status IN ($12, $13, $14)
	`

	result, err := s.db.ExecContext(ctx, query,
		job.JobID, job.Queue, job.Kind, job.Payload, job.Priority, job.Status,
		job.MaxAttempts, job.Backoff, job.BackoffBase,
		job.RunAt, job.RepeatKey,
		domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCanceled,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ClaimJob attempts to claim a job using optimistic locking
// (PENDING → RUNNING). Returns full job details on success, error if the
// job is already claimed or doesn't exist.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    attempts_made = attempts_made + 1,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING job_id, queue, kind, payload, priority, attempts_made,
		          max_attempts, backoff_policy, backoff_base_ms, repeat_key, progress
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query, domain.JobStatusRunning, workerID, jobID, domain.JobStatusPending).Scan(
		&job.JobID,
		&job.Queue,
		&job.Kind,
		&job.Payload,
		&job.Priority,
		&job.AttemptsMade,
		&job.MaxAttempts,
		&job.Backoff,
		&job.BackoffBase,
		&job.RepeatKey,
		&job.Progress,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusRunning
	job.WorkerID = &workerID

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("kind", string(job.Kind)),
	)

	return &job, nil
}

// CompleteJob marks a running job COMPLETED and stores its result.
func (s *Storage) CompleteJob(ctx context.Context, jobID string, result map[string]interface{}) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    progress = 100,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	resultJSON, err := marshalResult(result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, query, domain.JobStatusCompleted, resultJSON, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

// FailJob parks a job FAILED with its last error retained. Parked jobs are
// never silently dropped; they stay inspectable through the jobs API.
func (s *Storage) FailJob(ctx context.Context, jobID, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    last_error = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	_, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errorMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	s.logger.Warn("Job parked as failed",
		slog.String("job_id", jobID),
		slog.String("error", errorMsg),
	)

	return nil
}

// ScheduleRetry moves a running job back to SCHEDULED with a future run_at.
// The scheduler promotes it once due.
func (s *Storage) ScheduleRetry(ctx context.Context, jobID string, runAt time.Time, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    run_at = $2,
		    last_error = $3,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE job_id = $4
		  AND status = $5
	`

	_, err := s.db.ExecContext(ctx, query,
		domain.JobStatusScheduled, runAt, errorMsg, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	s.logger.Info("Job scheduled for retry",
		slog.String("job_id", jobID),
		slog.Time("run_at", runAt),
	)

	return nil
}

// RequeueStalledJobs recovers jobs stuck RUNNING after a worker crash. A
// live worker heartbeats while its handler runs, so a last_heartbeat_at
// older than the cutoff proves the claim is dead and no concurrent run
// exists. Jobs with attempts left go back to SCHEDULED, due immediately;
// exhausted ones are parked FAILED. Returns (requeued, parked).
func (s *Storage) RequeueStalledJobs(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	requeueQuery := `
		UPDATE jobs
		SET status = $1,
		    run_at = NOW(),
		    worker_id = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE status = $3
		  AND last_heartbeat_at < $4
		  AND attempts_made < max_attempts
	`

	requeueRes, err := s.db.ExecContext(ctx, requeueQuery,
		domain.JobStatusScheduled, "worker heartbeat lost", domain.JobStatusRunning, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to requeue stalled jobs: %w", err)
	}
	requeued, _ := requeueRes.RowsAffected()

	parkQuery := `
		UPDATE jobs
		SET status = $1,
		    worker_id = NULL,
		    last_error = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE status = $3
		  AND last_heartbeat_at < $4
		  AND attempts_made >= max_attempts
	`

	parkRes, err := s.db.ExecContext(ctx, parkQuery,
		domain.JobStatusFailed, "worker heartbeat lost; attempts exhausted", domain.JobStatusRunning, cutoff)
	if err != nil {
		return requeued, 0, fmt.Errorf("failed to park stalled jobs: %w", err)
	}
	parked, _ := parkRes.RowsAffected()

	return requeued, parked, nil
}

// RescheduleUndelivered flips a pending job whose delivery message could
// not be published back to SCHEDULED, due immediately, so the promoter
// republishes it on its next tick.
func (s *Storage) RescheduleUndelivered(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    run_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	_, err := s.db.ExecContext(ctx, query,
		domain.JobStatusScheduled, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to reschedule undelivered job: %w", err)
	}

	return nil
}

// DueJob is a scheduled job promoted to PENDING, ready for delivery.
type DueJob struct {
	JobID    string `db:"job_id"`
	Queue    string `db:"queue"`
	Priority int    `db:"priority"`
}

// PromoteDueJobs flips due SCHEDULED jobs to PENDING and returns them so
// the caller can publish delivery messages. SKIP LOCKED keeps concurrent
// scheduler ticks from promoting the same job twice.
func (s *Storage) PromoteDueJobs(ctx context.Context, limit int) ([]DueJob, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    run_at = NULL,
		    updated_at = NOW()
		WHERE job_id IN (
			SELECT job_id FROM jobs
			WHERE status = $2
			  AND run_at <= NOW()
			ORDER BY run_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id, queue, priority
	`

	var due []DueJob
	err := s.db.SelectContext(ctx, &due, query, domain.JobStatusPending, domain.JobStatusScheduled, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to promote due jobs: %w", err)
	}

	return due, nil
}

// CancelJob cancels a queued-but-not-started job. In-flight jobs run to
// completion; the conditional update refuses them.
func (s *Storage) CancelJob(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status IN ($3, $4)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusCanceled, jobID, domain.JobStatusPending, domain.JobStatusScheduled)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// UpdateJobProgress stores a 0-100 progress value for observability.
func (s *Storage) UpdateJobProgress(ctx context.Context, jobID string, progress int) error {
	query := `
		UPDATE jobs
		SET progress = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	_, err := s.db.ExecContext(ctx, query, progress, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}

	return nil
}

// UpdateJobHeartbeat updates the last_heartbeat_at timestamp for a running job
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be running)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	Queue    string
	Kind     string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is a (created_at, job_id) keyset pagination cursor.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns jobs matching the filter, newest first, fetching one
// extra row so the caller can detect whether more pages exist.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, filter.Queue)
		argIdx++
	}

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
