package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/queue"
)

// processJob claims the job, runs its handler, and records the outcome in
// the jobs table. The returned bool tells the caller whether the RabbitMQ
// message should be requeued; once a job is claimed the answer is always
// no, because retries flow through the database schedule.
func (w *Worker) processJob(ctx context.Context, jd *jobDelivery) (bool, error) {
	job, err := w.storage.ClaimJob(ctx, jd.JobID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			// Another worker got it, or the job was canceled. Drop quietly.
			w.logger.Debug("Job not claimable, dropping delivery",
				slog.String("job_id", jd.JobID),
			)
			return false, nil
		}
		// Transient claim failure (DB hiccup) - requeue so another
		// worker can pick it up.
		return shouldRequeueJob(err), fmt.Errorf("claim failed: %w", err)
	}

	handler, ok := w.registry.Lookup(job.Kind)
	if !ok {
		msg := fmt.Sprintf("no handler registered for kind %s", job.Kind)
		if failErr := w.storage.FailJob(ctx, job.JobID, msg); failErr != nil {
			w.logger.Error("Failed to park job with unknown kind",
				slog.String("job_id", job.JobID),
				slog.String("error", failErr.Error()),
			)
		}
		return false, errors.New(msg)
	}

	jobCtx := ctx
	cancel := func() {}
	if w.jobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
	}
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.JobID, heartbeatDone)

	report := func(progress int) {
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		if err := w.storage.UpdateJobProgress(jobCtx, job.JobID, progress); err != nil {
			w.logger.Warn("Failed to update job progress",
				slog.String("job_id", job.JobID),
				slog.Int("progress", progress),
				slog.String("error", err.Error()),
			)
		}
	}

	started := time.Now()
	result, handlerErr := handler(jobCtx, job, report)
	close(heartbeatDone)

	if handlerErr != nil {
		w.recordFailure(ctx, job, handlerErr)
		return false, handlerErr
	}

	if err := w.storage.CompleteJob(ctx, job.JobID, result); err != nil {
		w.logger.Error("Failed to mark job completed",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("complete failed: %w", err)
	}

	w.logger.Info("Job completed",
		slog.String("job_id", job.JobID),
		slog.String("kind", string(job.Kind)),
		slog.Int("attempt", job.AttemptsMade),
		slog.Duration("duration", time.Since(started)),
	)

	return false, nil
}

// recordFailure either schedules a retry or parks the job, depending on
// whether the error is retryable and attempts remain.
func (w *Worker) recordFailure(ctx context.Context, job *domain.Job, handlerErr error) {
	retryable := domain.IsRetryable(handlerErr)
	attemptsLeft := job.AttemptsMade < job.MaxAttempts

	if retryable && attemptsLeft {
		delay := queue.NextRetryDelay(job.Backoff, time.Duration(job.BackoffBase)*time.Millisecond, job.AttemptsMade)
		runAt := time.Now().UTC().Add(delay)

		if err := w.storage.ScheduleRetry(ctx, job.JobID, runAt, handlerErr.Error()); err != nil {
			w.logger.Error("Failed to schedule retry",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		} else {
			w.logger.Warn("Job failed, retry scheduled",
				slog.String("job_id", job.JobID),
				slog.String("kind", string(job.Kind)),
				slog.Int("attempt", job.AttemptsMade),
				slog.Int("max_attempts", job.MaxAttempts),
				slog.Duration("delay", delay),
				slog.String("error", handlerErr.Error()),
			)
		}
		return
	}

	msg := handlerErr.Error()
	if retryable && !attemptsLeft {
		msg = fmt.Sprintf("max attempts exceeded (%d/%d): %s", job.AttemptsMade, job.MaxAttempts, msg)
	}

	if err := w.storage.FailJob(ctx, job.JobID, msg); err != nil {
		w.logger.Error("Failed to park failed job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}
}

// sendJobHeartbeat updates last_heartbeat_at periodically while a handler
// runs, so stalled workers can be detected from the jobs table.
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.storage.UpdateJobHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to send job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
