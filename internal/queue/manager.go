package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/shared/rabbitmq"
)

const promoteBatchSize = 200

// Enqueuer is the contract the dispatch façades build on. *Manager is the
// production implementation; tests substitute recorders.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, kind domain.JobKind, payload interface{}, opts Options) (string, error)
}

// Manager owns the durable queues: it persists job rows and publishes
// delivery messages. Constructed once at startup and passed by reference
// to every component that enqueues work.
type Manager struct {
	storage *Storage
	rabbit  *rabbitmq.Client
	logger  *slog.Logger
}

// NewManager creates a new queue Manager
func NewManager(storage *Storage, rabbit *rabbitmq.Client, logger *slog.Logger) *Manager {
	return &Manager{
		storage: storage,
		rabbit:  rabbit,
		logger:  logger,
	}
}

// Enqueue persists a job and, unless delayed, publishes its delivery
// message. A caller-supplied JobID makes the call idempotent: a duplicate
// of a pending/scheduled/running job is a no-op returning the same id.
func (m *Manager) Enqueue(ctx context.Context, queue string, kind domain.JobKind, payload interface{}, opts Options) (string, error) {
	opts = opts.withDefaults()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &domain.Job{
		JobID:       opts.JobID,
		Queue:       queue,
		Kind:        kind,
		Payload:     string(body),
		Priority:    opts.Priority,
		Status:      domain.JobStatusPending,
		MaxAttempts: opts.MaxAttempts,
		Backoff:     opts.Backoff,
		BackoffBase: opts.BackoffBase.Milliseconds(),
	}

	if opts.RepeatKey != "" {
		job.RepeatKey = &opts.RepeatKey
	}

	if opts.Delay > 0 {
		runAt := time.Now().Add(opts.Delay)
		job.Status = domain.JobStatusScheduled
		job.RunAt = &runAt
	}

	created, err := m.storage.InsertJob(ctx, job)
	if err != nil {
		return "", err
	}

	if !created {
		m.logger.Debug("Job already enqueued, skipping",
			slog.String("job_id", opts.JobID),
			slog.String("kind", string(kind)),
		)
		return opts.JobID, nil
	}

	m.logger.Info("Job enqueued",
		slog.String("job_id", opts.JobID),
		slog.String("queue", queue),
		slog.String("kind", string(kind)),
		slog.Int("priority", opts.Priority),
		slog.Duration("delay", opts.Delay),
	)

	// Delayed jobs wait for the scheduler to promote them.
	if opts.Delay > 0 {
		return opts.JobID, nil
	}

	if err := m.publishDelivery(ctx, queue, opts.JobID, opts.Priority); err != nil {
		// The row exists; hand it to the promoter so the delivery is
		// retried on its next tick instead of being lost.
		m.logger.Error("Failed to publish delivery message",
			slog.String("job_id", opts.JobID),
			slog.Any("error", err),
		)
		if reschedErr := m.storage.RescheduleUndelivered(ctx, opts.JobID); reschedErr != nil {
			m.logger.Error("Failed to reschedule undelivered job",
				slog.String("job_id", opts.JobID),
				slog.Any("error", reschedErr),
			)
		}
		return opts.JobID, err
	}

	return opts.JobID, nil
}

// Cancel removes a queued-but-not-started job by its job_id.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	canceled, err := m.storage.CancelJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	if canceled {
		m.logger.Info("Job canceled",
			slog.String("job_id", jobID),
		)
	}

	return canceled, nil
}

// PromoteDue moves due scheduled jobs (delayed first runs and backoff
// retries) to PENDING and publishes their delivery messages.
func (m *Manager) PromoteDue(ctx context.Context) error {
	due, err := m.storage.PromoteDueJobs(ctx, promoteBatchSize)
	if err != nil {
		return err
	}

	for _, job := range due {
		if err := m.publishDelivery(ctx, job.Queue, job.JobID, job.Priority); err != nil {
			m.logger.Error("Failed to publish promoted job",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
			if reschedErr := m.storage.RescheduleUndelivered(ctx, job.JobID); reschedErr != nil {
				m.logger.Error("Failed to reschedule undelivered job",
					slog.String("job_id", job.JobID),
					slog.Any("error", reschedErr),
				)
			}
			continue
		}

		m.logger.Debug("Promoted scheduled job",
			slog.String("job_id", job.JobID),
			slog.String("queue", job.Queue),
		)
	}

	return nil
}

// RequeueStalled recovers jobs whose worker died mid-run. Without it a
// crashed VERIFY_PAYMENT would stay RUNNING forever: the broker's
// redelivery cannot reclaim it and the poller's re-enqueue is a no-op
// against a live job id.
func (m *Manager) RequeueStalled(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)

	requeued, parked, err := m.storage.RequeueStalledJobs(ctx, cutoff)
	if err != nil {
		return err
	}

	if requeued > 0 || parked > 0 {
		m.logger.Warn("Recovered stalled jobs",
			slog.Int64("requeued", requeued),
			slog.Int64("parked", parked),
			slog.Duration("older_than", olderThan),
		)
	}

	return nil
}

func (m *Manager) publishDelivery(ctx context.Context, queue, jobID string, priority int) error {
	msg, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal delivery message: %w", err)
	}

	return m.rabbit.PublishWithRetry(ctx, queue, msg, uint8(priority))
}
