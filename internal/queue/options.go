package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnhub/enrollment-be/internal/domain"
)

const (
	// DefaultMaxAttempts bounds retries before a job is parked FAILED.
	DefaultMaxAttempts = 5

	// DefaultBackoffBase is the first retry delay for exponential backoff.
	DefaultBackoffBase = 30 * time.Second

	// maxRetryDelay caps exponential growth.
	maxRetryDelay = time.Hour
)

// Options control how a job is enqueued.
type Options struct {
	// JobID makes enqueue idempotent when supplied: re-enqueuing the same
	// id while the job is pending, scheduled or running is a no-op.
	JobID string

	// Priority within the queue, 0 (lowest) to 9 (highest).
	Priority int

	// Delay postpones the first run; the job sits SCHEDULED until due.
	Delay time.Duration

	MaxAttempts int
	Backoff     string // domain.BackoffFixed or domain.BackoffExponential
	BackoffBase time.Duration

	// RepeatKey tags jobs produced by a repeat schedule for inspection.
	RepeatKey string
}

// withDefaults fills zero values with the queue-wide defaults.
func (o Options) withDefaults() Options {
	if o.JobID == "" {
		o.JobID = uuid.New().String()
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff == "" {
		o.Backoff = domain.BackoffExponential
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.Priority < 0 {
		o.Priority = 0
	}
	if o.Priority > 9 {
		o.Priority = 9
	}
	return o
}

// NextRetryDelay computes the delay before the next attempt given the
// job's backoff policy and how many attempts have already run.
func NextRetryDelay(policy string, base time.Duration, attemptsMade int) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}

	switch policy {
	case domain.BackoffFixed:
		return base
	default:
		if attemptsMade < 1 {
			attemptsMade = 1
		}
		delay := base
		for i := 1; i < attemptsMade; i++ {
			delay *= 2
			if delay >= maxRetryDelay {
				return maxRetryDelay
			}
		}
		return delay
	}
}
