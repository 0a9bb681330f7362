package domain

import "time"

// Queue names. Each queue is a durable RabbitMQ priority queue backed by
// the jobs table.
const (
	QueuePayments      = "payments"
	QueueEnrollments   = "enrollments"
	QueueSync          = "sync"
	QueueNotifications = "notifications"
)

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusScheduled = "SCHEDULED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusCanceled  = "CANCELED"
)

// Backoff policy constants
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Job represents a durable job row. The jobs table is the source of
// truth; RabbitMQ only carries {job_id} delivery messages.
type Job struct {
	JobID        string     `db:"job_id"`
	Queue        string     `db:"queue"`
	Kind         JobKind    `db:"kind"`
	Payload      string     `db:"payload"` // JSON
	Priority     int        `db:"priority"`
	Status       string     `db:"status"`
	WorkerID     *string    `db:"worker_id"`
	AttemptsMade int        `db:"attempts_made"`
	MaxAttempts  int        `db:"max_attempts"`
	Backoff      string     `db:"backoff_policy"`
	BackoffBase  int64      `db:"backoff_base_ms"`
	RunAt        *time.Time `db:"run_at"`
	RepeatKey    *string    `db:"repeat_key"`
	Progress     int        `db:"progress"`
	Result       *string    `db:"result"` // JSON, set when the job completes
	LastError    *string    `db:"last_error"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// JobMessage is the delivery envelope consumed from RabbitMQ.
type JobMessage struct {
	JobID string `json:"job_id"`
}
