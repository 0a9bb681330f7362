package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when attempting to claim a job that's already claimed
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrMaxAttemptsExceeded is returned when a job has exhausted its allowed attempts
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

	// ErrUnknownJobKind is returned when no handler is registered for a job kind
	ErrUnknownJobKind = errors.New("unknown job kind")

	// Data-integrity failures. These indicate a corrupted trigger, not a
	// transient condition, and are never retried.
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrCourseNotFound     = errors.New("course not found")
)

// RetryableError wraps transient errors (gateway/LMS network failures,
// timeouts, 5xx responses) that should trigger a backoff retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) is transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
