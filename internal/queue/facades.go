package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// Typed façades over the queue manager. Each domain gets a thin service
// with fixed queue names, priorities and retry policies per job kind, so
// processors never deal with raw enqueue options.

// PaymentQueue enqueues payment reconciliation work.
type PaymentQueue struct {
	enq Enqueuer
}

// NewPaymentQueue creates the payment dispatch façade
func NewPaymentQueue(enq Enqueuer) *PaymentQueue {
	return &PaymentQueue{enq: enq}
}

// EnqueueVerifyPayment enqueues verification of one payment by gateway
// reference. The job id is derived from the reference so the webhook and
// the poller cannot race a duplicate verification into the queue.
func (q *PaymentQueue) EnqueueVerifyPayment(ctx context.Context, reference string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueuePayments, domain.KindVerifyPayment,
		domain.VerifyPaymentPayload{Reference: reference},
		Options{
			JobID:    fmt.Sprintf("%s:%s", domain.KindVerifyPayment, reference),
			Priority: 8,
		},
	)
}

// EnqueuePollPendingPayments enqueues one poller pass. jobID is the
// deterministic per-tick id supplied by the repeat scheduler.
func (q *PaymentQueue) EnqueuePollPendingPayments(ctx context.Context, jobID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueuePayments, domain.KindPollPendingPayments,
		struct{}{},
		Options{
			JobID:       jobID,
			Priority:    4,
			MaxAttempts: 3,
			Backoff:     domain.BackoffFixed,
			BackoffBase: time.Minute,
			RepeatKey:   string(domain.KindPollPendingPayments),
		},
	)
}

// EnqueueCleanupAbandoned enqueues one abandoned-payment cleanup pass.
func (q *PaymentQueue) EnqueueCleanupAbandoned(ctx context.Context, jobID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueuePayments, domain.KindCleanupAbandoned,
		struct{}{},
		Options{
			JobID:       jobID,
			Priority:    2,
			MaxAttempts: 3,
			Backoff:     domain.BackoffFixed,
			BackoffBase: 5 * time.Minute,
			RepeatKey:   string(domain.KindCleanupAbandoned),
		},
	)
}

// EnrollmentQueue enqueues activation and progress work.
type EnrollmentQueue struct {
	enq Enqueuer
}

// NewEnrollmentQueue creates the enrollment dispatch façade
func NewEnrollmentQueue(enq Enqueuer) *EnrollmentQueue {
	return &EnrollmentQueue{enq: enq}
}

// EnqueueCompleteEnrollment enqueues the activation sequence at the
// highest priority: a paying user is waiting for access.
func (q *EnrollmentQueue) EnqueueCompleteEnrollment(ctx context.Context, enrollmentID, paymentReference string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueEnrollments, domain.KindCompleteEnrollment,
		domain.CompleteEnrollmentPayload{
			EnrollmentID:     enrollmentID,
			PaymentReference: paymentReference,
		},
		Options{
			JobID:    fmt.Sprintf("%s:%s", domain.KindCompleteEnrollment, enrollmentID),
			Priority: 9,
		},
	)
}

// EnqueueInitializeProgress enqueues progress-record initialization.
func (q *EnrollmentQueue) EnqueueInitializeProgress(ctx context.Context, enrollmentID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueEnrollments, domain.KindInitializeProgress,
		domain.EnrollmentRefPayload{EnrollmentID: enrollmentID},
		Options{
			JobID:    fmt.Sprintf("%s:%s", domain.KindInitializeProgress, enrollmentID),
			Priority: 7,
		},
	)
}

// EnqueueCalculateProgress enqueues a progress recalculation.
func (q *EnrollmentQueue) EnqueueCalculateProgress(ctx context.Context, enrollmentID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueEnrollments, domain.KindCalculateProgress,
		domain.EnrollmentRefPayload{EnrollmentID: enrollmentID},
		Options{Priority: 5},
	)
}

// EnqueueSyncCourseCompletion enqueues the best-effort skill/credential
// sync at low priority: it is not required for the student's access.
func (q *EnrollmentQueue) EnqueueSyncCourseCompletion(ctx context.Context, enrollmentID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueEnrollments, domain.KindSyncCourseCompletion,
		domain.EnrollmentRefPayload{EnrollmentID: enrollmentID},
		Options{
			JobID:    fmt.Sprintf("%s:%s", domain.KindSyncCourseCompletion, enrollmentID),
			Priority: 2,
		},
	)
}

// EnqueueCreateLMSAccount enqueues LMS account creation for a user.
func (q *EnrollmentQueue) EnqueueCreateLMSAccount(ctx context.Context, userID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueEnrollments, domain.KindCreateLMSAccount,
		domain.UserRefPayload{UserID: userID},
		Options{
			JobID:    fmt.Sprintf("%s:%s", domain.KindCreateLMSAccount, userID),
			Priority: 5,
		},
	)
}

// EnqueueCreateIncubatorAccount enqueues incubator account creation.
func (q *EnrollmentQueue) EnqueueCreateIncubatorAccount(ctx context.Context, userID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueEnrollments, domain.KindCreateIncubatorAccount,
		domain.UserRefPayload{UserID: userID},
		Options{
			JobID:    fmt.Sprintf("%s:%s", domain.KindCreateIncubatorAccount, userID),
			Priority: 5,
		},
	)
}

// EnqueueSyncIncubatorProfile enqueues an incubator profile refresh.
func (q *EnrollmentQueue) EnqueueSyncIncubatorProfile(ctx context.Context, userID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueEnrollments, domain.KindSyncIncubatorProfile,
		domain.UserRefPayload{UserID: userID},
		Options{Priority: 3},
	)
}

// SyncQueue enqueues LMS reconciliation passes.
type SyncQueue struct {
	enq Enqueuer
}

// NewSyncQueue creates the sync dispatch façade
func NewSyncQueue(enq Enqueuer) *SyncQueue {
	return &SyncQueue{enq: enq}
}

// EnqueueInitialSync enqueues the run-once boot reconciliation.
func (q *SyncQueue) EnqueueInitialSync(ctx context.Context) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueSync, domain.KindInitialSync,
		struct{}{},
		Options{
			JobID:    string(domain.KindInitialSync),
			Priority: 6,
		},
	)
}

// EnqueuePeriodicSync enqueues one periodic reconciliation pass.
func (q *SyncQueue) EnqueuePeriodicSync(ctx context.Context, jobID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueSync, domain.KindPeriodicSync,
		struct{}{},
		Options{
			JobID:       jobID,
			Priority:    2,
			MaxAttempts: 1,
			RepeatKey:   string(domain.KindPeriodicSync),
		},
	)
}

// EnqueueUserEnrollmentSync enqueues an immediate per-user sync, bypassing
// the periodic cadence right after a registration event.
func (q *SyncQueue) EnqueueUserEnrollmentSync(ctx context.Context, userID string) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueSync, domain.KindSyncUserEnrollment,
		domain.UserRefPayload{UserID: userID},
		Options{
			JobID:    fmt.Sprintf("%s:%s", domain.KindSyncUserEnrollment, userID),
			Priority: 7,
		},
	)
}

// EnqueueForceSync enqueues an administrator-triggered full resync of one
// entity scope (users, courses or enrollments).
func (q *SyncQueue) EnqueueForceSync(ctx context.Context, kind domain.JobKind) (string, error) {
	switch kind {
	case domain.KindForceSyncUsers, domain.KindForceSyncCourses, domain.KindForceSyncEnrollments:
	default:
		return "", fmt.Errorf("not a force-sync kind: %s", kind)
	}

	return q.enq.Enqueue(ctx, domain.QueueSync, kind,
		struct{}{},
		Options{
			JobID:    string(kind),
			Priority: 5,
		},
	)
}

// NotificationQueue enqueues outbound notification work.
type NotificationQueue struct {
	enq Enqueuer
}

// NewNotificationQueue creates the notification dispatch façade
func NewNotificationQueue(enq Enqueuer) *NotificationQueue {
	return &NotificationQueue{enq: enq}
}

// EnqueueEmail queues a templated email.
func (q *NotificationQueue) EnqueueEmail(ctx context.Context, payload domain.SendEmailPayload) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueNotifications, domain.KindSendEmail,
		payload,
		Options{Priority: 3},
	)
}

// EnqueueEmailDelayed queues a templated email to be sent later, e.g. a
// scheduled reminder. Delayed jobs stay cancellable until promoted.
func (q *NotificationQueue) EnqueueEmailDelayed(ctx context.Context, payload domain.SendEmailPayload, delay time.Duration) (string, error) {
	return q.enq.Enqueue(ctx, domain.QueueNotifications, domain.KindSendEmail,
		payload,
		Options{Priority: 3, Delay: delay},
	)
}
