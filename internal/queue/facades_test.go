package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/mailer"
)

type enqueueCall struct {
	queue   string
	kind    domain.JobKind
	payload interface{}
	opts    Options
}

type fakeEnqueuer struct {
	calls []enqueueCall
	err   error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, queue string, kind domain.JobKind, payload interface{}, opts Options) (string, error) {
	f.calls = append(f.calls, enqueueCall{queue: queue, kind: kind, payload: payload, opts: opts})
	if f.err != nil {
		return "", f.err
	}
	return opts.JobID, nil
}

func (f *fakeEnqueuer) last(t *testing.T) enqueueCall {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func TestPaymentQueue_EnqueueVerifyPayment(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewPaymentQueue(enq)

	jobID, err := q.EnqueueVerifyPayment(context.Background(), "ref-42")
	require.NoError(t, err)

	call := enq.last(t)
	assert.Equal(t, domain.QueuePayments, call.queue)
	assert.Equal(t, domain.KindVerifyPayment, call.kind)
	assert.Equal(t, "payment.verify:ref-42", jobID)
	assert.Equal(t, 8, call.opts.Priority)

	// Same reference, same job id: webhook and poller cannot race a
	// duplicate verification into the queue.
	jobID2, err := q.EnqueueVerifyPayment(context.Background(), "ref-42")
	require.NoError(t, err)
	assert.Equal(t, jobID, jobID2)
}

func TestEnrollmentQueue_EnqueueCompleteEnrollment(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewEnrollmentQueue(enq)

	jobID, err := q.EnqueueCompleteEnrollment(context.Background(), "enr-1", "ref-42")
	require.NoError(t, err)

	call := enq.last(t)
	assert.Equal(t, domain.QueueEnrollments, call.queue)
	assert.Equal(t, domain.KindCompleteEnrollment, call.kind)
	assert.Equal(t, 9, call.opts.Priority, "activation outranks everything else in the queue")
	assert.Contains(t, jobID, "enr-1")

	payload, ok := call.payload.(domain.CompleteEnrollmentPayload)
	require.True(t, ok)
	assert.Equal(t, "enr-1", payload.EnrollmentID)
	assert.Equal(t, "ref-42", payload.PaymentReference)
}

func TestSyncQueue_EnqueueForceSync(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewSyncQueue(enq)

	t.Run("accepts force-sync kinds", func(t *testing.T) {
		for _, kind := range []domain.JobKind{
			domain.KindForceSyncUsers,
			domain.KindForceSyncCourses,
			domain.KindForceSyncEnrollments,
		} {
			jobID, err := q.EnqueueForceSync(context.Background(), kind)
			require.NoError(t, err)
			assert.Equal(t, string(kind), jobID)
		}
	})

	t.Run("rejects other kinds", func(t *testing.T) {
		_, err := q.EnqueueForceSync(context.Background(), domain.KindVerifyPayment)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a force-sync kind")
	})
}

func TestSyncQueue_InitialSyncUsesFixedJobID(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewSyncQueue(enq)

	a, err := q.EnqueueInitialSync(context.Background())
	require.NoError(t, err)
	b, err := q.EnqueueInitialSync(context.Background())
	require.NoError(t, err)

	// Two workers booting at once collapse onto one sync run.
	assert.Equal(t, a, b)
}

func TestPaymentQueue_RepeatJobsUseSchedulerTickID(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewPaymentQueue(enq)

	tick := TickJobID(domain.KindPollPendingPayments, time.Now())
	_, err := q.EnqueuePollPendingPayments(context.Background(), tick)
	require.NoError(t, err)

	call := enq.last(t)
	assert.Equal(t, tick, call.opts.JobID)
	assert.Equal(t, string(domain.KindPollPendingPayments), call.opts.RepeatKey)
	assert.Equal(t, domain.BackoffFixed, call.opts.Backoff)
}

func TestNotificationQueue_EnqueueEmailDelayed(t *testing.T) {
	enq := &fakeEnqueuer{}
	q := NewNotificationQueue(enq)

	payload := domain.SendEmailPayload{
		To:       "student@example.com",
		Template: mailer.TemplateEnrollmentConfirmed,
	}
	_, err := q.EnqueueEmailDelayed(context.Background(), payload, 10*time.Minute)
	require.NoError(t, err)

	call := enq.last(t)
	assert.Equal(t, domain.QueueNotifications, call.queue)
	assert.Equal(t, 10*time.Minute, call.opts.Delay)
}
