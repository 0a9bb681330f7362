package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePromoter struct {
	promoteCalls int
	promoteErr   error

	requeueCalls     int
	requeueOlderThan []time.Duration
	requeueErr       error
}

func (f *fakePromoter) PromoteDue(_ context.Context) error {
	f.promoteCalls++
	return f.promoteErr
}

func (f *fakePromoter) RequeueStalled(_ context.Context, olderThan time.Duration) error {
	f.requeueCalls++
	f.requeueOlderThan = append(f.requeueOlderThan, olderThan)
	return f.requeueErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_PromoteTickRecoversStalledJobs(t *testing.T) {
	promoter := &fakePromoter{}
	s := NewScheduler(promoter, nil, nil, SchedulerConfig{
		StalledAfter: 90 * time.Second,
	}, testLogger())

	s.promoteTick(context.Background())

	// Every promoter pass both republishes due jobs and sweeps for jobs
	// orphaned by a dead worker, so a crash mid-run heals without manual
	// intervention.
	assert.Equal(t, 1, promoter.promoteCalls)
	require.Equal(t, 1, promoter.requeueCalls)
	assert.Equal(t, 90*time.Second, promoter.requeueOlderThan[0])
}

func TestScheduler_PromoteTickDefaultsStallThreshold(t *testing.T) {
	promoter := &fakePromoter{}
	s := NewScheduler(promoter, nil, nil, SchedulerConfig{}, testLogger())

	s.promoteTick(context.Background())

	require.Equal(t, 1, promoter.requeueCalls)
	assert.Equal(t, DefaultStalledAfter, promoter.requeueOlderThan[0])
}

func TestScheduler_PromoteFailureStillSweepsStalled(t *testing.T) {
	promoter := &fakePromoter{promoteErr: assert.AnError}
	s := NewScheduler(promoter, nil, nil, SchedulerConfig{}, testLogger())

	s.promoteTick(context.Background())

	assert.Equal(t, 1, promoter.promoteCalls)
	assert.Equal(t, 1, promoter.requeueCalls, "recovery must not depend on promotion succeeding")
}
