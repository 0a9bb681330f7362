package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// SchedulerConfig holds the repeat schedules and the promoter cadence.
type SchedulerConfig struct {
	PromoteInterval time.Duration
	// StalledAfter is how long a RUNNING job may go without a heartbeat
	// before it is treated as orphaned by a dead worker and requeued.
	StalledAfter time.Duration
	PollSpec     string // cron spec for the pending-payment poller
	CleanupSpec  string // cron spec for the abandoned-payment cleanup
	PeriodicSpec string // cron spec for the periodic LMS sync
}

// DefaultStalledAfter is used when no stall threshold is configured. It
// must comfortably exceed the worker heartbeat interval.
const DefaultStalledAfter = 2 * time.Minute

// Promoter is the slice of the queue manager the promoter tick drives.
type Promoter interface {
	PromoteDue(ctx context.Context) error
	RequeueStalled(ctx context.Context, olderThan time.Duration) error
}

// Scheduler runs the repeatable jobs: it promotes due delayed/retry jobs,
// recovers jobs orphaned by dead workers, and enqueues the recurring
// poller, cleanup and periodic-sync passes. Repeat producers derive a
// deterministic per-tick job id, so overlapping schedulers in different
// processes enqueue each tick at most once.
type Scheduler struct {
	cron     *cron.Cron
	promoter Promoter
	payments *PaymentQueue
	sync     *SyncQueue
	logger   *slog.Logger
	config   SchedulerConfig
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(promoter Promoter, payments *PaymentQueue, syncQueue *SyncQueue, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		promoter: promoter,
		payments: payments,
		sync:     syncQueue,
		logger:   logger,
		config:   config,
	}
}

// Start registers all schedules and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	promote := s.config.PromoteInterval
	if promote <= 0 {
		promote = 5 * time.Second
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", promote), func() {
		s.promoteTick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register promoter: %w", err)
	}

	if err := s.addRepeat(ctx, s.config.PollSpec, domain.KindPollPendingPayments, func(ctx context.Context, jobID string) error {
		_, err := s.payments.EnqueuePollPendingPayments(ctx, jobID)
		return err
	}); err != nil {
		return err
	}

	if err := s.addRepeat(ctx, s.config.CleanupSpec, domain.KindCleanupAbandoned, func(ctx context.Context, jobID string) error {
		_, err := s.payments.EnqueueCleanupAbandoned(ctx, jobID)
		return err
	}); err != nil {
		return err
	}

	if err := s.addRepeat(ctx, s.config.PeriodicSpec, domain.KindPeriodicSync, func(ctx context.Context, jobID string) error {
		_, err := s.sync.EnqueuePeriodicSync(ctx, jobID)
		return err
	}); err != nil {
		return err
	}

	s.cron.Start()

	s.logger.Info("Scheduler started",
		slog.Duration("promote_interval", promote),
		slog.String("poll_spec", s.config.PollSpec),
		slog.String("cleanup_spec", s.config.CleanupSpec),
		slog.String("periodic_sync_spec", s.config.PeriodicSpec),
	)

	return nil
}

// promoteTick runs one promoter pass: due scheduled jobs are republished
// and jobs orphaned by a dead worker are put back on the schedule. The
// recovery half is what makes a crash mid-run self-heal - the row would
// otherwise sit RUNNING forever, invisible to both the broker and the
// idempotent re-enqueue paths.
func (s *Scheduler) promoteTick(ctx context.Context) {
	if err := s.promoter.PromoteDue(ctx); err != nil {
		s.logger.Error("Failed to promote due jobs",
			slog.Any("error", err),
		)
	}

	stalledAfter := s.config.StalledAfter
	if stalledAfter <= 0 {
		stalledAfter = DefaultStalledAfter
	}

	if err := s.promoter.RequeueStalled(ctx, stalledAfter); err != nil {
		s.logger.Error("Failed to requeue stalled jobs",
			slog.Any("error", err),
		)
	}
}

// Stop stops the cron runner and waits for in-flight producers.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) addRepeat(ctx context.Context, spec string, kind domain.JobKind, produce func(ctx context.Context, jobID string) error) error {
	if spec == "" {
		s.logger.Warn("Repeat schedule disabled - empty spec",
			slog.String("kind", string(kind)),
		)
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		jobID := TickJobID(kind, time.Now())
		if err := produce(ctx, jobID); err != nil {
			s.logger.Error("Failed to enqueue repeatable job",
				slog.String("kind", string(kind)),
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register schedule for %s: %w", kind, err)
	}

	return nil
}

// TickJobID derives the deterministic job id for one schedule tick. Ticks
// are truncated to the minute, the finest supported cron granularity.
func TickJobID(kind domain.JobKind, tick time.Time) string {
	return fmt.Sprintf("%s@%s", kind, tick.UTC().Truncate(time.Minute).Format("2006-01-02T15:04"))
}
