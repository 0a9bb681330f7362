package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// spawnWorkerPool starts the configured number of goroutines pulling jobs
// from the shared channel.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool started",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)
}

func (w *Worker) workerLoop(ctx context.Context, slot int) {
	defer w.wg.Done()

	w.logger.Debug("Worker goroutine started", slog.Int("slot", slot))

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker goroutine stopped - context canceled", slog.Int("slot", slot))
			return

		case <-w.stopChan:
			w.logger.Debug("Worker goroutine stopped - worker stopping", slog.Int("slot", slot))
			return

		case jd, ok := <-w.jobsChan:
			if !ok {
				return
			}

			requeue, err := w.processJob(ctx, jd)
			if err != nil {
				w.logger.Error("Job processing failed",
					slog.String("job_id", jd.JobID),
					slog.String("queue", jd.Queue),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)
			}

			w.acknowledge(jd, requeue, err)
		}
	}
}

// acknowledge settles the RabbitMQ delivery after processJob has recorded the
// outcome in the jobs table. Only claim-path failures requeue: once a job was
// claimed, its retry is scheduled through the database, so the message is done.
func (w *Worker) acknowledge(jd *jobDelivery, requeue bool, procErr error) {
	if procErr != nil && requeue {
		if nackErr := jd.delivery.Nack(false, true); nackErr != nil {
			w.logger.Error("Failed to NACK message for requeue",
				slog.String("job_id", jd.JobID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := jd.delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", jd.JobID),
			slog.String("error", ackErr.Error()),
		)
	}
}

// shouldRequeueJob reports whether a claim-path error warrants putting the
// message back on the queue. Errors raised after a successful claim never
// requeue - the job row already carries the retry schedule or failure.
func shouldRequeueJob(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrJobNotFound) || errors.Is(err, domain.ErrJobAlreadyClaimed) {
		return false
	}
	return true
}
