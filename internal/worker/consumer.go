package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// dispatchDeliveries listens to one queue's RabbitMQ deliveries and hands
// jobs to the worker pool.
func (w *Worker) dispatchDeliveries(ctx context.Context, queueName string, deliveries <-chan amqp.Delivery) {
	defer w.wg.Done()

	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
		slog.String("queue", queueName),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled",
				slog.String("queue", queueName),
			)
			return

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping",
				slog.String("queue", queueName),
			)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed",
					slog.String("queue", queueName),
				)
				return
			}

			var msg domain.JobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse message JSON",
					slog.String("queue", queueName),
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages are dropped, not requeued.
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if msg.JobID == "" {
				w.logger.Error("Delivery message missing job_id",
					slog.String("queue", queueName),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK message without job_id",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			jd := &jobDelivery{
				JobID:    msg.JobID,
				Queue:    queueName,
				delivery: delivery,
			}

			select {
			case w.jobsChan <- jd:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.String("queue", queueName),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				// NACK so the message can be reprocessed after restart.
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}
