package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/learnhub/enrollment-be/internal/queue"
	"github.com/learnhub/enrollment-be/shared/rabbitmq"
)

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	QueueStorage      *queue.Storage
	RabbitClient      *rabbitmq.Client
	Registry          *Registry
	Queues            []string
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Worker pulls jobs from the durable queues and runs them through the
// registered handlers. Multiple worker processes share the queues;
// correctness comes from the per-entity idempotency guards in the
// processors, not from mutual exclusion.
type Worker struct {
	logger            *slog.Logger
	storage           *queue.Storage
	rabbitClient      *rabbitmq.Client
	registry          *Registry
	queues            []string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	workerID          string
	jobsChan          chan *jobDelivery
	stopChan          chan struct{}
	wg                sync.WaitGroup
}

// jobDelivery pairs a queue message with its AMQP delivery for ack/nack.
type jobDelivery struct {
	JobID    string
	Queue    string
	delivery amqp.Delivery
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Worker{
		logger:            cfg.Logger,
		storage:           cfg.QueueStorage,
		rabbitClient:      cfg.RabbitClient,
		registry:          cfg.Registry,
		queues:            cfg.Queues,
		concurrency:       cfg.Concurrency,
		prefetchCount:     cfg.PrefetchCount,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		workerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		jobsChan:          make(chan *jobDelivery),
		stopChan:          make(chan struct{}),
	}
}

// Start begins consuming and processing jobs until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("queues", len(w.queues)),
		slog.Int("handlers", len(w.registry.Kinds())),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	if err := w.rabbitClient.Qos(w.prefetchCount); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	for _, queueName := range w.queues {
		deliveries, err := w.rabbitClient.Consume(queueName, fmt.Sprintf("%s-%s", w.workerID, queueName))
		if err != nil {
			return fmt.Errorf("failed to start consumer for %s: %w", queueName, err)
		}

		w.wg.Add(1)
		go w.dispatchDeliveries(ctx, queueName, deliveries)
	}

	w.spawnWorkerPool(ctx)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
