package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/learnhub/enrollment-be/internal/config"
	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/gateway/paystack"
	"github.com/learnhub/enrollment-be/internal/incubator"
	"github.com/learnhub/enrollment-be/internal/lms/moodle"
	"github.com/learnhub/enrollment-be/internal/mailer"
	"github.com/learnhub/enrollment-be/internal/queue"
	"github.com/learnhub/enrollment-be/internal/realtime"
	"github.com/learnhub/enrollment-be/internal/store"
	"github.com/learnhub/enrollment-be/internal/worker"
	"github.com/learnhub/enrollment-be/internal/worker/processors"
	"github.com/learnhub/enrollment-be/shared/logger"
	"github.com/learnhub/enrollment-be/shared/postgresql"
	"github.com/learnhub/enrollment-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	notifier, err := realtime.NewNotifier(&realtime.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		Channel:  cfg.Redis.Channel,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize realtime notifier: %w", err)
	}

	appLogger.Info("Realtime channel established")

	// Storage layers share the one connection pool.
	jobStorage := queue.NewStorage(dbClient.GetDB(), appLogger.Logger)
	dataStore := store.NewStorage(dbClient, appLogger.Logger)

	// Queue manager and dispatch façades.
	manager := queue.NewManager(jobStorage, rabbitClient, appLogger.Logger)
	paymentQueue := queue.NewPaymentQueue(manager)
	enrollmentQueue := queue.NewEnrollmentQueue(manager)
	syncQueue := queue.NewSyncQueue(manager)
	notificationQueue := queue.NewNotificationQueue(manager)

	// External system clients.
	gatewayClient := paystack.NewClient(&paystack.Config{
		BaseURL:   cfg.Gateway.BaseURL,
		SecretKey: cfg.Gateway.SecretKey,
		Timeout:   cfg.Gateway.Timeout,
	}, appLogger.Logger)

	lmsClient := moodle.NewClient(&moodle.Config{
		BaseURL: cfg.LMS.BaseURL,
		Token:   cfg.LMS.Token,
		Timeout: cfg.LMS.Timeout,
	}, appLogger.Logger)

	incubatorClient := incubator.NewClient(&incubator.Config{
		BaseURL: cfg.Incubator.BaseURL,
		APIKey:  cfg.Incubator.APIKey,
		Timeout: cfg.Incubator.Timeout,
	}, appLogger.Logger)

	mailClient := mailer.NewMailer(&mailer.Config{
		APIKey:    cfg.Email.APIKey,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
	}, appLogger.Logger)

	// Handler registry.
	registry := worker.NewRegistry()
	procs := processors.New(&processors.Config{
		Logger:            appLogger.Logger,
		Payments:          dataStore,
		Enrollments:       dataStore,
		Progress:          dataStore,
		Users:             dataStore,
		Courses:           dataStore,
		Gateway:           gatewayClient,
		LMS:               lmsClient,
		Incubator:         incubatorClient,
		Notifier:          notifier,
		Mailer:            mailClient,
		EnrollmentQueue:   enrollmentQueue,
		PaymentQueue:      paymentQueue,
		NotificationQueue: notificationQueue,
		PendingAge:        cfg.Reconciliation.PendingAge,
		AbandonAge:        cfg.Reconciliation.AbandonAge,
	})
	if err := procs.RegisterAll(registry); err != nil {
		return fmt.Errorf("failed to register job handlers: %w", err)
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.Logger,
		QueueStorage:      jobStorage,
		RabbitClient:      rabbitClient,
		Registry:          registry,
		Queues:            allQueues(),
		Concurrency:       cfg.Worker.Concurrency,
		PrefetchCount:     cfg.Worker.PrefetchCount,
		JobTimeout:        cfg.Worker.JobTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})

	scheduler := queue.NewScheduler(manager, paymentQueue, syncQueue, queue.SchedulerConfig{
		PromoteInterval: cfg.Reconciliation.PromoteInterval,
		StalledAfter:    cfg.Reconciliation.StalledAfter,
		PollSpec:        cfg.Reconciliation.PollSpec,
		CleanupSpec:     cfg.Reconciliation.CleanupSpec,
		PeriodicSpec:    cfg.Reconciliation.PeriodicSpec,
	}, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// Catch up with the external state accumulated while we were down.
	if jobID, err := syncQueue.EnqueueInitialSync(ctx); err != nil {
		appLogger.Warn("Failed to enqueue initial sync",
			slog.String("error", err.Error()),
		)
	} else {
		appLogger.Info("Initial sync queued", slog.String("job_id", jobID))
	}

	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	cleanup := func() {
		if notifier != nil {
			notifier.Close()
		}
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

func allQueues() []string {
	return []string{
		domain.QueuePayments,
		domain.QueueEnrollments,
		domain.QueueSync,
		domain.QueueNotifications,
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client with the pipeline queues
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	queues := make([]rabbitmq.QueueSpec, 0, len(allQueues()))
	for _, name := range allQueues() {
		queues = append(queues, rabbitmq.QueueSpec{
			Name:        name,
			MaxPriority: 10,
		})
	}

	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		Queues:             queues,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
