package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/queue"
)

// JobStore is the jobs-table slice the API reads and cancels through.
// *queue.Storage is the production implementation.
type JobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter queue.JobFilter) ([]domain.Job, error)
	CancelJob(ctx context.Context, jobID string) (bool, error)
}

// PaymentReader is the payments slice the webhook handler needs.
type PaymentReader interface {
	GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	MarkPaymentFailed(ctx context.Context, paymentID string) (bool, error)
}

// EnrollmentWriter marks an enrollment's payment failed on a failure
// webhook.
type EnrollmentWriter interface {
	SetEnrollmentPaymentFailed(ctx context.Context, enrollmentID string) error
}

// PaymentDispatcher enqueues verification jobs. *queue.PaymentQueue is
// the production implementation.
type PaymentDispatcher interface {
	EnqueueVerifyPayment(ctx context.Context, reference string) (string, error)
}

// SyncDispatcher enqueues admin force-sync jobs.
type SyncDispatcher interface {
	EnqueueForceSync(ctx context.Context, kind domain.JobKind) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Jobs          JobStore
	Payments      PaymentReader
	Enrollments   EnrollmentWriter
	PaymentQueue  PaymentDispatcher
	SyncQueue     SyncDispatcher
	WebhookSecret string
}

// JobHandler handles job inspection HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobStore
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}

// WebhookHandler handles payment gateway webhook deliveries
type WebhookHandler struct {
	logger       *slog.Logger
	payments     PaymentReader
	enrollments  EnrollmentWriter
	paymentQueue PaymentDispatcher
	secret       string
}

// NewWebhookHandler creates a new WebhookHandler instance
func NewWebhookHandler(deps *Dependencies) *WebhookHandler {
	return &WebhookHandler{
		logger:       deps.Logger,
		payments:     deps.Payments,
		enrollments:  deps.Enrollments,
		paymentQueue: deps.PaymentQueue,
		secret:       deps.WebhookSecret,
	}
}

// SyncHandler handles admin resynchronization requests
type SyncHandler struct {
	logger    *slog.Logger
	syncQueue SyncDispatcher
}

// NewSyncHandler creates a new SyncHandler instance
func NewSyncHandler(deps *Dependencies) *SyncHandler {
	return &SyncHandler{
		logger:    deps.Logger,
		syncQueue: deps.SyncQueue,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func rawJSON(s *string) json.RawMessage {
	if s == nil {
		return nil
	}
	return json.RawMessage(*s)
}
