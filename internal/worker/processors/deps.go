package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/gateway/paystack"
	"github.com/learnhub/enrollment-be/internal/incubator"
	"github.com/learnhub/enrollment-be/internal/lms/moodle"
	"github.com/learnhub/enrollment-be/internal/worker"
)

// Narrow store contracts, satisfied by *store.Storage. Tests substitute
// hand-rolled fakes.

// PaymentStore is the payments slice of the portal database.
type PaymentStore interface {
	GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error)
	MarkPaymentSucceeded(ctx context.Context, paymentID, method string, paidAt time.Time) (bool, error)
	MarkPaymentFailed(ctx context.Context, paymentID string) (bool, error)
	CancelPayment(ctx context.Context, paymentID string) (bool, error)
	ListPendingPaymentsBefore(ctx context.Context, cutoff time.Time) ([]domain.Payment, error)
}

// EnrollmentStore is the enrollments slice of the portal database.
type EnrollmentStore interface {
	GetEnrollment(ctx context.Context, enrollmentID string) (*domain.Enrollment, error)
	GetEnrollmentByUserAndCourse(ctx context.Context, userID, courseID string) (*domain.Enrollment, error)
	MarkEnrollmentEnrolled(ctx context.Context, enrollmentID string) (bool, error)
	MarkEnrollmentCompleted(ctx context.Context, enrollmentID string) (bool, error)
	SetEnrollmentPaymentFailed(ctx context.Context, enrollmentID string) error
	DropEnrollment(ctx context.Context, enrollmentID string) (bool, error)
	UpdateProgressPercentage(ctx context.Context, enrollmentID string, percentage int) error
	UpsertEnrollmentFromLMS(ctx context.Context, enrollment *domain.Enrollment) error
}

// ProgressStore covers per-module progress records.
type ProgressStore interface {
	EnsureProgressRecord(ctx context.Context, enrollmentID, moduleID string) (bool, error)
	CountCompletedModules(ctx context.Context, enrollmentID string) (int, error)
	ListCourseModules(ctx context.Context, courseID string) ([]domain.CourseModule, error)
}

// UserStore covers users and their external-identity join keys.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUserByExternalLMSID(ctx context.Context, externalID string) (*domain.User, error)
	SetExternalLMSUserID(ctx context.Context, userID, externalID string) (bool, error)
	SetExternalIncubatorUserID(ctx context.Context, userID, externalID string) (bool, error)
	UpsertUserFromLMS(ctx context.Context, user *domain.User) error
}

// CourseStore covers courses and their LMS mapping.
type CourseStore interface {
	GetCourse(ctx context.Context, courseID string) (*domain.Course, error)
	GetCourseByExternalLMSID(ctx context.Context, externalID string) (*domain.Course, error)
	UpsertCourseFromLMS(ctx context.Context, course *domain.Course) error
}

// Gateway verifies payment transactions.
type Gateway interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionData, error)
}

// LMS is the external learning-management system.
type LMS interface {
	CreateUser(ctx context.Context, profile moodle.UserProfile) (string, error)
	EnrollUser(ctx context.Context, externalUserID, externalCourseID string) error
	ListUsers(ctx context.Context) ([]moodle.LMSUser, error)
	ListCourses(ctx context.Context) ([]moodle.LMSCourse, error)
	ListEnrollments(ctx context.Context) ([]moodle.LMSEnrollment, error)
	ListUserEnrollments(ctx context.Context, externalUserID string) ([]moodle.LMSEnrollment, error)
}

// Incubator is the external talent-incubator system.
type Incubator interface {
	CreateUser(ctx context.Context, profile incubator.Profile) (string, error)
	UpdateUserProfile(ctx context.Context, externalUserID string, profile incubator.Profile) error
	SyncCourseCompletion(ctx context.Context, externalUserID string, completion incubator.Completion) error
}

// Notifier pushes best-effort realtime events to clients.
type Notifier interface {
	Emit(ctx context.Context, userID, event string, data map[string]interface{})
}

// Mailer sends templated notification emails.
type Mailer interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// EnrollmentDispatch is the slice of the enrollment façade the
// processors enqueue through.
type EnrollmentDispatch interface {
	EnqueueCompleteEnrollment(ctx context.Context, enrollmentID, paymentReference string) (string, error)
	EnqueueInitializeProgress(ctx context.Context, enrollmentID string) (string, error)
	EnqueueSyncCourseCompletion(ctx context.Context, enrollmentID string) (string, error)
}

// PaymentDispatch re-enqueues verification from the poller pass.
type PaymentDispatch interface {
	EnqueueVerifyPayment(ctx context.Context, reference string) (string, error)
}

// NotificationDispatch queues outbound emails.
type NotificationDispatch interface {
	EnqueueEmail(ctx context.Context, payload domain.SendEmailPayload) (string, error)
}

// Config wires one processor set.
type Config struct {
	Logger *slog.Logger

	Payments    PaymentStore
	Enrollments EnrollmentStore
	Progress    ProgressStore
	Users       UserStore
	Courses     CourseStore

	Gateway   Gateway
	LMS       LMS
	Incubator Incubator
	Notifier  Notifier
	Mailer    Mailer

	EnrollmentQueue   EnrollmentDispatch
	PaymentQueue      PaymentDispatch
	NotificationQueue NotificationDispatch

	// PendingAge is how old a pending payment must be before the poller
	// re-verifies it; AbandonAge before cleanup cancels it.
	PendingAge time.Duration
	AbandonAge time.Duration
}

// Processors holds every job handler of the pipeline.
type Processors struct {
	logger *slog.Logger

	payments    PaymentStore
	enrollments EnrollmentStore
	progress    ProgressStore
	users       UserStore
	courses     CourseStore

	gateway   Gateway
	lms       LMS
	incubator Incubator
	notifier  Notifier
	mailer    Mailer

	enrollmentQueue   EnrollmentDispatch
	paymentQueue      PaymentDispatch
	notificationQueue NotificationDispatch

	pendingAge time.Duration
	abandonAge time.Duration
}

// New creates the processor set.
func New(cfg *Config) *Processors {
	pendingAge := cfg.PendingAge
	if pendingAge <= 0 {
		pendingAge = 15 * time.Minute
	}
	abandonAge := cfg.AbandonAge
	if abandonAge <= 0 {
		abandonAge = 72 * time.Hour
	}

	return &Processors{
		logger:            cfg.Logger,
		payments:          cfg.Payments,
		enrollments:       cfg.Enrollments,
		progress:          cfg.Progress,
		users:             cfg.Users,
		courses:           cfg.Courses,
		gateway:           cfg.Gateway,
		lms:               cfg.LMS,
		incubator:         cfg.Incubator,
		notifier:          cfg.Notifier,
		mailer:            cfg.Mailer,
		enrollmentQueue:   cfg.EnrollmentQueue,
		paymentQueue:      cfg.PaymentQueue,
		notificationQueue: cfg.NotificationQueue,
		pendingAge:        pendingAge,
		abandonAge:        abandonAge,
	}
}

// RegisterAll binds every handler to its job kind.
func (p *Processors) RegisterAll(registry *worker.Registry) error {
	handlers := map[domain.JobKind]worker.HandlerFunc{
		domain.KindVerifyPayment:       p.VerifyPayment,
		domain.KindPollPendingPayments: p.PollPendingPayments,
		domain.KindCleanupAbandoned:    p.CleanupAbandonedPayments,

		domain.KindCompleteEnrollment: p.CompleteEnrollment,
		domain.KindInitializeProgress: p.InitializeProgress,
		domain.KindCalculateProgress:  p.CalculateProgress,

		domain.KindCreateLMSAccount:       p.CreateLMSAccount,
		domain.KindCreateIncubatorAccount: p.CreateIncubatorAccount,
		domain.KindSyncIncubatorProfile:   p.SyncIncubatorProfile,
		domain.KindSyncCourseCompletion:   p.SyncCourseCompletion,

		domain.KindInitialSync:          p.InitialSync,
		domain.KindPeriodicSync:         p.PeriodicSync,
		domain.KindSyncUserEnrollment:   p.SyncUserEnrollment,
		domain.KindForceSyncUsers:       p.ForceSyncUsers,
		domain.KindForceSyncCourses:     p.ForceSyncCourses,
		domain.KindForceSyncEnrollments: p.ForceSyncEnrollments,

		domain.KindSendEmail: p.SendEmail,
	}

	for kind, handler := range handlers {
		if err := registry.Register(kind, handler); err != nil {
			return err
		}
	}

	return nil
}

// parsePayload unmarshals a job payload, mapping malformed JSON to the
// terminal invalid-payload error.
func parsePayload(job *domain.Job, out interface{}) error {
	if err := json.Unmarshal([]byte(job.Payload), out); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, err.Error())
	}
	return nil
}
