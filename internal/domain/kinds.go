package domain

// JobKind identifies what a job does. Workers dispatch through a
// registry keyed by kind; an unregistered kind fails terminally.
type JobKind string

const (
	KindVerifyPayment       JobKind = "payment.verify"
	KindPollPendingPayments JobKind = "payment.poll_pending"
	KindCleanupAbandoned    JobKind = "payment.cleanup_abandoned"

	KindCompleteEnrollment JobKind = "enrollment.complete"
	KindInitializeProgress JobKind = "enrollment.initialize_progress"
	KindCalculateProgress  JobKind = "enrollment.calculate_progress"

	KindCreateLMSAccount       JobKind = "account.create_lms"
	KindCreateIncubatorAccount JobKind = "account.create_incubator"
	KindSyncIncubatorProfile   JobKind = "incubator.sync_profile"
	KindSyncCourseCompletion   JobKind = "incubator.sync_completion"

	KindInitialSync          JobKind = "sync.initial"
	KindPeriodicSync         JobKind = "sync.periodic"
	KindSyncUserEnrollment   JobKind = "sync.user_enrollment"
	KindForceSyncUsers       JobKind = "sync.force_users"
	KindForceSyncCourses     JobKind = "sync.force_courses"
	KindForceSyncEnrollments JobKind = "sync.force_enrollments"

	KindSendEmail JobKind = "notification.send_email"
)

// VerifyPaymentPayload triggers reconciliation of a single payment
// against the gateway using its stored reference.
type VerifyPaymentPayload struct {
	Reference string `json:"reference"`
}

// CompleteEnrollmentPayload triggers the activation sequence for an
// enrollment whose payment has been verified.
type CompleteEnrollmentPayload struct {
	EnrollmentID     string `json:"enrollment_id"`
	PaymentReference string `json:"payment_reference"`
}

// EnrollmentRefPayload is shared by progress initialization,
// recalculation and completion-sync jobs.
type EnrollmentRefPayload struct {
	EnrollmentID string `json:"enrollment_id"`
}

// UserRefPayload is shared by external-account and per-user sync jobs.
type UserRefPayload struct {
	UserID string `json:"user_id"`
}

// SendEmailPayload carries a templated notification email.
type SendEmailPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}
