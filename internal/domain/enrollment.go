package domain

import "time"

// Enrollment payment status constants.
const (
	EnrollmentPaymentPending   = "pending"
	EnrollmentPaymentCompleted = "completed"
	EnrollmentPaymentFailed    = "failed"
)

// Enrollment status constants. The only transitions are
// pending → enrolled (completion processor), enrolled → completed
// (progress recalculation reaching 100) and pending → dropped (cleanup).
const (
	EnrollmentStatusPending   = "pending"
	EnrollmentStatusEnrolled  = "enrolled"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusDropped   = "dropped"
)

// Enrollment ties a user to a course and tracks both payment and
// learning progress state.
type Enrollment struct {
	EnrollmentID       string     `db:"enrollment_id"`
	UserID             string     `db:"user_id"`
	CourseID           string     `db:"course_id"`
	PaymentStatus      string     `db:"payment_status"`
	EnrollmentStatus   string     `db:"enrollment_status"`
	ProgressPercentage int        `db:"progress_percentage"`
	EnrolledAt         *time.Time `db:"enrolled_at"`
	CompletedAt        *time.Time `db:"completed_at"`
	LastAccessed       *time.Time `db:"last_accessed"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// IsActivated reports whether the activation sequence already ran.
func (e *Enrollment) IsActivated() bool {
	return e.EnrollmentStatus == EnrollmentStatusEnrolled ||
		e.EnrollmentStatus == EnrollmentStatusCompleted
}

// StudentProgress status constants.
const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// StudentProgress is one row per (enrollment, course module) pair,
// created by progress initialization and read by recalculation.
type StudentProgress struct {
	ProgressID   string     `db:"progress_id"`
	EnrollmentID string     `db:"enrollment_id"`
	ModuleID     string     `db:"module_id"`
	Status       string     `db:"status"`
	Score        *float64   `db:"score"`
	StartedAt    *time.Time `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}
