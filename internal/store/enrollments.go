package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// GetEnrollment loads an enrollment by id.
func (s *Storage) GetEnrollment(ctx context.Context, enrollmentID string) (*domain.Enrollment, error) {
	query := `
		SELECT enrollment_id, user_id, course_id, payment_status, enrollment_status,
		       progress_percentage, enrolled_at, completed_at, last_accessed,
		       created_at, updated_at
		FROM enrollments
		WHERE enrollment_id = $1
	`

	var enrollment domain.Enrollment
	err := s.db.GetContext(ctx, &enrollment, query, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	return &enrollment, nil
}

// GetEnrollmentByUserAndCourse loads the enrollment tying a user to a
// course, used by sync passes to match LMS enrollments to portal rows.
func (s *Storage) GetEnrollmentByUserAndCourse(ctx context.Context, userID, courseID string) (*domain.Enrollment, error) {
	query := `
		SELECT enrollment_id, user_id, course_id, payment_status, enrollment_status,
		       progress_percentage, enrolled_at, completed_at, last_accessed,
		       created_at, updated_at
		FROM enrollments
		WHERE user_id = $1 AND course_id = $2
	`

	var enrollment domain.Enrollment
	err := s.db.GetContext(ctx, &enrollment, query, userID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to get enrollment by user and course: %w", err)
	}

	return &enrollment, nil
}

// MarkEnrollmentEnrolled transitions pending → enrolled and completes the
// payment status in the same statement, so a crashed worker can re-run the
// activation sequence without double effects. Returns false when the
// enrollment already left the pending state.
func (s *Storage) MarkEnrollmentEnrolled(ctx context.Context, enrollmentID string) (bool, error) {
	query := `
		UPDATE enrollments
		SET enrollment_status = $1,
		    payment_status = $2,
		    enrolled_at = NOW(),
		    updated_at = NOW()
		WHERE enrollment_id = $3
		  AND enrollment_status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.EnrollmentStatusEnrolled, domain.EnrollmentPaymentCompleted,
		enrollmentID, domain.EnrollmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark enrollment enrolled: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// MarkEnrollmentCompleted transitions enrolled → completed. completed_at is
// set exactly once because the guard excludes already-completed rows.
func (s *Storage) MarkEnrollmentCompleted(ctx context.Context, enrollmentID string) (bool, error) {
	query := `
		UPDATE enrollments
		SET enrollment_status = $1,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE enrollment_id = $2
		  AND enrollment_status = $3
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.EnrollmentStatusCompleted, enrollmentID, domain.EnrollmentStatusEnrolled)
	if err != nil {
		return false, fmt.Errorf("failed to mark enrollment completed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// SetEnrollmentPaymentFailed records a failed charge against the
// enrollment. Direct webhook path: the gateway already told us the outcome.
func (s *Storage) SetEnrollmentPaymentFailed(ctx context.Context, enrollmentID string) error {
	query := `
		UPDATE enrollments
		SET payment_status = $1,
		    updated_at = NOW()
		WHERE enrollment_id = $2
		  AND payment_status = $3
	`

	_, err := s.db.ExecContext(ctx, query,
		domain.EnrollmentPaymentFailed, enrollmentID, domain.EnrollmentPaymentPending)
	if err != nil {
		return fmt.Errorf("failed to set enrollment payment failed: %w", err)
	}

	return nil
}

// DropEnrollment transitions pending → dropped with payment_status failed.
// Used only by the abandoned-payment cleanup job.
func (s *Storage) DropEnrollment(ctx context.Context, enrollmentID string) (bool, error) {
	query := `
		UPDATE enrollments
		SET enrollment_status = $1,
		    payment_status = $2,
		    updated_at = NOW()
		WHERE enrollment_id = $3
		  AND enrollment_status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.EnrollmentStatusDropped, domain.EnrollmentPaymentFailed,
		enrollmentID, domain.EnrollmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to drop enrollment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// UpdateProgressPercentage stores a recalculated progress value.
func (s *Storage) UpdateProgressPercentage(ctx context.Context, enrollmentID string, percentage int) error {
	query := `
		UPDATE enrollments
		SET progress_percentage = $1,
		    updated_at = NOW()
		WHERE enrollment_id = $2
	`

	_, err := s.db.ExecContext(ctx, query, percentage, enrollmentID)
	if err != nil {
		return fmt.Errorf("failed to update progress percentage: %w", err)
	}

	return nil
}

// UpsertEnrollmentFromLMS reconciles one enrollment row from LMS state.
// Sync passes never regress local activation state: only the LMS-owned
// columns are overwritten.
func (s *Storage) UpsertEnrollmentFromLMS(ctx context.Context, enrollment *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (
			enrollment_id, user_id, course_id, payment_status, enrollment_status,
			progress_percentage, enrolled_at, last_accessed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (enrollment_id) DO UPDATE
		SET last_accessed = EXCLUDED.last_accessed,
		    updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		enrollment.EnrollmentID,
		enrollment.UserID,
		enrollment.CourseID,
		enrollment.PaymentStatus,
		enrollment.EnrollmentStatus,
		enrollment.ProgressPercentage,
		enrollment.EnrolledAt,
		enrollment.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert enrollment: %w", err)
	}

	return nil
}

// ListEnrollmentsByUser returns all enrollments owned by a user.
func (s *Storage) ListEnrollmentsByUser(ctx context.Context, userID string) ([]domain.Enrollment, error) {
	query := `
		SELECT enrollment_id, user_id, course_id, payment_status, enrollment_status,
		       progress_percentage, enrolled_at, completed_at, last_accessed,
		       created_at, updated_at
		FROM enrollments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	var enrollments []domain.Enrollment
	err := s.db.SelectContext(ctx, &enrollments, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	return enrollments, nil
}
