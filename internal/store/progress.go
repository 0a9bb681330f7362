package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// EnsureProgressRecord creates the not_started progress row for one
// (enrollment, module) pair. Find-or-create: re-running initialization is
// safe by construction. Returns true when a new row was inserted.
func (s *Storage) EnsureProgressRecord(ctx context.Context, enrollmentID, moduleID string) (bool, error) {
	query := `
		INSERT INTO student_progress (progress_id, enrollment_id, module_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (enrollment_id, module_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), enrollmentID, moduleID, domain.ProgressNotStarted)
	if err != nil {
		return false, fmt.Errorf("failed to ensure progress record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// CountCompletedModules returns how many of an enrollment's module
// records are completed. The completion denominator is the course's
// module list, never the progress-row count: a partially initialized
// enrollment must not look further along than it is.
func (s *Storage) CountCompletedModules(ctx context.Context, enrollmentID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM student_progress
		WHERE enrollment_id = $1
		  AND status = $2
	`

	var completed int
	err := s.db.GetContext(ctx, &completed, query, enrollmentID, domain.ProgressCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed modules: %w", err)
	}

	return completed, nil
}

// ListCourseModules returns all modules of a course in position order.
func (s *Storage) ListCourseModules(ctx context.Context, courseID string) ([]domain.CourseModule, error) {
	query := `
		SELECT module_id, course_id, title, position
		FROM course_modules
		WHERE course_id = $1
		ORDER BY position ASC
	`

	var modules []domain.CourseModule
	err := s.db.SelectContext(ctx, &modules, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course modules: %w", err)
	}

	return modules, nil
}
