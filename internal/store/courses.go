package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// GetCourse loads a course by id.
func (s *Storage) GetCourse(ctx context.Context, courseID string) (*domain.Course, error) {
	query := `
		SELECT course_id, title, external_lms_course_id, created_at, updated_at
		FROM courses
		WHERE course_id = $1
	`

	var course domain.Course
	err := s.db.GetContext(ctx, &course, query, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	return &course, nil
}

// GetCourseByExternalLMSID loads the portal course mapped to a given
// LMS course id.
func (s *Storage) GetCourseByExternalLMSID(ctx context.Context, externalID string) (*domain.Course, error) {
	query := `
		SELECT course_id, title, external_lms_course_id, created_at, updated_at
		FROM courses
		WHERE external_lms_course_id = $1
	`

	var course domain.Course
	err := s.db.GetContext(ctx, &course, query, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course by external id: %w", err)
	}

	return &course, nil
}

// UpsertCourseFromLMS reconciles one course row from LMS state.
func (s *Storage) UpsertCourseFromLMS(ctx context.Context, course *domain.Course) error {
	query := `
		INSERT INTO courses (course_id, title, external_lms_course_id, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (course_id) DO UPDATE
		SET title = EXCLUDED.title,
		    external_lms_course_id = COALESCE(courses.external_lms_course_id, EXCLUDED.external_lms_course_id),
		    updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, course.CourseID, course.Title, course.ExternalLMSCourseID)
	if err != nil {
		return fmt.Errorf("failed to upsert course: %w", err)
	}

	return nil
}
