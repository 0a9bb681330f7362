package domain

import "time"

// User carries the external-identity join keys. Each external id is set
// at most once and is the basis for all "already has account" checks.
type User struct {
	UserID                  string    `db:"user_id"`
	Email                   string    `db:"email"`
	FirstName               string    `db:"first_name"`
	LastName                string    `db:"last_name"`
	ExternalLMSUserID       *string   `db:"external_lms_user_id"`
	ExternalIncubatorUserID *string   `db:"external_incubator_user_id"`
	CreatedAt               time.Time `db:"created_at"`
	UpdatedAt               time.Time `db:"updated_at"`
}

// Course maps a portal course to its LMS counterpart. A course without
// an external id is valid: LMS enrollment is skipped for it.
type Course struct {
	CourseID            string    `db:"course_id"`
	Title               string    `db:"title"`
	ExternalLMSCourseID *string   `db:"external_lms_course_id"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

// CourseModule is a unit of course content. Progress is tracked per module.
type CourseModule struct {
	ModuleID string `db:"module_id"`
	CourseID string `db:"course_id"`
	Title    string `db:"title"`
	Position int    `db:"position"`
}
