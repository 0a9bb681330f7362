package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/lms/moodle"
)

// syncSummary counts the outcome of one reconciliation pass. Entities
// fail independently; a bad record is counted and skipped, never aborting
// the batch.
type syncSummary struct {
	Synced int
	Failed int
}

func (s syncSummary) result() map[string]interface{} {
	return map[string]interface{}{
		"synced": s.Synced,
		"failed": s.Failed,
	}
}

// InitialSync runs a full reconciliation pass against the LMS at worker
// boot: users, then courses, then enrollments, so enrollment mapping can
// rely on the rows the first two phases wrote.
func (p *Processors) InitialSync(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	return p.fullSync(ctx, report)
}

// PeriodicSync is the recurring full reconciliation pass.
func (p *Processors) PeriodicSync(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	return p.fullSync(ctx, report)
}

func (p *Processors) fullSync(ctx context.Context, report func(progress int)) (map[string]interface{}, error) {
	users, err := p.syncUsers(ctx)
	if err != nil {
		return nil, err
	}
	report(33)

	courses, err := p.syncCourses(ctx)
	if err != nil {
		return nil, err
	}
	report(66)

	enrollments, err := p.syncEnrollments(ctx)
	if err != nil {
		return nil, err
	}
	report(100)

	p.logger.Info("Full LMS sync finished",
		slog.Int("users_synced", users.Synced),
		slog.Int("users_failed", users.Failed),
		slog.Int("courses_synced", courses.Synced),
		slog.Int("courses_failed", courses.Failed),
		slog.Int("enrollments_synced", enrollments.Synced),
		slog.Int("enrollments_failed", enrollments.Failed),
	)

	return map[string]interface{}{
		"users":       users.result(),
		"courses":     courses.result(),
		"enrollments": enrollments.result(),
	}, nil
}

// ForceSyncUsers reconciles only users, on admin request.
func (p *Processors) ForceSyncUsers(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	summary, err := p.syncUsers(ctx)
	if err != nil {
		return nil, err
	}
	return summary.result(), nil
}

// ForceSyncCourses reconciles only courses, on admin request.
func (p *Processors) ForceSyncCourses(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	summary, err := p.syncCourses(ctx)
	if err != nil {
		return nil, err
	}
	return summary.result(), nil
}

// ForceSyncEnrollments reconciles only enrollments, on admin request.
func (p *Processors) ForceSyncEnrollments(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	summary, err := p.syncEnrollments(ctx)
	if err != nil {
		return nil, err
	}
	return summary.result(), nil
}

// SyncUserEnrollment refreshes one user's enrollments immediately after
// an activation, instead of waiting for the next periodic pass.
func (p *Processors) SyncUserEnrollment(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.UserRefPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	user, err := p.users.GetUser(ctx, payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", payload.UserID, err)
	}

	if user.ExternalLMSUserID == nil {
		p.logger.Info("User has no LMS account, skipping enrollment sync",
			slog.String("user_id", user.UserID),
		)
		return map[string]interface{}{"outcome": "skipped"}, nil
	}

	lmsEnrollments, err := p.lms.ListUserEnrollments(ctx, *user.ExternalLMSUserID)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("lms list user enrollments: %w", err))
	}

	var summary syncSummary
	for _, le := range lmsEnrollments {
		if err := p.applyLMSEnrollment(ctx, le); err != nil {
			summary.Failed++
			p.logger.Warn("Failed to apply LMS enrollment",
				slog.String("external_user_id", le.ExternalUserID),
				slog.String("external_course_id", le.ExternalCourseID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.Synced++
	}

	return summary.result(), nil
}

func (p *Processors) syncUsers(ctx context.Context) (syncSummary, error) {
	lmsUsers, err := p.lms.ListUsers(ctx)
	if err != nil {
		return syncSummary{}, domain.NewRetryableError(fmt.Errorf("lms list users: %w", err))
	}

	var summary syncSummary
	for _, lu := range lmsUsers {
		if err := p.applyLMSUser(ctx, lu); err != nil {
			summary.Failed++
			p.logger.Warn("Failed to apply LMS user",
				slog.String("external_user_id", lu.ExternalUserID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.Synced++
	}

	return summary, nil
}

func (p *Processors) syncCourses(ctx context.Context) (syncSummary, error) {
	lmsCourses, err := p.lms.ListCourses(ctx)
	if err != nil {
		return syncSummary{}, domain.NewRetryableError(fmt.Errorf("lms list courses: %w", err))
	}

	var summary syncSummary
	for _, lc := range lmsCourses {
		if err := p.applyLMSCourse(ctx, lc); err != nil {
			summary.Failed++
			p.logger.Warn("Failed to apply LMS course",
				slog.String("external_course_id", lc.ExternalCourseID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.Synced++
	}

	return summary, nil
}

func (p *Processors) syncEnrollments(ctx context.Context) (syncSummary, error) {
	lmsEnrollments, err := p.lms.ListEnrollments(ctx)
	if err != nil {
		return syncSummary{}, domain.NewRetryableError(fmt.Errorf("lms list enrollments: %w", err))
	}

	var summary syncSummary
	for _, le := range lmsEnrollments {
		if err := p.applyLMSEnrollment(ctx, le); err != nil {
			summary.Failed++
			p.logger.Warn("Failed to apply LMS enrollment",
				slog.String("external_user_id", le.ExternalUserID),
				slog.String("external_course_id", le.ExternalCourseID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.Synced++
	}

	return summary, nil
}

// applyLMSUser upserts one LMS user. Portal users already holding the
// external id are refreshed in place; unknown LMS users get a local row
// with a deterministic id so repeated passes converge on the same row.
func (p *Processors) applyLMSUser(ctx context.Context, lu moodle.LMSUser) error {
	externalID := lu.ExternalUserID

	userID := lmsLocalID("user", externalID)
	existing, err := p.users.GetUserByExternalLMSID(ctx, externalID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}
	if existing != nil {
		userID = existing.UserID
	}

	return p.users.UpsertUserFromLMS(ctx, &domain.User{
		UserID:            userID,
		Email:             lu.Email,
		FirstName:         lu.FirstName,
		LastName:          lu.LastName,
		ExternalLMSUserID: &externalID,
	})
}

func (p *Processors) applyLMSCourse(ctx context.Context, lc moodle.LMSCourse) error {
	externalID := lc.ExternalCourseID

	courseID := lmsLocalID("course", externalID)
	existing, err := p.courses.GetCourseByExternalLMSID(ctx, externalID)
	if err != nil && !errors.Is(err, domain.ErrCourseNotFound) {
		return err
	}
	if existing != nil {
		courseID = existing.CourseID
	}

	return p.courses.UpsertCourseFromLMS(ctx, &domain.Course{
		CourseID:            courseID,
		Title:               lc.FullName,
		ExternalLMSCourseID: &externalID,
	})
}

// applyLMSEnrollment maps an LMS enrollment onto portal rows. The user
// and course must already be known locally (the user/course phases run
// first); an unknown pair is an error counted against the batch.
func (p *Processors) applyLMSEnrollment(ctx context.Context, le moodle.LMSEnrollment) error {
	user, err := p.users.GetUserByExternalLMSID(ctx, le.ExternalUserID)
	if err != nil {
		return fmt.Errorf("lms user %s: %w", le.ExternalUserID, err)
	}

	course, err := p.courses.GetCourseByExternalLMSID(ctx, le.ExternalCourseID)
	if err != nil {
		return fmt.Errorf("lms course %s: %w", le.ExternalCourseID, err)
	}

	enrollmentID := lmsLocalID("enrollment", le.ExternalUserID+"-"+le.ExternalCourseID)
	existing, err := p.enrollments.GetEnrollmentByUserAndCourse(ctx, user.UserID, course.CourseID)
	if err != nil && !errors.Is(err, domain.ErrEnrollmentNotFound) {
		return err
	}
	if existing != nil {
		enrollmentID = existing.EnrollmentID
	}

	return p.enrollments.UpsertEnrollmentFromLMS(ctx, &domain.Enrollment{
		EnrollmentID:     enrollmentID,
		UserID:           user.UserID,
		CourseID:         course.CourseID,
		PaymentStatus:    domain.EnrollmentPaymentCompleted,
		EnrollmentStatus: domain.EnrollmentStatusEnrolled,
		LastAccessed:     le.LastAccess,
	})
}

// lmsLocalID derives a stable portal id for an entity that originated in
// the LMS.
func lmsLocalID(entity, externalID string) string {
	return fmt.Sprintf("lms-%s-%s", entity, externalID)
}
