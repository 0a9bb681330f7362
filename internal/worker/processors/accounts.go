package processors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/incubator"
	"github.com/learnhub/enrollment-be/internal/lms/moodle"
)

func lmsProfile(user *domain.User) moodle.UserProfile {
	return moodle.UserProfile{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

func incubatorProfile(user *domain.User) incubator.Profile {
	return incubator.Profile{
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}
}

// CreateLMSAccount provisions an LMS account for a user who doesn't have
// one. A stored external id makes this a no-op.
func (p *Processors) CreateLMSAccount(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.UserRefPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	user, err := p.users.GetUser(ctx, payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", payload.UserID, err)
	}

	if user.ExternalLMSUserID != nil {
		return map[string]interface{}{"outcome": "already_exists"}, nil
	}

	externalID, err := p.lms.CreateUser(ctx, lmsProfile(user))
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("lms create user: %w", err))
	}

	if _, err := p.users.SetExternalLMSUserID(ctx, user.UserID, externalID); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("store lms user id: %w", err))
	}

	return map[string]interface{}{
		"outcome":          "created",
		"external_user_id": externalID,
	}, nil
}

// CreateIncubatorAccount provisions a talent-incubator account, guarded
// by the stored external id exactly like the LMS variant.
func (p *Processors) CreateIncubatorAccount(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.UserRefPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	user, err := p.users.GetUser(ctx, payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", payload.UserID, err)
	}

	if user.ExternalIncubatorUserID != nil {
		return map[string]interface{}{"outcome": "already_exists"}, nil
	}

	externalID, err := p.incubator.CreateUser(ctx, incubatorProfile(user))
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("incubator create user: %w", err))
	}

	if _, err := p.users.SetExternalIncubatorUserID(ctx, user.UserID, externalID); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("store incubator user id: %w", err))
	}

	return map[string]interface{}{
		"outcome":          "created",
		"external_user_id": externalID,
	}, nil
}

// SyncIncubatorProfile pushes the user's current profile to the
// incubator. Without an account there is nothing to update and the job
// succeeds with a skipped outcome.
func (p *Processors) SyncIncubatorProfile(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.UserRefPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	user, err := p.users.GetUser(ctx, payload.UserID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", payload.UserID, err)
	}

	if user.ExternalIncubatorUserID == nil {
		p.logger.Info("User has no incubator account, skipping profile sync",
			slog.String("user_id", user.UserID),
		)
		return map[string]interface{}{"outcome": "skipped"}, nil
	}

	if err := p.incubator.UpdateUserProfile(ctx, *user.ExternalIncubatorUserID, incubatorProfile(user)); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("incubator update profile: %w", err))
	}

	return map[string]interface{}{"outcome": "synced"}, nil
}

// SyncCourseCompletion records a finished course against the user's
// incubator talent record. Runs after CalculateProgress reaches 100.
func (p *Processors) SyncCourseCompletion(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.EnrollmentRefPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	enrollment, err := p.enrollments.GetEnrollment(ctx, payload.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("enrollment %s: %w", payload.EnrollmentID, err)
	}

	if enrollment.EnrollmentStatus != domain.EnrollmentStatusCompleted {
		// Queued before the completion transition stuck, or the state
		// was rolled back; nothing to report yet.
		return map[string]interface{}{"outcome": "not_completed"}, nil
	}

	user, err := p.users.GetUser(ctx, enrollment.UserID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", enrollment.UserID, err)
	}

	if user.ExternalIncubatorUserID == nil {
		p.logger.Info("User has no incubator account, skipping completion sync",
			slog.String("user_id", user.UserID),
		)
		return map[string]interface{}{"outcome": "skipped"}, nil
	}

	course, err := p.courses.GetCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", enrollment.CourseID, err)
	}

	completedAt := time.Now().UTC()
	if enrollment.CompletedAt != nil {
		completedAt = *enrollment.CompletedAt
	}

	if err := p.incubator.SyncCourseCompletion(ctx, *user.ExternalIncubatorUserID, incubator.Completion{
		CourseTitle:        course.Title,
		CompletedAt:        completedAt,
		ProgressPercentage: enrollment.ProgressPercentage,
	}); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("incubator completion sync: %w", err))
	}

	return map[string]interface{}{"outcome": "synced"}, nil
}
