package processors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/mailer"
	"github.com/learnhub/enrollment-be/internal/realtime"
)

// CompleteEnrollment runs the activation sequence after a verified
// payment: ensure an LMS account exists, enroll the user in the mapped
// external course, flip the enrollment to enrolled, then queue progress
// initialization and the confirmation email. Every step checks stored
// state first, so a crashed run resumes cleanly on retry.
func (p *Processors) CompleteEnrollment(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.CompleteEnrollmentPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	enrollment, err := p.enrollments.GetEnrollment(ctx, payload.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("enrollment %s: %w", payload.EnrollmentID, err)
	}

	if enrollment.IsActivated() {
		p.logger.Info("Enrollment already activated, skipping",
			slog.String("enrollment_id", enrollment.EnrollmentID),
			slog.String("status", enrollment.EnrollmentStatus),
		)
		return map[string]interface{}{"outcome": "already_activated"}, nil
	}

	user, err := p.users.GetUser(ctx, enrollment.UserID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", enrollment.UserID, err)
	}

	report(20)

	externalUserID, err := p.ensureLMSAccount(ctx, user)
	if err != nil {
		return nil, err
	}

	report(40)

	course, err := p.courses.GetCourse(ctx, enrollment.CourseID)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", enrollment.CourseID, err)
	}

	lmsEnrolled := false
	if course.ExternalLMSCourseID == nil {
		// Course has no LMS counterpart; activation proceeds without it.
		p.logger.Info("Course has no LMS mapping, skipping external enrollment",
			slog.String("course_id", course.CourseID),
		)
	} else {
		if err := p.lms.EnrollUser(ctx, externalUserID, *course.ExternalLMSCourseID); err != nil {
			return nil, domain.NewRetryableError(fmt.Errorf("lms enroll: %w", err))
		}
		lmsEnrolled = true
	}

	report(60)

	updated, err := p.enrollments.MarkEnrollmentEnrolled(ctx, enrollment.EnrollmentID)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("mark enrollment enrolled: %w", err))
	}
	if !updated {
		// A concurrent run finished the transition first.
		return map[string]interface{}{"outcome": "already_activated"}, nil
	}

	report(80)

	if _, err := p.enrollmentQueue.EnqueueInitializeProgress(ctx, enrollment.EnrollmentID); err != nil {
		p.logger.Error("Failed to enqueue progress initialization",
			slog.String("enrollment_id", enrollment.EnrollmentID),
			slog.String("error", err.Error()),
		)
	}

	if _, err := p.notificationQueue.EnqueueEmail(ctx, domain.SendEmailPayload{
		To:       user.Email,
		Template: mailer.TemplateEnrollmentConfirmed,
		Data: map[string]string{
			"first_name":   user.FirstName,
			"course_title": course.Title,
		},
	}); err != nil {
		p.logger.Error("Failed to enqueue confirmation email",
			slog.String("enrollment_id", enrollment.EnrollmentID),
			slog.String("error", err.Error()),
		)
	}

	if lmsEnrolled {
		p.notifier.Emit(ctx, user.UserID, realtime.EventEnrollmentSynced, map[string]interface{}{
			"enrollment_id": enrollment.EnrollmentID,
			"course_id":     course.CourseID,
		})
	}

	p.logger.Info("Enrollment activated",
		slog.String("enrollment_id", enrollment.EnrollmentID),
		slog.String("user_id", user.UserID),
		slog.Bool("lms_enrolled", lmsEnrolled),
	)

	return map[string]interface{}{
		"outcome":      "activated",
		"lms_enrolled": lmsEnrolled,
	}, nil
}

// ensureLMSAccount returns the user's LMS id, creating the account when
// none is stored. The stored id is the idempotency guard: once set it is
// never overwritten.
func (p *Processors) ensureLMSAccount(ctx context.Context, user *domain.User) (string, error) {
	if user.ExternalLMSUserID != nil {
		return *user.ExternalLMSUserID, nil
	}

	externalID, err := p.lms.CreateUser(ctx, lmsProfile(user))
	if err != nil {
		return "", domain.NewRetryableError(fmt.Errorf("lms create user: %w", err))
	}

	if _, err := p.users.SetExternalLMSUserID(ctx, user.UserID, externalID); err != nil {
		return "", domain.NewRetryableError(fmt.Errorf("store lms user id: %w", err))
	}

	return externalID, nil
}
