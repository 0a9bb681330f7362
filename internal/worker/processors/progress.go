package processors

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/mailer"
)

// InitializeProgress creates one not_started progress record per course
// module. Find-or-create per module, so partial earlier runs are filled
// in rather than duplicated.
func (p *Processors) InitializeProgress(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.EnrollmentRefPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	enrollment, err := p.enrollments.GetEnrollment(ctx, payload.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("enrollment %s: %w", payload.EnrollmentID, err)
	}

	modules, err := p.progress.ListCourseModules(ctx, enrollment.CourseID)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("list course modules: %w", err))
	}

	created := 0
	for i, module := range modules {
		wasCreated, err := p.progress.EnsureProgressRecord(ctx, enrollment.EnrollmentID, module.ModuleID)
		if err != nil {
			return nil, domain.NewRetryableError(fmt.Errorf("ensure progress record: %w", err))
		}
		if wasCreated {
			created++
		}

		if len(modules) > 0 {
			report((i + 1) * 100 / len(modules))
		}
	}

	p.logger.Info("Progress records initialized",
		slog.String("enrollment_id", enrollment.EnrollmentID),
		slog.Int("modules", len(modules)),
		slog.Int("created", created),
	)

	return map[string]interface{}{
		"modules": len(modules),
		"created": created,
	}, nil
}

// CalculateProgress recomputes the enrollment's completion percentage.
// The denominator is the course's module list, not the enrollment's
// progress rows - a partially initialized enrollment must never reach
// 100 by completing the few rows it has. Hitting 100 on a
// not-yet-completed enrollment marks it completed exactly once, queues
// the completion email and the incubator sync.
func (p *Processors) CalculateProgress(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.EnrollmentRefPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	enrollment, err := p.enrollments.GetEnrollment(ctx, payload.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("enrollment %s: %w", payload.EnrollmentID, err)
	}

	modules, err := p.progress.ListCourseModules(ctx, enrollment.CourseID)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("list course modules: %w", err))
	}
	total := len(modules)

	completed, err := p.progress.CountCompletedModules(ctx, enrollment.EnrollmentID)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("count completed modules: %w", err))
	}

	percentage := 0
	if total > 0 {
		percentage = int(math.Round(float64(completed) * 100 / float64(total)))
	}

	if err := p.enrollments.UpdateProgressPercentage(ctx, enrollment.EnrollmentID, percentage); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("update progress percentage: %w", err))
	}

	result := map[string]interface{}{
		"completed":  completed,
		"total":      total,
		"percentage": percentage,
	}

	if percentage < 100 || total == 0 {
		return result, nil
	}

	transitioned, err := p.enrollments.MarkEnrollmentCompleted(ctx, enrollment.EnrollmentID)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("mark enrollment completed: %w", err))
	}
	if !transitioned {
		// Already completed by an earlier recalculation; the completion
		// side effects ran then.
		return result, nil
	}

	result["transitioned"] = true

	user, err := p.users.GetUser(ctx, enrollment.UserID)
	if err != nil {
		p.logger.Error("Failed to load user for completion email",
			slog.String("enrollment_id", enrollment.EnrollmentID),
			slog.String("error", err.Error()),
		)
	} else {
		course, courseErr := p.courses.GetCourse(ctx, enrollment.CourseID)
		courseTitle := enrollment.CourseID
		if courseErr == nil {
			courseTitle = course.Title
		}

		if _, err := p.notificationQueue.EnqueueEmail(ctx, domain.SendEmailPayload{
			To:       user.Email,
			Template: mailer.TemplateCourseCompleted,
			Data: map[string]string{
				"first_name":   user.FirstName,
				"course_title": courseTitle,
			},
		}); err != nil {
			p.logger.Error("Failed to enqueue completion email",
				slog.String("enrollment_id", enrollment.EnrollmentID),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, err := p.enrollmentQueue.EnqueueSyncCourseCompletion(ctx, enrollment.EnrollmentID); err != nil {
		p.logger.Error("Failed to enqueue course completion sync",
			slog.String("enrollment_id", enrollment.EnrollmentID),
			slog.String("error", err.Error()),
		)
	}

	p.logger.Info("Enrollment completed",
		slog.String("enrollment_id", enrollment.EnrollmentID),
		slog.Int("modules", total),
	)

	return result, nil
}
