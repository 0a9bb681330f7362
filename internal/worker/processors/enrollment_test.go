package processors

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/mailer"
	"github.com/learnhub/enrollment-be/internal/realtime"
)

func completeJob(t *testing.T, enrollmentID, reference string) *domain.Job {
	t.Helper()
	body, err := json.Marshal(domain.CompleteEnrollmentPayload{
		EnrollmentID:     enrollmentID,
		PaymentReference: reference,
	})
	require.NoError(t, err)
	return testJob(domain.KindCompleteEnrollment, string(body))
}

func seedPendingEnrollment(env *testEnv) {
	lmsCourseID := "moodle-course-9"
	env.users.users["user-1"] = &domain.User{
		UserID:    "user-1",
		Email:     "ama@example.com",
		FirstName: "Ama",
		LastName:  "Mensah",
	}
	env.courses.courses["course-1"] = &domain.Course{
		CourseID:            "course-1",
		Title:               "Intro to Data Engineering",
		ExternalLMSCourseID: &lmsCourseID,
	}
	env.enrollments.enrollments["enr-1"] = &domain.Enrollment{
		EnrollmentID:     "enr-1",
		UserID:           "user-1",
		CourseID:         "course-1",
		PaymentStatus:    domain.EnrollmentPaymentPending,
		EnrollmentStatus: domain.EnrollmentStatusPending,
	}
}

func TestCompleteEnrollment_FullActivationSequence(t *testing.T) {
	env := newTestEnv()
	seedPendingEnrollment(env)
	env.lms.createUserID = "moodle-user-7"

	result, err := env.procs.CompleteEnrollment(context.Background(), completeJob(t, "enr-1", "ref-1"), noReport)
	require.NoError(t, err)

	assert.Equal(t, "activated", result["outcome"])
	assert.Equal(t, true, result["lms_enrolled"])

	// LMS account created and stored.
	require.Len(t, env.lms.createdUsers, 1)
	assert.Equal(t, "ama@example.com", env.lms.createdUsers[0].Email)
	assert.Equal(t, "moodle-user-7", env.users.lmsIDs["user-1"])

	// Enrolled in the mapped external course.
	require.Len(t, env.lms.enrollCalls, 1)
	assert.Equal(t, [2]string{"moodle-user-7", "moodle-course-9"}, env.lms.enrollCalls[0])

	// Local transition happened.
	assert.Equal(t, []string{"enr-1"}, env.enrollments.enrolled)
	assert.Equal(t, domain.EnrollmentStatusEnrolled, env.enrollments.enrollments["enr-1"].EnrollmentStatus)
	assert.Equal(t, domain.EnrollmentPaymentCompleted, env.enrollments.enrollments["enr-1"].PaymentStatus)

	// Follow-up work queued.
	assert.Equal(t, []string{"enr-1"}, env.enrollmentQueue.initializations)
	require.Len(t, env.notificationQueue.emails, 1)
	assert.Equal(t, mailer.TemplateEnrollmentConfirmed, env.notificationQueue.emails[0].Template)
	assert.Equal(t, "ama@example.com", env.notificationQueue.emails[0].To)

	require.Len(t, env.notifier.events, 1)
	assert.Equal(t, realtime.EventEnrollmentSynced, env.notifier.events[0].Event)
}

func TestCompleteEnrollment_AlreadyActivatedIsNoOp(t *testing.T) {
	env := newTestEnv()
	seedPendingEnrollment(env)
	env.enrollments.enrollments["enr-1"].EnrollmentStatus = domain.EnrollmentStatusEnrolled

	result, err := env.procs.CompleteEnrollment(context.Background(), completeJob(t, "enr-1", "ref-1"), noReport)
	require.NoError(t, err)

	assert.Equal(t, "already_activated", result["outcome"])
	assert.Empty(t, env.lms.createdUsers)
	assert.Empty(t, env.lms.enrollCalls)
	assert.Empty(t, env.enrollmentQueue.initializations)
	assert.Empty(t, env.notificationQueue.emails)
}

func TestCompleteEnrollment_ExistingLMSAccountIsReused(t *testing.T) {
	env := newTestEnv()
	seedPendingEnrollment(env)
	existing := "moodle-user-3"
	env.users.users["user-1"].ExternalLMSUserID = &existing

	_, err := env.procs.CompleteEnrollment(context.Background(), completeJob(t, "enr-1", "ref-1"), noReport)
	require.NoError(t, err)

	assert.Empty(t, env.lms.createdUsers, "no account creation for a user who has one")
	require.Len(t, env.lms.enrollCalls, 1)
	assert.Equal(t, "moodle-user-3", env.lms.enrollCalls[0][0])
}

func TestCompleteEnrollment_UnmappedCourseSkipsLMSEnrollment(t *testing.T) {
	env := newTestEnv()
	seedPendingEnrollment(env)
	env.courses.courses["course-1"].ExternalLMSCourseID = nil
	env.lms.createUserID = "moodle-user-7"

	result, err := env.procs.CompleteEnrollment(context.Background(), completeJob(t, "enr-1", "ref-1"), noReport)
	require.NoError(t, err)

	assert.Equal(t, "activated", result["outcome"])
	assert.Equal(t, false, result["lms_enrolled"])
	assert.Empty(t, env.lms.enrollCalls)
	// Activation still completes locally.
	assert.Equal(t, []string{"enr-1"}, env.enrollments.enrolled)
	assert.Empty(t, env.notifier.events, "no sync event without an LMS enrollment")
}

func TestCompleteEnrollment_LMSFailureIsRetryable(t *testing.T) {
	env := newTestEnv()
	seedPendingEnrollment(env)
	env.lms.createUserID = "moodle-user-7"
	env.lms.enrollErr = errors.New("lms 502")

	_, err := env.procs.CompleteEnrollment(context.Background(), completeJob(t, "enr-1", "ref-1"), noReport)
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))

	// Account creation stuck; the retry will skip straight to enrollment.
	assert.Equal(t, "moodle-user-7", env.users.lmsIDs["user-1"])
	assert.Empty(t, env.enrollments.enrolled, "local transition must not happen before LMS enrollment")
}

func TestCreateLMSAccount_Idempotent(t *testing.T) {
	env := newTestEnv()
	env.users.users["user-1"] = &domain.User{
		UserID: "user-1",
		Email:  "kofi@example.com",
	}
	env.lms.createUserID = "moodle-user-11"

	body, err := json.Marshal(domain.UserRefPayload{UserID: "user-1"})
	require.NoError(t, err)

	result, err := env.procs.CreateLMSAccount(context.Background(),
		testJob(domain.KindCreateLMSAccount, string(body)), noReport)
	require.NoError(t, err)
	assert.Equal(t, "created", result["outcome"])

	// Second run finds the stored id and does nothing.
	result, err = env.procs.CreateLMSAccount(context.Background(),
		testJob(domain.KindCreateLMSAccount, string(body)), noReport)
	require.NoError(t, err)
	assert.Equal(t, "already_exists", result["outcome"])
	assert.Len(t, env.lms.createdUsers, 1)
}

func TestSyncIncubatorProfile_SkipsWithoutAccount(t *testing.T) {
	env := newTestEnv()
	env.users.users["user-1"] = &domain.User{UserID: "user-1"}

	body, err := json.Marshal(domain.UserRefPayload{UserID: "user-1"})
	require.NoError(t, err)

	result, err := env.procs.SyncIncubatorProfile(context.Background(),
		testJob(domain.KindSyncIncubatorProfile, string(body)), noReport)
	require.NoError(t, err)
	assert.Equal(t, "skipped", result["outcome"])
	assert.Empty(t, env.incubator.profileUpdates)
}
