package processors

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/lms/moodle"
)

func TestFullSync_ReconcilesAllPhases(t *testing.T) {
	env := newTestEnv()

	env.lms.users = []moodle.LMSUser{
		{ExternalUserID: "m-u-1", Email: "ama@example.com", FirstName: "Ama", LastName: "Mensah"},
		{ExternalUserID: "m-u-2", Email: "kofi@example.com", FirstName: "Kofi", LastName: "Owusu"},
	}
	env.lms.courses = []moodle.LMSCourse{
		{ExternalCourseID: "m-c-1", FullName: "Intro to Data Engineering"},
	}
	lastAccess := time.Now().UTC()
	env.lms.enrollments = []moodle.LMSEnrollment{
		{ExternalUserID: "m-u-1", ExternalCourseID: "m-c-1", LastAccess: &lastAccess},
	}

	result, err := env.procs.InitialSync(context.Background(),
		testJob(domain.KindInitialSync, "{}"), noReport)
	require.NoError(t, err)

	users := result["users"].(map[string]interface{})
	assert.Equal(t, 2, users["synced"])
	assert.Equal(t, 0, users["failed"])

	courses := result["courses"].(map[string]interface{})
	assert.Equal(t, 1, courses["synced"])

	enrollments := result["enrollments"].(map[string]interface{})
	assert.Equal(t, 1, enrollments["synced"])

	// The enrollment landed on the rows the earlier phases created.
	require.Len(t, env.enrollments.upserted, 1)
	assert.Equal(t, "lms-user-m-u-1", env.enrollments.upserted[0].UserID)
	assert.Equal(t, "lms-course-m-c-1", env.enrollments.upserted[0].CourseID)
}

func TestFullSync_PartialFailureIsCountedNotFatal(t *testing.T) {
	env := newTestEnv()

	env.lms.users = []moodle.LMSUser{
		{ExternalUserID: "m-u-1", Email: "ama@example.com"},
	}
	// One enrollment references a course no sync phase knows about.
	env.lms.enrollments = []moodle.LMSEnrollment{
		{ExternalUserID: "m-u-1", ExternalCourseID: "m-c-missing"},
		{ExternalUserID: "m-u-1", ExternalCourseID: "m-c-1"},
	}
	env.lms.courses = []moodle.LMSCourse{
		{ExternalCourseID: "m-c-1", FullName: "Intro to Data Engineering"},
	}

	result, err := env.procs.PeriodicSync(context.Background(),
		testJob(domain.KindPeriodicSync, "{}"), noReport)
	require.NoError(t, err, "a bad record never aborts the pass")

	enrollments := result["enrollments"].(map[string]interface{})
	assert.Equal(t, 1, enrollments["synced"])
	assert.Equal(t, 1, enrollments["failed"])
}

func TestSyncUsers_KeepsExistingPortalRow(t *testing.T) {
	env := newTestEnv()

	extID := "m-u-1"
	env.users.users["portal-user-1"] = &domain.User{
		UserID:            "portal-user-1",
		Email:             "old@example.com",
		ExternalLMSUserID: &extID,
	}
	env.lms.users = []moodle.LMSUser{
		{ExternalUserID: "m-u-1", Email: "new@example.com", FirstName: "Ama"},
	}

	_, err := env.procs.ForceSyncUsers(context.Background(),
		testJob(domain.KindForceSyncUsers, "{}"), noReport)
	require.NoError(t, err)

	// The refresh targets the existing portal row, not a new lms- row.
	require.Len(t, env.users.upserted, 1)
	assert.Equal(t, "portal-user-1", env.users.upserted[0].UserID)
	assert.Equal(t, "new@example.com", env.users.users["portal-user-1"].Email)
}

func TestSyncUserEnrollment_RequiresLMSAccount(t *testing.T) {
	env := newTestEnv()
	env.users.users["user-1"] = &domain.User{UserID: "user-1"}

	body, err := json.Marshal(domain.UserRefPayload{UserID: "user-1"})
	require.NoError(t, err)

	result, err := env.procs.SyncUserEnrollment(context.Background(),
		testJob(domain.KindSyncUserEnrollment, string(body)), noReport)
	require.NoError(t, err)
	assert.Equal(t, "skipped", result["outcome"])
}

func TestSyncUserEnrollment_RefreshesOwnEnrollments(t *testing.T) {
	env := newTestEnv()

	extUser := "m-u-1"
	extCourse := "m-c-1"
	env.users.users["user-1"] = &domain.User{
		UserID:            "user-1",
		ExternalLMSUserID: &extUser,
	}
	env.courses.courses["course-1"] = &domain.Course{
		CourseID:            "course-1",
		ExternalLMSCourseID: &extCourse,
	}
	env.enrollments.enrollments["enr-1"] = &domain.Enrollment{
		EnrollmentID:     "enr-1",
		UserID:           "user-1",
		CourseID:         "course-1",
		EnrollmentStatus: domain.EnrollmentStatusEnrolled,
	}

	lastAccess := time.Now().UTC()
	env.lms.userEnrollments["m-u-1"] = []moodle.LMSEnrollment{
		{ExternalUserID: "m-u-1", ExternalCourseID: "m-c-1", LastAccess: &lastAccess},
	}

	body, err := json.Marshal(domain.UserRefPayload{UserID: "user-1"})
	require.NoError(t, err)

	result, err := env.procs.SyncUserEnrollment(context.Background(),
		testJob(domain.KindSyncUserEnrollment, string(body)), noReport)
	require.NoError(t, err)

	assert.Equal(t, 1, result["synced"])
	// The existing enrollment row is updated in place.
	require.Len(t, env.enrollments.upserted, 1)
	assert.Equal(t, "enr-1", env.enrollments.upserted[0].EnrollmentID)
	require.NotNil(t, env.enrollments.enrollments["enr-1"].LastAccessed)
}
