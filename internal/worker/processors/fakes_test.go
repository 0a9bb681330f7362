package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/gateway/paystack"
	"github.com/learnhub/enrollment-be/internal/incubator"
	"github.com/learnhub/enrollment-be/internal/lms/moodle"
)

// In-memory fakes for the processor dependencies. Each records the
// mutations a test wants to assert on.

type fakePaymentStore struct {
	payments map[string]*domain.Payment // keyed by gateway reference

	succeeded []string
	failed    []string
	cancelled []string

	pendingBefore []domain.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]*domain.Payment)}
}

func (f *fakePaymentStore) GetPaymentByReference(_ context.Context, reference string) (*domain.Payment, error) {
	p, ok := f.payments[reference]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakePaymentStore) MarkPaymentSucceeded(_ context.Context, paymentID, method string, paidAt time.Time) (bool, error) {
	for _, p := range f.payments {
		if p.PaymentID == paymentID {
			if p.Status != domain.PaymentStatusPending {
				return false, nil
			}
			p.Status = domain.PaymentStatusSuccess
			m := method
			p.PaymentMethod = &m
			t := paidAt
			p.PaidAt = &t
			f.succeeded = append(f.succeeded, paymentID)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentStore) MarkPaymentFailed(_ context.Context, paymentID string) (bool, error) {
	for _, p := range f.payments {
		if p.PaymentID == paymentID {
			if p.Status != domain.PaymentStatusPending {
				return false, nil
			}
			p.Status = domain.PaymentStatusFailed
			f.failed = append(f.failed, paymentID)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentStore) CancelPayment(_ context.Context, paymentID string) (bool, error) {
	for _, p := range f.payments {
		if p.PaymentID == paymentID {
			if p.Status != domain.PaymentStatusPending {
				return false, nil
			}
			p.Status = domain.PaymentStatusCancelled
			f.cancelled = append(f.cancelled, paymentID)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentStore) ListPendingPaymentsBefore(_ context.Context, cutoff time.Time) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range f.pendingBefore {
		if p.Status == domain.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeEnrollmentStore struct {
	enrollments map[string]*domain.Enrollment

	enrolled      []string
	completed     []string
	paymentFailed []string
	dropped       []string
	percentages   map[string]int
	upserted      []domain.Enrollment
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{
		enrollments: make(map[string]*domain.Enrollment),
		percentages: make(map[string]int),
	}
}

func (f *fakeEnrollmentStore) GetEnrollment(_ context.Context, enrollmentID string) (*domain.Enrollment, error) {
	e, ok := f.enrollments[enrollmentID]
	if !ok {
		return nil, domain.ErrEnrollmentNotFound
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEnrollmentStore) GetEnrollmentByUserAndCourse(_ context.Context, userID, courseID string) (*domain.Enrollment, error) {
	for _, e := range f.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, domain.ErrEnrollmentNotFound
}

func (f *fakeEnrollmentStore) MarkEnrollmentEnrolled(_ context.Context, enrollmentID string) (bool, error) {
	e, ok := f.enrollments[enrollmentID]
	if !ok || e.EnrollmentStatus != domain.EnrollmentStatusPending {
		return false, nil
	}
	e.EnrollmentStatus = domain.EnrollmentStatusEnrolled
	e.PaymentStatus = domain.EnrollmentPaymentCompleted
	now := time.Now().UTC()
	e.EnrolledAt = &now
	f.enrolled = append(f.enrolled, enrollmentID)
	return true, nil
}

func (f *fakeEnrollmentStore) MarkEnrollmentCompleted(_ context.Context, enrollmentID string) (bool, error) {
	e, ok := f.enrollments[enrollmentID]
	if !ok || e.EnrollmentStatus != domain.EnrollmentStatusEnrolled {
		return false, nil
	}
	e.EnrollmentStatus = domain.EnrollmentStatusCompleted
	now := time.Now().UTC()
	e.CompletedAt = &now
	f.completed = append(f.completed, enrollmentID)
	return true, nil
}

func (f *fakeEnrollmentStore) SetEnrollmentPaymentFailed(_ context.Context, enrollmentID string) error {
	if e, ok := f.enrollments[enrollmentID]; ok {
		e.PaymentStatus = domain.EnrollmentPaymentFailed
	}
	f.paymentFailed = append(f.paymentFailed, enrollmentID)
	return nil
}

func (f *fakeEnrollmentStore) DropEnrollment(_ context.Context, enrollmentID string) (bool, error) {
	e, ok := f.enrollments[enrollmentID]
	if !ok || e.EnrollmentStatus != domain.EnrollmentStatusPending {
		f.dropped = append(f.dropped, enrollmentID)
		return false, nil
	}
	e.EnrollmentStatus = domain.EnrollmentStatusDropped
	e.PaymentStatus = domain.EnrollmentPaymentFailed
	f.dropped = append(f.dropped, enrollmentID)
	return true, nil
}

func (f *fakeEnrollmentStore) UpdateProgressPercentage(_ context.Context, enrollmentID string, percentage int) error {
	f.percentages[enrollmentID] = percentage
	if e, ok := f.enrollments[enrollmentID]; ok {
		e.ProgressPercentage = percentage
	}
	return nil
}

func (f *fakeEnrollmentStore) UpsertEnrollmentFromLMS(_ context.Context, enrollment *domain.Enrollment) error {
	f.upserted = append(f.upserted, *enrollment)
	if existing, ok := f.enrollments[enrollment.EnrollmentID]; ok {
		existing.LastAccessed = enrollment.LastAccessed
		return nil
	}
	copied := *enrollment
	f.enrollments[enrollment.EnrollmentID] = &copied
	return nil
}

type fakeProgressStore struct {
	modules map[string][]domain.CourseModule // by course id
	records map[string]bool                  // "<enrollment>/<module>"

	completedCount int
	countErr       error
}

func newFakeProgressStore() *fakeProgressStore {
	return &fakeProgressStore{
		modules: make(map[string][]domain.CourseModule),
		records: make(map[string]bool),
	}
}

func (f *fakeProgressStore) EnsureProgressRecord(_ context.Context, enrollmentID, moduleID string) (bool, error) {
	key := enrollmentID + "/" + moduleID
	if f.records[key] {
		return false, nil
	}
	f.records[key] = true
	return true, nil
}

func (f *fakeProgressStore) CountCompletedModules(_ context.Context, enrollmentID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.completedCount, nil
}

func (f *fakeProgressStore) ListCourseModules(_ context.Context, courseID string) ([]domain.CourseModule, error) {
	return f.modules[courseID], nil
}

type fakeUserStore struct {
	users map[string]*domain.User

	lmsIDs       map[string]string
	incubatorIDs map[string]string
	upserted     []domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:        make(map[string]*domain.User),
		lmsIDs:       make(map[string]string),
		incubatorIDs: make(map[string]string),
	}
}

func (f *fakeUserStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) GetUserByExternalLMSID(_ context.Context, externalID string) (*domain.User, error) {
	for _, u := range f.users {
		if u.ExternalLMSUserID != nil && *u.ExternalLMSUserID == externalID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUserStore) SetExternalLMSUserID(_ context.Context, userID, externalID string) (bool, error) {
	u, ok := f.users[userID]
	if !ok || u.ExternalLMSUserID != nil {
		return false, nil
	}
	id := externalID
	u.ExternalLMSUserID = &id
	f.lmsIDs[userID] = externalID
	return true, nil
}

func (f *fakeUserStore) SetExternalIncubatorUserID(_ context.Context, userID, externalID string) (bool, error) {
	u, ok := f.users[userID]
	if !ok || u.ExternalIncubatorUserID != nil {
		return false, nil
	}
	id := externalID
	u.ExternalIncubatorUserID = &id
	f.incubatorIDs[userID] = externalID
	return true, nil
}

func (f *fakeUserStore) UpsertUserFromLMS(_ context.Context, user *domain.User) error {
	f.upserted = append(f.upserted, *user)
	if existing, ok := f.users[user.UserID]; ok {
		existing.Email = user.Email
		existing.FirstName = user.FirstName
		existing.LastName = user.LastName
		if existing.ExternalLMSUserID == nil {
			existing.ExternalLMSUserID = user.ExternalLMSUserID
		}
		return nil
	}
	copied := *user
	f.users[user.UserID] = &copied
	return nil
}

type fakeCourseStore struct {
	courses  map[string]*domain.Course
	upserted []domain.Course
}

func newFakeCourseStore() *fakeCourseStore {
	return &fakeCourseStore{courses: make(map[string]*domain.Course)}
}

func (f *fakeCourseStore) GetCourse(_ context.Context, courseID string) (*domain.Course, error) {
	c, ok := f.courses[courseID]
	if !ok {
		return nil, domain.ErrCourseNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCourseStore) GetCourseByExternalLMSID(_ context.Context, externalID string) (*domain.Course, error) {
	for _, c := range f.courses {
		if c.ExternalLMSCourseID != nil && *c.ExternalLMSCourseID == externalID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, domain.ErrCourseNotFound
}

func (f *fakeCourseStore) UpsertCourseFromLMS(_ context.Context, course *domain.Course) error {
	f.upserted = append(f.upserted, *course)
	if existing, ok := f.courses[course.CourseID]; ok {
		existing.Title = course.Title
		if existing.ExternalLMSCourseID == nil {
			existing.ExternalLMSCourseID = course.ExternalLMSCourseID
		}
		return nil
	}
	copied := *course
	f.courses[course.CourseID] = &copied
	return nil
}

type fakeGateway struct {
	transactions map[string]*paystack.TransactionData
	err          error

	verifyCalls []string
}

func (f *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*paystack.TransactionData, error) {
	f.verifyCalls = append(f.verifyCalls, reference)
	if f.err != nil {
		return nil, f.err
	}
	tx, ok := f.transactions[reference]
	if !ok {
		return nil, fmt.Errorf("unknown reference %s", reference)
	}
	return tx, nil
}

type fakeLMS struct {
	users           []moodle.LMSUser
	courses         []moodle.LMSCourse
	enrollments     []moodle.LMSEnrollment
	userEnrollments map[string][]moodle.LMSEnrollment
	createUserID    string
	createUserErr   error
	enrollErr       error

	createdUsers []moodle.UserProfile
	enrollCalls  [][2]string
}

func (f *fakeLMS) CreateUser(_ context.Context, profile moodle.UserProfile) (string, error) {
	if f.createUserErr != nil {
		return "", f.createUserErr
	}
	f.createdUsers = append(f.createdUsers, profile)
	return f.createUserID, nil
}

func (f *fakeLMS) EnrollUser(_ context.Context, externalUserID, externalCourseID string) error {
	if f.enrollErr != nil {
		return f.enrollErr
	}
	f.enrollCalls = append(f.enrollCalls, [2]string{externalUserID, externalCourseID})
	return nil
}

func (f *fakeLMS) ListUsers(_ context.Context) ([]moodle.LMSUser, error) {
	return f.users, nil
}

func (f *fakeLMS) ListCourses(_ context.Context) ([]moodle.LMSCourse, error) {
	return f.courses, nil
}

func (f *fakeLMS) ListEnrollments(_ context.Context) ([]moodle.LMSEnrollment, error) {
	return f.enrollments, nil
}

func (f *fakeLMS) ListUserEnrollments(_ context.Context, externalUserID string) ([]moodle.LMSEnrollment, error) {
	return f.userEnrollments[externalUserID], nil
}

type fakeIncubator struct {
	createUserID string

	createdUsers   []incubator.Profile
	profileUpdates []string
	completions    map[string][]incubator.Completion
}

func newFakeIncubator() *fakeIncubator {
	return &fakeIncubator{completions: make(map[string][]incubator.Completion)}
}

func (f *fakeIncubator) CreateUser(_ context.Context, profile incubator.Profile) (string, error) {
	f.createdUsers = append(f.createdUsers, profile)
	return f.createUserID, nil
}

func (f *fakeIncubator) UpdateUserProfile(_ context.Context, externalUserID string, _ incubator.Profile) error {
	f.profileUpdates = append(f.profileUpdates, externalUserID)
	return nil
}

func (f *fakeIncubator) SyncCourseCompletion(_ context.Context, externalUserID string, completion incubator.Completion) error {
	f.completions[externalUserID] = append(f.completions[externalUserID], completion)
	return nil
}

type emittedEvent struct {
	UserID string
	Event  string
}

type fakeNotifier struct {
	events []emittedEvent
}

func (f *fakeNotifier) Emit(_ context.Context, userID, event string, _ map[string]interface{}) {
	f.events = append(f.events, emittedEvent{UserID: userID, Event: event})
}

type fakeMailer struct {
	sent []domain.SendEmailPayload
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, template string, data map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, domain.SendEmailPayload{To: to, Template: template, Data: data})
	return nil
}

type fakeEnrollmentDispatch struct {
	completions     [][2]string // enrollment id, payment reference
	initializations []string
	completionSyncs []string
	err             error
}

func (f *fakeEnrollmentDispatch) EnqueueCompleteEnrollment(_ context.Context, enrollmentID, paymentReference string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.completions = append(f.completions, [2]string{enrollmentID, paymentReference})
	return "job-" + enrollmentID, nil
}

func (f *fakeEnrollmentDispatch) EnqueueInitializeProgress(_ context.Context, enrollmentID string) (string, error) {
	f.initializations = append(f.initializations, enrollmentID)
	return "job-init-" + enrollmentID, nil
}

func (f *fakeEnrollmentDispatch) EnqueueSyncCourseCompletion(_ context.Context, enrollmentID string) (string, error) {
	f.completionSyncs = append(f.completionSyncs, enrollmentID)
	return "job-sync-" + enrollmentID, nil
}

type fakePaymentDispatch struct {
	verifications []string
}

func (f *fakePaymentDispatch) EnqueueVerifyPayment(_ context.Context, reference string) (string, error) {
	f.verifications = append(f.verifications, reference)
	return "job-verify-" + reference, nil
}

type fakeNotificationDispatch struct {
	emails []domain.SendEmailPayload
}

func (f *fakeNotificationDispatch) EnqueueEmail(_ context.Context, payload domain.SendEmailPayload) (string, error) {
	f.emails = append(f.emails, payload)
	return "job-email", nil
}

// testJob wraps a payload in a job envelope for handler calls.
func testJob(kind domain.JobKind, payload string) *domain.Job {
	return &domain.Job{
		JobID:       "test-" + string(kind),
		Kind:        kind,
		Payload:     payload,
		MaxAttempts: 5,
	}
}

func noReport(int) {}
