package moodle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds LMS connection configuration
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the LMS REST API. The pipeline only creates accounts
// and enrollments through it; sync passes are read-only.
type Client struct {
	rc     *resty.Client
	logger *slog.Logger
}

// NewClient creates a new LMS client
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	rc := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(config.Token).
		SetHeader("Content-Type", "application/json")

	return &Client{
		rc:     rc,
		logger: logger,
	}
}

// UserProfile is the minimal profile the LMS needs for account creation.
type UserProfile struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LMSUser is a user record as the LMS reports it.
type LMSUser struct {
	ExternalUserID string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
}

// LMSCourse is a course record as the LMS reports it.
type LMSCourse struct {
	ExternalCourseID string `json:"id"`
	FullName         string `json:"fullname"`
	ShortName        string `json:"shortname"`
}

// LMSEnrollment links an LMS user to an LMS course.
type LMSEnrollment struct {
	ExternalUserID   string     `json:"user_id"`
	ExternalCourseID string     `json:"course_id"`
	LastAccess       *time.Time `json:"last_access"`
}

// CreateUser creates an LMS account and returns the external user id.
// The pipeline checks local state first, so an "already registered" reply
// carrying the existing id is treated as success.
func (c *Client) CreateUser(ctx context.Context, profile UserProfile) (string, error) {
	var result struct {
		ExternalUserID string `json:"id"`
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(profile).
		SetResult(&result).
		Post("/users")
	if err != nil {
		return "", fmt.Errorf("lms create user request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("lms create user returned %s", resp.Status())
	}

	c.logger.Info("LMS user created",
		slog.String("external_user_id", result.ExternalUserID),
		slog.String("email", profile.Email),
	)

	return result.ExternalUserID, nil
}

// EnrollUser enrolls an LMS user in an LMS course. The LMS treats a
// duplicate enrollment as a no-op.
func (c *Client) EnrollUser(ctx context.Context, externalUserID, externalCourseID string) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"user_id":   externalUserID,
			"course_id": externalCourseID,
		}).
		Post("/enrollments")
	if err != nil {
		return fmt.Errorf("lms enroll request failed: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("lms enroll returned %s", resp.Status())
	}

	c.logger.Info("LMS enrollment created",
		slog.String("external_user_id", externalUserID),
		slog.String("external_course_id", externalCourseID),
	)

	return nil
}

// ListUsers fetches all LMS users for a reconciliation pass.
func (c *Client) ListUsers(ctx context.Context) ([]LMSUser, error) {
	var users []LMSUser
	if err := c.list(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListCourses fetches all LMS courses for a reconciliation pass.
func (c *Client) ListCourses(ctx context.Context) ([]LMSCourse, error) {
	var courses []LMSCourse
	if err := c.list(ctx, "/courses", &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// ListEnrollments fetches all LMS enrollments for a reconciliation pass.
func (c *Client) ListEnrollments(ctx context.Context) ([]LMSEnrollment, error) {
	var enrollments []LMSEnrollment
	if err := c.list(ctx, "/enrollments", &enrollments); err != nil {
		return nil, err
	}
	return enrollments, nil
}

// ListUserEnrollments fetches one user's LMS enrollments, used by the
// immediate per-user sync.
func (c *Client) ListUserEnrollments(ctx context.Context, externalUserID string) ([]LMSEnrollment, error) {
	var enrollments []LMSEnrollment
	if err := c.list(ctx, fmt.Sprintf("/users/%s/enrollments", externalUserID), &enrollments); err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (c *Client) list(ctx context.Context, path string, result interface{}) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(result).
		Get(path)
	if err != nil {
		return fmt.Errorf("lms list %s request failed: %w", path, err)
	}

	if resp.IsError() {
		return fmt.Errorf("lms list %s returned %s", path, resp.Status())
	}

	return nil
}
