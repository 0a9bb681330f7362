package incubator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds talent-incubator connection configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the talent-incubator API. All calls are best-effort
// from the portal's perspective: a failed sync never blocks access.
type Client struct {
	rc     *resty.Client
	logger *slog.Logger
}

// NewClient creates a new incubator client
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rc := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+config.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		rc:     rc,
		logger: logger,
	}
}

// Profile is the talent profile the incubator keeps per user.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Completion reports a finished course for a user's talent record.
type Completion struct {
	CourseTitle        string    `json:"course_title"`
	CompletedAt        time.Time `json:"completed_at"`
	ProgressPercentage int       `json:"progress_percentage"`
}

// CreateUser creates an incubator account and returns the external id.
func (c *Client) CreateUser(ctx context.Context, profile Profile) (string, error) {
	var result struct {
		ExternalUserID string `json:"id"`
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(profile).
		SetResult(&result).
		Post("/users")
	if err != nil {
		return "", fmt.Errorf("incubator create user request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("incubator create user returned %s", resp.Status())
	}

	c.logger.Info("Incubator user created",
		slog.String("external_user_id", result.ExternalUserID),
	)

	return result.ExternalUserID, nil
}

// UpdateUserProfile refreshes the stored talent profile.
func (c *Client) UpdateUserProfile(ctx context.Context, externalUserID string, profile Profile) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(profile).
		Put(fmt.Sprintf("/users/%s/profile", externalUserID))
	if err != nil {
		return fmt.Errorf("incubator update profile request failed: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("incubator update profile returned %s", resp.Status())
	}

	return nil
}

// SyncCourseCompletion records a completed course against the user's
// talent record.
func (c *Client) SyncCourseCompletion(ctx context.Context, externalUserID string, completion Completion) error {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(completion).
		Post(fmt.Sprintf("/users/%s/completions", externalUserID))
	if err != nil {
		return fmt.Errorf("incubator completion sync request failed: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("incubator completion sync returned %s", resp.Status())
	}

	c.logger.Info("Incubator course completion synced",
		slog.String("external_user_id", externalUserID),
		slog.String("course", completion.CourseTitle),
	)

	return nil
}
