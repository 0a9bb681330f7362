package dto

import "encoding/json"

type ListJobsRequest struct {
	Queue    string `form:"queue"`
	Kind     string `form:"kind"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID        string          `json:"job_id"`
	Queue        string          `json:"queue"`
	Kind         string          `json:"kind"`
	Payload      string          `json:"payload"`
	Priority     int             `json:"priority"`
	Status       string          `json:"status"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	RepeatKey    string          `json:"repeat_key,omitempty"`
	RunAt        string          `json:"run_at,omitempty"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

// WebhookEvent is the envelope the payment gateway posts. Only the event
// name and the transaction reference are read; everything else is
// re-fetched from the gateway during verification.
type WebhookEvent struct {
	Event string           `json:"event"`
	Data  WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type ForceSyncRequest struct {
	Target string `json:"target" binding:"required"` // users, courses, enrollments
}
