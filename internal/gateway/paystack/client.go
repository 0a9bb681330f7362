package paystack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config holds gateway connection configuration
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client talks to the payment gateway's transaction API.
type Client struct {
	rc     *resty.Client
	logger *slog.Logger
}

// NewClient creates a new gateway client
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rc := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(timeout).
		SetAuthToken(config.SecretKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		rc:     rc,
		logger: logger,
	}
}

// InitializeRequest starts a checkout for a given amount in minor units.
type InitializeRequest struct {
	Email       string            `json:"email"`
	AmountMinor int64             `json:"amount"`
	Reference   string            `json:"reference"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitializeResponse carries the hosted checkout URL.
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// TransactionData is the verified state of one transaction.
type TransactionData struct {
	Status      string     `json:"status"` // success, failed, abandoned
	Reference   string     `json:"reference"`
	AmountMinor int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Channel     string     `json:"channel"` // card, mobile_money, bank
	PaidAt      *time.Time `json:"paid_at"`
}

// Succeeded reports whether the gateway settled the transaction.
func (d *TransactionData) Succeeded() bool {
	return d.Status == "success"
}

type apiEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// InitializeTransaction creates a checkout session. Called by the CRUD
// layer when a payment row is created.
func (c *Client) InitializeTransaction(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	var envelope apiEnvelope[InitializeResponse]

	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&envelope).
		Post("/transaction/initialize")
	if err != nil {
		return nil, fmt.Errorf("gateway initialize request failed: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("gateway initialize returned %s", resp.Status())
	}

	if !envelope.Status {
		return nil, fmt.Errorf("gateway refused initialization: %s", envelope.Message)
	}

	c.logger.Info("Gateway transaction initialized",
		slog.String("reference", envelope.Data.Reference),
	)

	return &envelope.Data, nil
}

// VerifyTransaction fetches the authoritative state of a transaction by
// reference. Network failures and 5xx responses are transient; callers
// retry them. A definitive failed/abandoned status is a normal result.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*TransactionData, error) {
	var envelope apiEnvelope[TransactionData]

	resp, err := c.rc.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(fmt.Sprintf("/transaction/verify/%s", reference))
	if err != nil {
		return nil, fmt.Errorf("gateway verify request failed: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("gateway verify returned %s", resp.Status())
	}

	if !envelope.Status {
		return nil, fmt.Errorf("gateway could not verify %s: %s", reference, envelope.Message)
	}

	c.logger.Debug("Gateway transaction verified",
		slog.String("reference", reference),
		slog.String("status", envelope.Data.Status),
	)

	return &envelope.Data, nil
}
