package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config holds SendGrid configuration
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// Mailer sends templated notification emails through SendGrid.
type Mailer struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *slog.Logger
}

// NewMailer creates a new Mailer instance
func NewMailer(config *Config, logger *slog.Logger) *Mailer {
	return &Mailer{
		client: sendgrid.NewSendClient(config.APIKey),
		from:   mail.NewEmail(config.FromName, config.FromEmail),
		logger: logger,
	}
}

// Send renders the named template and delivers it. Delivery failures are
// returned so the notification job can retry with backoff.
func (m *Mailer) Send(ctx context.Context, to, template string, data map[string]string) error {
	subject, plain, html, err := Render(template, data)
	if err != nil {
		return err
	}

	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), plain, html)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}

	m.logger.Info("Email sent",
		slog.String("to", to),
		slog.String("template", template),
		slog.Int("status", resp.StatusCode),
	)

	return nil
}
