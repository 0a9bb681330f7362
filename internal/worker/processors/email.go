package processors

import (
	"context"
	"fmt"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// SendEmail delivers one templated notification. Send failures are
// retryable with backoff.
func (p *Processors) SendEmail(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.SendEmailPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	if payload.To == "" || payload.Template == "" {
		return nil, fmt.Errorf("%w: email payload needs to and template", domain.ErrInvalidPayload)
	}

	if err := p.mailer.Send(ctx, payload.To, payload.Template, payload.Data); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("send email: %w", err))
	}

	return map[string]interface{}{
		"to":       payload.To,
		"template": payload.Template,
	}, nil
}
