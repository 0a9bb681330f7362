package processors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
	"github.com/learnhub/enrollment-be/internal/realtime"
)

// VerifyPayment reconciles one payment against the gateway. The gateway
// is the source of truth: local state only moves when the gateway has a
// definitive answer. Safe to run any number of times for the same
// reference.
func (p *Processors) VerifyPayment(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	var payload domain.VerifyPaymentPayload
	if err := parsePayload(job, &payload); err != nil {
		return nil, err
	}

	payment, err := p.payments.GetPaymentByReference(ctx, payload.Reference)
	if err != nil {
		// A reference we never issued will not appear later; park it.
		return nil, fmt.Errorf("payment %s: %w", payload.Reference, err)
	}

	if payment.Status == domain.PaymentStatusSuccess {
		p.logger.Info("Payment already verified, skipping",
			slog.String("reference", payload.Reference),
		)
		return map[string]interface{}{"outcome": "already_verified"}, nil
	}

	if payment.IsTerminal() {
		return map[string]interface{}{
			"outcome": "terminal",
			"status":  payment.Status,
		}, nil
	}

	tx, err := p.gateway.VerifyTransaction(ctx, payload.Reference)
	if err != nil {
		// Gateway unreachable or erroring - worth retrying.
		return nil, domain.NewRetryableError(fmt.Errorf("gateway verify %s: %w", payload.Reference, err))
	}

	if !tx.Succeeded() {
		updated, err := p.payments.MarkPaymentFailed(ctx, payment.PaymentID)
		if err != nil {
			return nil, domain.NewRetryableError(fmt.Errorf("mark payment failed: %w", err))
		}

		if updated && payment.EnrollmentID != nil {
			if err := p.enrollments.SetEnrollmentPaymentFailed(ctx, *payment.EnrollmentID); err != nil {
				return nil, domain.NewRetryableError(fmt.Errorf("set enrollment payment failed: %w", err))
			}
		}

		p.notifier.Emit(ctx, payment.UserID, realtime.EventPaymentFailed, map[string]interface{}{
			"reference": payload.Reference,
			"status":    tx.Status,
		})

		p.logger.Info("Payment verified as failed",
			slog.String("reference", payload.Reference),
			slog.String("gateway_status", tx.Status),
		)

		return map[string]interface{}{
			"outcome":        "failed",
			"gateway_status": tx.Status,
		}, nil
	}

	paidAt := time.Now().UTC()
	if tx.PaidAt != nil {
		paidAt = *tx.PaidAt
	}

	updated, err := p.payments.MarkPaymentSucceeded(ctx, payment.PaymentID, tx.Channel, paidAt)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("mark payment succeeded: %w", err))
	}
	if !updated {
		// Lost the race to another verification pass; nothing left to do.
		return map[string]interface{}{"outcome": "already_verified"}, nil
	}

	p.notifier.Emit(ctx, payment.UserID, realtime.EventPaymentVerified, map[string]interface{}{
		"reference": payload.Reference,
		"amount":    tx.AmountMinor,
		"currency":  tx.Currency,
	})

	result := map[string]interface{}{"outcome": "verified"}

	if payment.EnrollmentID != nil {
		jobID, err := p.enrollmentQueue.EnqueueCompleteEnrollment(ctx, *payment.EnrollmentID, payload.Reference)
		if err != nil {
			// Payment state is already committed; retrying this job would
			// hit the already_verified guard, so the enqueue must succeed
			// here or the job parks for manual replay.
			return nil, fmt.Errorf("enqueue enrollment completion: %w", err)
		}
		result["completion_job_id"] = jobID
	}

	p.logger.Info("Payment verified",
		slog.String("reference", payload.Reference),
		slog.String("payment_id", payment.PaymentID),
		slog.Int64("amount_minor", tx.AmountMinor),
	)

	return result, nil
}

// PollPendingPayments re-enqueues verification for payments still pending
// past the configured age. Recovers payments whose webhook never arrived.
func (p *Processors) PollPendingPayments(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	cutoff := time.Now().UTC().Add(-p.pendingAge)

	pending, err := p.payments.ListPendingPaymentsBefore(ctx, cutoff)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("list pending payments: %w", err))
	}

	enqueued := 0
	failed := 0
	for i, payment := range pending {
		if _, err := p.paymentQueue.EnqueueVerifyPayment(ctx, payment.GatewayRef); err != nil {
			failed++
			p.logger.Warn("Failed to enqueue verification for pending payment",
				slog.String("reference", payment.GatewayRef),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++

		if len(pending) > 0 {
			report((i + 1) * 100 / len(pending))
		}
	}

	p.logger.Info("Pending payment poll finished",
		slog.Int("found", len(pending)),
		slog.Int("enqueued", enqueued),
		slog.Int("failed", failed),
	)

	return map[string]interface{}{
		"found":    len(pending),
		"enqueued": enqueued,
		"failed":   failed,
	}, nil
}

// CleanupAbandonedPayments cancels payments pending past the abandon age
// and drops their enrollments. Each payment is handled independently; one
// failure never aborts the pass.
func (p *Processors) CleanupAbandonedPayments(ctx context.Context, job *domain.Job, report func(progress int)) (map[string]interface{}, error) {
	cutoff := time.Now().UTC().Add(-p.abandonAge)

	abandoned, err := p.payments.ListPendingPaymentsBefore(ctx, cutoff)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("list abandoned payments: %w", err))
	}

	cancelled := 0
	failed := 0
	for i, payment := range abandoned {
		updated, err := p.payments.CancelPayment(ctx, payment.PaymentID)
		if err != nil {
			failed++
			p.logger.Warn("Failed to cancel abandoned payment",
				slog.String("payment_id", payment.PaymentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !updated {
			// Settled between listing and cancel; leave it alone.
			continue
		}

		cancelled++

		if payment.EnrollmentID != nil {
			if _, err := p.enrollments.DropEnrollment(ctx, *payment.EnrollmentID); err != nil {
				failed++
				p.logger.Warn("Failed to drop enrollment for abandoned payment",
					slog.String("enrollment_id", *payment.EnrollmentID),
					slog.String("error", err.Error()),
				)
			}
		}

		if len(abandoned) > 0 {
			report((i + 1) * 100 / len(abandoned))
		}
	}

	p.logger.Info("Abandoned payment cleanup finished",
		slog.Int("found", len(abandoned)),
		slog.Int("cancelled", cancelled),
		slog.Int("failed", failed),
	)

	return map[string]interface{}{
		"found":     len(abandoned),
		"cancelled": cancelled,
		"failed":    failed,
	}, nil
}
