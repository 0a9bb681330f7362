package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/learnhub/enrollment-be/internal/domain"
)

// GetPaymentByReference loads a payment by its unique gateway reference.
func (s *Storage) GetPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	query := `
		SELECT payment_id, user_id, enrollment_id, amount_minor, currency,
		       gateway_reference, status, payment_method, paid_at, created_at, updated_at
		FROM payments
		WHERE gateway_reference = $1
	`

	var payment domain.Payment
	err := s.db.GetContext(ctx, &payment, query, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return &payment, nil
}

// MarkPaymentSucceeded transitions a payment pending → success and records
// how and when it was paid. Returns false when the payment was not pending
// anymore, which callers treat as an idempotent no-op.
func (s *Storage) MarkPaymentSucceeded(ctx context.Context, paymentID, method string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1,
		    payment_method = $2,
		    paid_at = $3,
		    updated_at = NOW()
		WHERE payment_id = $4
		  AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.PaymentStatusSuccess, method, paidAt, paymentID, domain.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment succeeded: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// MarkPaymentFailed transitions a payment pending → failed.
func (s *Storage) MarkPaymentFailed(ctx context.Context, paymentID string) (bool, error) {
	return s.transitionPendingPayment(ctx, paymentID, domain.PaymentStatusFailed)
}

// CancelPayment transitions a payment pending → cancelled. Used by the
// abandoned-payment cleanup job.
func (s *Storage) CancelPayment(ctx context.Context, paymentID string) (bool, error) {
	return s.transitionPendingPayment(ctx, paymentID, domain.PaymentStatusCancelled)
}

func (s *Storage) transitionPendingPayment(ctx context.Context, paymentID, status string) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1,
		    updated_at = NOW()
		WHERE payment_id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, paymentID, domain.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment to %s: %w", status, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Debug("Payment transition skipped - not pending",
			slog.String("payment_id", paymentID),
			slog.String("target_status", status),
		)
	}

	return rows > 0, nil
}

// ListPendingPaymentsBefore returns all payments still pending whose
// checkout started before the cutoff. Used by the poller and the cleanup
// job to find lost webhooks and abandoned checkouts.
func (s *Storage) ListPendingPaymentsBefore(ctx context.Context, cutoff time.Time) ([]domain.Payment, error) {
	query := `
		SELECT payment_id, user_id, enrollment_id, amount_minor, currency,
		       gateway_reference, status, payment_method, paid_at, created_at, updated_at
		FROM payments
		WHERE status = $1
		  AND created_at < $2
		ORDER BY created_at ASC
	`

	var payments []domain.Payment
	err := s.db.SelectContext(ctx, &payments, query, domain.PaymentStatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	return payments, nil
}
