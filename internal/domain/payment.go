package domain

import "time"

// Payment status constants. A payment is created in PENDING state by the
// checkout flow and only ever transitions through the reconciliation
// processor or the abandoned-payment cleanup job.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSuccess   = "success"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// Payment represents a gateway transaction owned by the portal.
// Amount is stored in minor units (pesewas for GHS).
type Payment struct {
	PaymentID     string     `db:"payment_id"`
	UserID        string     `db:"user_id"`
	EnrollmentID  *string    `db:"enrollment_id"`
	AmountMinor   int64      `db:"amount_minor"`
	Currency      string     `db:"currency"`
	GatewayRef    string     `db:"gateway_reference"`
	Status        string     `db:"status"`
	PaymentMethod *string    `db:"payment_method"`
	PaidAt        *time.Time `db:"paid_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// IsTerminal reports whether the payment can no longer change state.
func (p *Payment) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}
