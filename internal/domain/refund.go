package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus mirrors the payment processor's refund lifecycle.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund records a processor refund against an order. Only succeeded refunds
// count toward the order's refunded total.
type Refund struct {
	ID      uuid.UUID
	OrderID uuid.UUID

	PaymentIntentID string
	StripeRefundID  string

	Amount   int64
	Currency string
	Reason   string
	Status   RefundStatus

	IssuedBy  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CountsTowardTotal reports whether this refund contributes to the order's
// refunded total.
func (r *Refund) CountsTowardTotal() bool {
	return r.Status == RefundStatusSucceeded
}

// RefundParams is the staff-facing input for recording a refund against an
// order.
type RefundParams struct {
	PaymentIntentID string
	StripeRefundID  string
	Amount          int64
	Currency        string
	Reason          string
	Status          RefundStatus
	IssuedBy        string
}
