package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Order-related domain errors.
var (
	ErrOrderNotFound          = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrPaymentNotSucceeded    = &Error{Code: EPAYMENT, Message: "Payment has not succeeded"}
	ErrInsufficientStock      = &Error{Code: EINVALID, Message: "Insufficient stock for this operation"}
	ErrMissingShippingAddress = &Error{Code: EINVALID, Message: "No shipping address is resolvable for this payment session"}
	ErrMissingSessionOwner    = &Error{Code: EINVALID, Message: "Payment session has no recorded owner"}
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// remember to add new statuses to the validOrderStatuses map
// and to orderTransitions
const (
	// OrderStatusPendingPayment marks a staged order awaiting payment.
	// It is the only status that may be purged outright rather than
	// transitioned.
	OrderStatusPendingPayment OrderStatus = "pending_payment"

	OrderStatusPending          OrderStatus = "pending"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusReturnProcessing OrderStatus = "return_processing"
	OrderStatusReturned         OrderStatus = "returned"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPendingPayment:   {},
	OrderStatusPending:          {},
	OrderStatusProcessing:       {},
	OrderStatusShipped:          {},
	OrderStatusDelivered:        {},
	OrderStatusCancelled:        {},
	OrderStatusReturnProcessing: {},
	OrderStatusReturned:         {},
}

// orderTransitions enumerates every legal status transition. Cancellation
// branches from any pre-delivered state; returns branch from delivered.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:   {OrderStatusPending, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusPending:          {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing:       {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:          {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:        {OrderStatusReturnProcessing},
	OrderStatusReturnProcessing: {OrderStatusReturned},
	OrderStatusReturned:         {},
	OrderStatusCancelled:        {},
}

// ToOrderStatus parses a status string, rejecting unrecognized values.
func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", Errorf(EINVALID, "order.status", "invalid order status: %q", s)
}

// CanTransition reports whether moving from one status to another is legal.
// Re-entering the current status is allowed; the write is idempotent.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderStatuses returns all recognized statuses.
func OrderStatuses() []OrderStatus {
	result := make([]OrderStatus, 0, len(validOrderStatuses))
	for status := range validOrderStatuses {
		result = append(result, status)
	}
	return result
}

// Order is one seller's slice of a checkout. Seller name and the shipping
// address are denormalized snapshots taken at creation; later edits to the
// source records never alter historical orders.
type Order struct {
	ID         uuid.UUID
	CustomerID *uuid.UUID // nil for guest orders
	SellerID   uuid.UUID
	SellerName string

	Items []OrderItem

	TotalAmount   int64 // minor currency units
	RefundedTotal int64 // sum of succeeded refunds

	Status OrderStatus

	ShippingAddress ShippingAddress
	PaymentMethod   string
	StripeSessionID string
	PaymentIntentID string

	TrackingNumber string

	// Guest contact fields, set only when CustomerID is nil.
	GuestEmail    string
	GuestFullName string
	GuestPhone    string

	CreatedAt   time.Time
	OrderDate   time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
}

// IsGuest reports whether the order is attributed to contact fields rather
// than a customer account.
func (o *Order) IsGuest() bool {
	return o.CustomerID == nil
}

// OrderItem is a line within an order. Product name, image and price are
// snapshots; Subtotal is computed once at creation and never recomputed from
// live prices.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID

	ProductName  string
	ProductImage string

	Quantity  int32
	UnitPrice int64
	Subtotal  int64

	// Reservation fields, meaningful only when IsReservation is set.
	IsReservation   bool
	ReservationDate string // YYYY-MM-DD
	ReservationTime string // HH:MM
	ReservationNote string
}

// OrderAuditEntry records a staff or system action against an order.
type OrderAuditEntry struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Action    string
	Detail    string
	Actor     string
	CreatedAt time.Time
}

// Audit actions.
const (
	AuditActionStatusChange     = "status_change"
	AuditActionTrackingSet      = "tracking_set"
	AuditActionCancelledTimeout = "cancelled_timeout"
)

// OrderService provides order status mutations and lookups.
type OrderService interface {
	// GetOrder retrieves a single order with its items.
	GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error)

	// UpdateOrderStatus transitions an order to a new status, stamping
	// shipped/delivered timestamps as side effects of the status write.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus, actor string) (*Order, error)

	// SetTrackingNumber attaches a tracking number independent of status.
	SetTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber, actor string) (*Order, error)

	// RecordRefund persists a processor refund against an order. The
	// order's refunded total is recomputed from succeeded refunds only.
	RecordRefund(ctx context.Context, orderID uuid.UUID, params RefundParams) (*Refund, error)

	// ListRefunds returns an order's refunds, newest first.
	ListRefunds(ctx context.Context, orderID uuid.UUID) ([]Refund, error)
}
