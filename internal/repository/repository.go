package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
)

// StageOrdersParams carries one checkout's staged order set. The orders are
// inserted with status pending_payment after any prior staged orders for the
// same session are purged, all in one transaction with the reservation
// conflict re-check.
type StageOrdersParams struct {
	SessionID string
	Orders    []domain.Order
}

// FinalizeOrdersParams carries everything needed to either commit a session's
// orders for the first time or refresh the existing set on replay.
type FinalizeOrdersParams struct {
	SessionID       string
	PaymentIntentID string
	PaymentMethod   string
	ShippingAddress domain.ShippingAddress

	// Orders are the candidate committed orders rebuilt from the
	// processor's line items. Ignored when orders for the session already
	// exist.
	Orders []domain.Order
}

// Store is the persistence boundary consumed by the services. Methods that
// name multiple writes perform them in a single transaction.
type Store interface {
	// Products
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// Saved addresses
	GetSavedAddress(ctx context.Context, id uuid.UUID) (*domain.SavedAddress, error)
	CreateSavedAddress(ctx context.Context, addr domain.SavedAddress) (*domain.SavedAddress, error)

	// FindReservationConflicts returns the subset of slots already booked
	// by an order item of any non-cancelled order.
	FindReservationConflicts(ctx context.Context, slots []domain.ReservationSlot) ([]domain.ReservationSlot, error)

	// Orders
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrdersBySessionID(ctx context.Context, sessionID string) ([]domain.Order, error)

	// StageOrders re-checks reservation conflicts under lock, purges prior
	// staged orders for the session, and inserts the new staged set.
	StageOrders(ctx context.Context, params StageOrdersParams) ([]domain.Order, error)

	// PurgeStagedOrders deletes pending_payment orders for a session.
	// Returns the number of orders removed.
	PurgeStagedOrders(ctx context.Context, sessionID string) (int64, error)

	// FinalizeOrders holds a per-session advisory lock while it either
	// refreshes the session's existing orders (promoting staged ones to
	// processing) or inserts the candidate set. Returns the order ids and
	// whether new rows were created. Two concurrent finalizations of the
	// same session can never both create.
	FinalizeOrders(ctx context.Context, params FinalizeOrdersParams) ([]uuid.UUID, bool, error)

	// SetOrderStatus writes a status, stamping shipped/delivered
	// timestamps idempotently as side effects of the write.
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, now time.Time) (*domain.Order, error)

	// SetTrackingNumber attaches a tracking number independent of status.
	SetTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*domain.Order, error)

	// ListStalePendingOrders returns pending orders whose order date is
	// older than cutoff, oldest first.
	ListStalePendingOrders(ctx context.Context, cutoff time.Time, limit int32) ([]domain.Order, error)

	// Stock
	CreateStockOperation(ctx context.Context, params domain.CreateStockOperationParams) (*domain.StockOperationResult, error)
	ListStockOperations(ctx context.Context, productID uuid.UUID, limit int32) ([]domain.StockOperation, error)

	// Refunds
	CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error)
	ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Refund, error)

	// Audit
	CreateAuditEntry(ctx context.Context, entry domain.OrderAuditEntry) (*domain.OrderAuditEntry, error)
}
