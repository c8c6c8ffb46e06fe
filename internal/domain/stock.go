package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stock-related domain errors.
var (
	ErrProductNotFound = &Error{Code: ENOTFOUND, Message: "Product not found"}
)

// StockDirection is the sign of a stock movement.
type StockDirection string

const (
	StockIn  StockDirection = "in"
	StockOut StockDirection = "out"
)

// ToStockDirection parses a direction string.
func ToStockDirection(s string) (StockDirection, error) {
	switch StockDirection(s) {
	case StockIn:
		return StockIn, nil
	case StockOut:
		return StockOut, nil
	}
	return "", Errorf(EINVALID, "stock.direction", "invalid stock direction: %q", s)
}

// StockOperation is one audited adjustment to a product's on-hand quantity.
// PreviousQuantity and NewQuantity are captured in the same atomic unit as
// the product mutation, so NewQuantity == PreviousQuantity ± Quantity always
// holds for the operation's direction.
type StockOperation struct {
	ID        uuid.UUID
	ProductID uuid.UUID

	Direction StockDirection
	Quantity  int32
	Reason    string

	// OrderID links a stock-out to the order it fulfills. Nil otherwise.
	OrderID *uuid.UUID

	PreviousQuantity int32
	NewQuantity      int32

	PerformedBy string
	CreatedAt   time.Time
}

// CreateStockOperationParams is the staff-facing input for a stock movement.
type CreateStockOperationParams struct {
	ProductID   uuid.UUID
	Direction   StockDirection
	Quantity    int32
	Reason      string
	OrderID     *uuid.UUID
	PerformedBy string
}

// StockOperationResult reports the created ledger entry plus what happened to
// the linked order, if any.
type StockOperationResult struct {
	Operation StockOperation

	// OrderStatusChanged is set when the linked order advanced to shipped.
	OrderStatusChanged bool
	OrderStatus        OrderStatus

	// FullyFulfilled reports whether stock-out quantities now cover the
	// order's quantity for this product. Informational only.
	FullyFulfilled bool
}

// StockService records stock movements and advances linked orders.
type StockService interface {
	// CreateStockOperation atomically adjusts product stock and writes the
	// ledger row. A stock-out naming an order in pending or processing
	// advances it to shipped.
	CreateStockOperation(ctx context.Context, params CreateStockOperationParams) (*StockOperationResult, error)

	// ListStockOperations returns a product's movement history, newest first.
	ListStockOperations(ctx context.Context, productID uuid.UUID, limit int32) ([]StockOperation, error)
}
