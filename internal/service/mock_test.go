package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/repository"
)

// mockStore implements repository.Store with per-method overrides.
type mockStore struct {
	GetProductFunc               func(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetSavedAddressFunc          func(ctx context.Context, id uuid.UUID) (*domain.SavedAddress, error)
	CreateSavedAddressFunc       func(ctx context.Context, addr domain.SavedAddress) (*domain.SavedAddress, error)
	FindReservationConflictsFunc func(ctx context.Context, slots []domain.ReservationSlot) ([]domain.ReservationSlot, error)
	GetOrderFunc                 func(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrdersBySessionIDFunc     func(ctx context.Context, sessionID string) ([]domain.Order, error)
	StageOrdersFunc              func(ctx context.Context, params repository.StageOrdersParams) ([]domain.Order, error)
	PurgeStagedOrdersFunc        func(ctx context.Context, sessionID string) (int64, error)
	FinalizeOrdersFunc           func(ctx context.Context, params repository.FinalizeOrdersParams) ([]uuid.UUID, bool, error)
	SetOrderStatusFunc           func(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, now time.Time) (*domain.Order, error)
	SetTrackingNumberFunc        func(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*domain.Order, error)
	ListStalePendingOrdersFunc   func(ctx context.Context, cutoff time.Time, limit int32) ([]domain.Order, error)
	CreateStockOperationFunc     func(ctx context.Context, params domain.CreateStockOperationParams) (*domain.StockOperationResult, error)
	ListStockOperationsFunc      func(ctx context.Context, productID uuid.UUID, limit int32) ([]domain.StockOperation, error)
	CreateRefundFunc             func(ctx context.Context, refund domain.Refund) (*domain.Refund, error)
	ListRefundsByOrderFunc       func(ctx context.Context, orderID uuid.UUID) ([]domain.Refund, error)
	CreateAuditEntryFunc         func(ctx context.Context, entry domain.OrderAuditEntry) (*domain.OrderAuditEntry, error)

	// CallLog tracks method calls for ordering assertions.
	CallLog []string
}

var _ repository.Store = (*mockStore)(nil)

func (m *mockStore) log(format string, args ...any) {
	m.CallLog = append(m.CallLog, fmt.Sprintf(format, args...))
}

func (m *mockStore) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	m.log("GetProduct(%s)", id)
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, id)
	}
	return nil, domain.ErrProductNotFound
}

func (m *mockStore) GetSavedAddress(ctx context.Context, id uuid.UUID) (*domain.SavedAddress, error) {
	m.log("GetSavedAddress(%s)", id)
	if m.GetSavedAddressFunc != nil {
		return m.GetSavedAddressFunc(ctx, id)
	}
	return nil, domain.NotFound("address.get", "address", id.String())
}

func (m *mockStore) CreateSavedAddress(ctx context.Context, addr domain.SavedAddress) (*domain.SavedAddress, error) {
	m.log("CreateSavedAddress")
	if m.CreateSavedAddressFunc != nil {
		return m.CreateSavedAddressFunc(ctx, addr)
	}
	addr.ID = uuid.New()
	return &addr, nil
}

func (m *mockStore) FindReservationConflicts(ctx context.Context, slots []domain.ReservationSlot) ([]domain.ReservationSlot, error) {
	m.log("FindReservationConflicts(%d)", len(slots))
	if m.FindReservationConflictsFunc != nil {
		return m.FindReservationConflictsFunc(ctx, slots)
	}
	return nil, nil
}

func (m *mockStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	m.log("GetOrder(%s)", id)
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, id)
	}
	return nil, domain.ErrOrderNotFound
}

func (m *mockStore) GetOrdersBySessionID(ctx context.Context, sessionID string) ([]domain.Order, error) {
	m.log("GetOrdersBySessionID(%s)", sessionID)
	if m.GetOrdersBySessionIDFunc != nil {
		return m.GetOrdersBySessionIDFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockStore) StageOrders(ctx context.Context, params repository.StageOrdersParams) ([]domain.Order, error) {
	m.log("StageOrders(%s, %d orders)", params.SessionID, len(params.Orders))
	if m.StageOrdersFunc != nil {
		return m.StageOrdersFunc(ctx, params)
	}
	return params.Orders, nil
}

func (m *mockStore) PurgeStagedOrders(ctx context.Context, sessionID string) (int64, error) {
	m.log("PurgeStagedOrders(%s)", sessionID)
	if m.PurgeStagedOrdersFunc != nil {
		return m.PurgeStagedOrdersFunc(ctx, sessionID)
	}
	return 0, nil
}

func (m *mockStore) FinalizeOrders(ctx context.Context, params repository.FinalizeOrdersParams) ([]uuid.UUID, bool, error) {
	m.log("FinalizeOrders(%s, %d orders)", params.SessionID, len(params.Orders))
	if m.FinalizeOrdersFunc != nil {
		return m.FinalizeOrdersFunc(ctx, params)
	}
	ids := make([]uuid.UUID, len(params.Orders))
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids, true, nil
}

func (m *mockStore) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, now time.Time) (*domain.Order, error) {
	m.log("SetOrderStatus(%s, %s)", orderID, status)
	if m.SetOrderStatusFunc != nil {
		return m.SetOrderStatusFunc(ctx, orderID, status, now)
	}
	return &domain.Order{ID: orderID, Status: status}, nil
}

func (m *mockStore) SetTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*domain.Order, error) {
	m.log("SetTrackingNumber(%s, %s)", orderID, trackingNumber)
	if m.SetTrackingNumberFunc != nil {
		return m.SetTrackingNumberFunc(ctx, orderID, trackingNumber)
	}
	return &domain.Order{ID: orderID, TrackingNumber: trackingNumber}, nil
}

func (m *mockStore) ListStalePendingOrders(ctx context.Context, cutoff time.Time, limit int32) ([]domain.Order, error) {
	m.log("ListStalePendingOrders")
	if m.ListStalePendingOrdersFunc != nil {
		return m.ListStalePendingOrdersFunc(ctx, cutoff, limit)
	}
	return nil, nil
}

func (m *mockStore) CreateStockOperation(ctx context.Context, params domain.CreateStockOperationParams) (*domain.StockOperationResult, error) {
	m.log("CreateStockOperation(%s, %s, %d)", params.ProductID, params.Direction, params.Quantity)
	if m.CreateStockOperationFunc != nil {
		return m.CreateStockOperationFunc(ctx, params)
	}
	return &domain.StockOperationResult{
		Operation: domain.StockOperation{
			ID:        uuid.New(),
			ProductID: params.ProductID,
			Direction: params.Direction,
			Quantity:  params.Quantity,
		},
	}, nil
}

func (m *mockStore) ListStockOperations(ctx context.Context, productID uuid.UUID, limit int32) ([]domain.StockOperation, error) {
	m.log("ListStockOperations(%s)", productID)
	if m.ListStockOperationsFunc != nil {
		return m.ListStockOperationsFunc(ctx, productID, limit)
	}
	return nil, nil
}

func (m *mockStore) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	m.log("CreateRefund(%s)", refund.OrderID)
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, refund)
	}
	refund.ID = uuid.New()
	return &refund, nil
}

func (m *mockStore) ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Refund, error) {
	m.log("ListRefundsByOrder(%s)", orderID)
	if m.ListRefundsByOrderFunc != nil {
		return m.ListRefundsByOrderFunc(ctx, orderID)
	}
	return nil, nil
}

func (m *mockStore) CreateAuditEntry(ctx context.Context, entry domain.OrderAuditEntry) (*domain.OrderAuditEntry, error) {
	m.log("CreateAuditEntry(%s, %s)", entry.OrderID, entry.Action)
	if m.CreateAuditEntryFunc != nil {
		return m.CreateAuditEntryFunc(ctx, entry)
	}
	entry.ID = uuid.New()
	return &entry, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
