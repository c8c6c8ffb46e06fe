package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStockOperation_Validation(t *testing.T) {
	svc := NewStockService(&mockStore{}, testLogger())

	_, err := svc.CreateStockOperation(context.Background(), domain.CreateStockOperationParams{
		ProductID: uuid.New(),
		Direction: "sideways",
		Quantity:  1,
	})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = svc.CreateStockOperation(context.Background(), domain.CreateStockOperationParams{
		ProductID: uuid.New(),
		Direction: domain.StockIn,
		Quantity:  0,
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCreateStockOperation_PassesThroughResult(t *testing.T) {
	productID := uuid.New()
	orderID := uuid.New()

	store := &mockStore{
		CreateStockOperationFunc: func(ctx context.Context, params domain.CreateStockOperationParams) (*domain.StockOperationResult, error) {
			return &domain.StockOperationResult{
				Operation: domain.StockOperation{
					ID:               uuid.New(),
					ProductID:        params.ProductID,
					Direction:        params.Direction,
					Quantity:         params.Quantity,
					OrderID:          params.OrderID,
					PreviousQuantity: 10,
					NewQuantity:      7,
				},
				OrderStatusChanged: true,
				OrderStatus:        domain.OrderStatusShipped,
				FullyFulfilled:     true,
			}, nil
		},
	}
	svc := NewStockService(store, testLogger())

	result, err := svc.CreateStockOperation(context.Background(), domain.CreateStockOperationParams{
		ProductID:   productID,
		Direction:   domain.StockOut,
		Quantity:    3,
		OrderID:     &orderID,
		PerformedBy: "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(7), result.Operation.NewQuantity)
	assert.True(t, result.OrderStatusChanged)
	assert.Equal(t, domain.OrderStatusShipped, result.OrderStatus)
	assert.True(t, result.FullyFulfilled)
}

func TestCreateStockOperation_InsufficientStock(t *testing.T) {
	store := &mockStore{
		CreateStockOperationFunc: func(ctx context.Context, params domain.CreateStockOperationParams) (*domain.StockOperationResult, error) {
			return nil, domain.WrapError(domain.ErrInsufficientStock, domain.EINVALID, "stock.create",
				"insufficient stock: have 2, requested 5")
		},
	}
	svc := NewStockService(store, testLogger())

	_, err := svc.CreateStockOperation(context.Background(), domain.CreateStockOperationParams{
		ProductID: uuid.New(),
		Direction: domain.StockOut,
		Quantity:  5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Contains(t, err.Error(), "insufficient stock")
}

func TestListStockOperations(t *testing.T) {
	productID := uuid.New()
	store := &mockStore{
		GetProductFunc: func(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
			assert.Equal(t, productID, id)
			return &domain.Product{ID: id, Name: "Canoe Slot", StockQuantity: 6}, nil
		},
		ListStockOperationsFunc: func(ctx context.Context, pid uuid.UUID, limit int32) ([]domain.StockOperation, error) {
			assert.Equal(t, productID, pid)
			return []domain.StockOperation{
				{ID: uuid.New(), ProductID: pid, Direction: domain.StockOut, Quantity: 1},
				{ID: uuid.New(), ProductID: pid, Direction: domain.StockIn, Quantity: 5},
			}, nil
		},
	}
	svc := NewStockService(store, testLogger())

	ops, err := svc.ListStockOperations(context.Background(), productID, 10)
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestListStockOperations_UnknownProduct(t *testing.T) {
	store := &mockStore{
		ListStockOperationsFunc: func(ctx context.Context, pid uuid.UUID, limit int32) ([]domain.StockOperation, error) {
			t.Fatal("history must not be listed for an unknown product")
			return nil, nil
		},
	}
	svc := NewStockService(store, testLogger())

	_, err := svc.ListStockOperations(context.Background(), uuid.New(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
