package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateOrderStatus_AllowedTransition(t *testing.T) {
	orderID := uuid.New()
	store := &mockStore{
		GetOrderFunc: func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			return &domain.Order{ID: orderID, Status: domain.OrderStatusProcessing}, nil
		},
	}
	svc := NewOrderService(store, testLogger())

	updated, err := svc.UpdateOrderStatus(context.Background(), orderID, domain.OrderStatusShipped, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)

	var audited bool
	for _, call := range store.CallLog {
		if strings.Contains(call, "status_change") {
			audited = true
		}
	}
	assert.True(t, audited, "status change audited")
}

func TestUpdateOrderStatus_IllegalTransition(t *testing.T) {
	orderID := uuid.New()
	store := &mockStore{
		GetOrderFunc: func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			return &domain.Order{ID: orderID, Status: domain.OrderStatusDelivered}, nil
		},
	}
	svc := NewOrderService(store, testLogger())

	_, err := svc.UpdateOrderStatus(context.Background(), orderID, domain.OrderStatusProcessing, "ops")
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Contains(t, err.Error(), "illegal status transition")

	for _, call := range store.CallLog {
		assert.False(t, strings.HasPrefix(call, "SetOrderStatus"), "no write on illegal transition")
	}
}

func TestUpdateOrderStatus_SameStatusIsNoOpWithoutAudit(t *testing.T) {
	orderID := uuid.New()
	store := &mockStore{
		GetOrderFunc: func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			return &domain.Order{ID: orderID, Status: domain.OrderStatusShipped}, nil
		},
	}
	svc := NewOrderService(store, testLogger())

	_, err := svc.UpdateOrderStatus(context.Background(), orderID, domain.OrderStatusShipped, "ops")
	require.NoError(t, err)

	for _, call := range store.CallLog {
		assert.False(t, strings.HasPrefix(call, "CreateAuditEntry"), "no audit for no-op write")
	}
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	svc := NewOrderService(&mockStore{}, testLogger())

	_, err := svc.UpdateOrderStatus(context.Background(), uuid.New(), domain.OrderStatus("canceled"), "ops")
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestUpdateOrderStatus_OrderNotFound(t *testing.T) {
	svc := NewOrderService(&mockStore{}, testLogger())

	_, err := svc.UpdateOrderStatus(context.Background(), uuid.New(), domain.OrderStatusShipped, "ops")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdateOrderStatus_AuditFailureDoesNotFailAction(t *testing.T) {
	orderID := uuid.New()
	store := &mockStore{
		GetOrderFunc: func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			return &domain.Order{ID: orderID, Status: domain.OrderStatusPending}, nil
		},
		CreateAuditEntryFunc: func(ctx context.Context, entry domain.OrderAuditEntry) (*domain.OrderAuditEntry, error) {
			return nil, domain.Internal(nil, "audit.create", "audit table unavailable")
		},
	}
	svc := NewOrderService(store, testLogger())

	updated, err := svc.UpdateOrderStatus(context.Background(), orderID, domain.OrderStatusCancelled, "ops")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
}

func TestSetTrackingNumber(t *testing.T) {
	orderID := uuid.New()
	svc := NewOrderService(&mockStore{
		SetTrackingNumberFunc: func(ctx context.Context, id uuid.UUID, tracking string) (*domain.Order, error) {
			return &domain.Order{ID: id, TrackingNumber: tracking, Status: domain.OrderStatusShipped}, nil
		},
	}, testLogger())

	updated, err := svc.SetTrackingNumber(context.Background(), orderID, "1Z999AA10123456784", "ops")
	require.NoError(t, err)
	assert.Equal(t, "1Z999AA10123456784", updated.TrackingNumber)

	_, err = svc.SetTrackingNumber(context.Background(), orderID, "", "ops")
	assert.ErrorIs(t, err, ErrMissingTracking)
}

func TestRecordRefund(t *testing.T) {
	orderID := uuid.New()
	store := &mockStore{
		GetOrderFunc: func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			return &domain.Order{ID: orderID, Status: domain.OrderStatusDelivered, TotalAmount: 5000}, nil
		},
		CreateRefundFunc: func(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
			refund.ID = uuid.New()
			refund.CreatedAt = time.Now()
			return &refund, nil
		},
	}
	svc := NewOrderService(store, testLogger())

	refund, err := svc.RecordRefund(context.Background(), orderID, domain.RefundParams{
		StripeRefundID: "re_123",
		Amount:         1500,
		Currency:       "usd",
		Status:         domain.RefundStatusSucceeded,
		IssuedBy:       "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, orderID, refund.OrderID)
	assert.True(t, refund.CountsTowardTotal())
}

func TestRecordRefund_DefaultsToPending(t *testing.T) {
	orderID := uuid.New()
	store := &mockStore{
		GetOrderFunc: func(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
			return &domain.Order{ID: orderID}, nil
		},
	}
	svc := NewOrderService(store, testLogger())

	refund, err := svc.RecordRefund(context.Background(), orderID, domain.RefundParams{
		StripeRefundID: "re_456",
		Amount:         500,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPending, refund.Status)
	assert.False(t, refund.CountsTowardTotal())
}

func TestRecordRefund_Validation(t *testing.T) {
	svc := NewOrderService(&mockStore{}, testLogger())

	_, err := svc.RecordRefund(context.Background(), uuid.New(), domain.RefundParams{Amount: 0})
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)

	_, err = svc.RecordRefund(context.Background(), uuid.New(), domain.RefundParams{Amount: 100})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
