package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/repository"
	"github.com/kestrelcommerce/kestrel/internal/telemetry"
)

// orderService implements domain.OrderService.
type orderService struct {
	store  repository.Store
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.OrderService = (*orderService)(nil)

// NewOrderService creates the staff-facing order management service.
func NewOrderService(store repository.Store, logger *slog.Logger) domain.OrderService {
	return &orderService{
		store:  store,
		now:    time.Now,
		logger: logger.With("service", "order"),
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

// UpdateOrderStatus transitions an order, rejecting moves the lifecycle does
// not allow. Writing the current status again is a no-op that still succeeds.
func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, actor string) (*domain.Order, error) {
	const op = "order.update_status"

	status, err := domain.ToOrderStatus(string(status))
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransition(current.Status, status) {
		return nil, domain.Errorf(domain.EINVALID, op,
			"illegal status transition from %s to %s", current.Status, status)
	}

	updated, err := s.store.SetOrderStatus(ctx, orderID, status, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if current.Status != status {
		s.audit(ctx, domain.OrderAuditEntry{
			OrderID: orderID,
			Action:  domain.AuditActionStatusChange,
			Detail:  fmt.Sprintf("%s -> %s", current.Status, status),
			Actor:   actor,
		})
	}

	s.logger.InfoContext(ctx, "order status updated",
		"order_id", orderID,
		"from", current.Status,
		"to", status,
		"actor", actor)

	return updated, nil
}

func (s *orderService) SetTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber, actor string) (*domain.Order, error) {
	if trackingNumber == "" {
		return nil, ErrMissingTracking
	}

	updated, err := s.store.SetTrackingNumber(ctx, orderID, trackingNumber)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, domain.OrderAuditEntry{
		OrderID: orderID,
		Action:  domain.AuditActionTrackingSet,
		Detail:  trackingNumber,
		Actor:   actor,
	})

	return updated, nil
}

// RecordRefund persists a processor refund and recomputes the order's
// refunded total. Re-submitting the same processor refund id updates the
// existing row instead of inserting a duplicate.
func (s *orderService) RecordRefund(ctx context.Context, orderID uuid.UUID, params domain.RefundParams) (*domain.Refund, error) {
	if params.Amount <= 0 {
		return nil, ErrInvalidRefundAmount
	}

	// Verify the order exists so a refund can never dangle.
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}

	status := params.Status
	if status == "" {
		status = domain.RefundStatusPending
	}

	refund, err := s.store.CreateRefund(ctx, domain.Refund{
		OrderID:         orderID,
		PaymentIntentID: params.PaymentIntentID,
		StripeRefundID:  params.StripeRefundID,
		Amount:          params.Amount,
		Currency:        params.Currency,
		Reason:          params.Reason,
		Status:          status,
		IssuedBy:        params.IssuedBy,
	})
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.RefundsRecorded.Inc()
		if refund.CountsTowardTotal() {
			telemetry.Business.RefundAmount.Add(float64(refund.Amount))
		}
	}

	s.logger.InfoContext(ctx, "refund recorded",
		"order_id", orderID,
		"refund_id", refund.ID,
		"amount", refund.Amount,
		"status", refund.Status)

	return refund, nil
}

func (s *orderService) ListRefunds(ctx context.Context, orderID uuid.UUID) ([]domain.Refund, error) {
	return s.store.ListRefundsByOrder(ctx, orderID)
}

// audit writes an audit entry, logging failures instead of surfacing them so
// auditing can never fail the staff action that succeeded.
func (s *orderService) audit(ctx context.Context, entry domain.OrderAuditEntry) {
	if _, err := s.store.CreateAuditEntry(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit write failed",
			"order_id", entry.OrderID,
			"action", entry.Action,
			"error", err)
	}
}
