package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/repository"
	"github.com/kestrelcommerce/kestrel/internal/telemetry"
)

// stockService implements domain.StockService.
type stockService struct {
	store  repository.Store
	logger *slog.Logger
}

var _ domain.StockService = (*stockService)(nil)

// NewStockService creates the stock movement service.
func NewStockService(store repository.Store, logger *slog.Logger) domain.StockService {
	return &stockService{
		store:  store,
		logger: logger.With("service", "stock"),
	}
}

// CreateStockOperation records one audited stock movement. Stock-outs linked
// to an order may advance that order to shipped as part of the same atomic
// unit.
func (s *stockService) CreateStockOperation(ctx context.Context, params domain.CreateStockOperationParams) (*domain.StockOperationResult, error) {
	direction, err := domain.ToStockDirection(string(params.Direction))
	if err != nil {
		return nil, err
	}
	params.Direction = direction

	if params.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	result, err := s.store.CreateStockOperation(ctx, params)
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.StockOperations.WithLabelValues(string(direction)).Inc()
	}

	attrs := []any{
		"product_id", params.ProductID,
		"direction", direction,
		"quantity", params.Quantity,
		"new_quantity", result.Operation.NewQuantity,
	}
	if params.OrderID != nil {
		attrs = append(attrs, "order_id", *params.OrderID)
	}
	if result.OrderStatusChanged {
		attrs = append(attrs, "order_status", result.OrderStatus)
	}
	s.logger.InfoContext(ctx, "stock operation recorded", attrs...)

	return result, nil
}

// ListStockOperations returns a product's movement history. An unknown
// product is a 404, not an empty history.
func (s *stockService) ListStockOperations(ctx context.Context, productID uuid.UUID, limit int32) ([]domain.StockOperation, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.ListStockOperations(ctx, productID, limit)
}
