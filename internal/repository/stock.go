package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kestrelcommerce/kestrel/internal/domain"
)

const stockOperationColumns = `id, product_id, direction, quantity, reason, order_id,
	previous_quantity, new_quantity, performed_by, created_at`

func scanStockOperation(row rowScanner) (domain.StockOperation, error) {
	var op domain.StockOperation
	var direction string
	err := row.Scan(
		&op.ID, &op.ProductID, &direction, &op.Quantity, &op.Reason, &op.OrderID,
		&op.PreviousQuantity, &op.NewQuantity, &op.PerformedBy, &op.CreatedAt,
	)
	op.Direction = domain.StockDirection(direction)
	return op, err
}

// CreateStockOperation performs the read-adjust-write of a product's stock
// quantity and the ledger insert as one transaction, locking the product row
// so concurrent movements on the same product cannot lose updates. A
// stock-out naming an order in pending or processing advances it to shipped
// in the same transaction.
func (s *PostgresStore) CreateStockOperation(ctx context.Context, params domain.CreateStockOperationParams) (*domain.StockOperationResult, error) {
	return withTx(ctx, s.pool, func(tx pgx.Tx) (*domain.StockOperationResult, error) {
		var current int32
		err := tx.QueryRow(ctx,
			`SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE`,
			params.ProductID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrProductNotFound
			}
			return nil, fmt.Errorf("lock product: %w", err)
		}

		var next int32
		switch params.Direction {
		case domain.StockIn:
			next = current + params.Quantity
		case domain.StockOut:
			next = current - params.Quantity
			if next < 0 {
				return nil, domain.WrapError(domain.ErrInsufficientStock, domain.EINVALID, "stock.create",
					fmt.Sprintf("insufficient stock: have %d, requested %d", current, params.Quantity))
			}
		default:
			return nil, domain.Errorf(domain.EINVALID, "stock.create",
				"invalid stock direction: %q", params.Direction)
		}

		result := &domain.StockOperationResult{
			Operation: domain.StockOperation{
				ID:               uuid.New(),
				ProductID:        params.ProductID,
				Direction:        params.Direction,
				Quantity:         params.Quantity,
				Reason:           params.Reason,
				OrderID:          params.OrderID,
				PreviousQuantity: current,
				NewQuantity:      next,
				PerformedBy:      params.PerformedBy,
				CreatedAt:        time.Now().UTC(),
			},
		}

		op := result.Operation
		_, err = tx.Exec(ctx, `
			INSERT INTO stock_operations (
				id, product_id, direction, quantity, reason, order_id,
				previous_quantity, new_quantity, performed_by, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			op.ID, op.ProductID, string(op.Direction), op.Quantity, op.Reason, op.OrderID,
			op.PreviousQuantity, op.NewQuantity, op.PerformedBy, op.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert stock operation: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET stock_quantity = $2, updated_at = now() WHERE id = $1`,
			params.ProductID, next)
		if err != nil {
			return nil, fmt.Errorf("update product stock: %w", err)
		}

		if params.OrderID != nil && params.Direction == domain.StockOut {
			if err := s.advanceLinkedOrder(ctx, tx, *params.OrderID, params.ProductID, result); err != nil {
				return nil, err
			}
		}

		return result, nil
	})
}

// advanceLinkedOrder moves a pending or processing order to shipped and
// computes whether the order's line for this product is now fully covered by
// stock-out quantities. Orders in any other status are left untouched; the
// stock operation itself still stands.
func (s *PostgresStore) advanceLinkedOrder(ctx context.Context, tx pgx.Tx, orderID, productID uuid.UUID, result *domain.StockOperationResult) error {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("lock order: %w", err)
	}

	current := domain.OrderStatus(status)
	result.OrderStatus = current

	if current == domain.OrderStatusPending || current == domain.OrderStatusProcessing {
		_, err := tx.Exec(ctx, `
			UPDATE orders SET status = 'shipped', shipped_at = COALESCE(shipped_at, now())
			WHERE id = $1`, orderID)
		if err != nil {
			return fmt.Errorf("advance order: %w", err)
		}
		result.OrderStatus = domain.OrderStatusShipped
		result.OrderStatusChanged = true
	}

	var ordered, dispatched int64
	err = tx.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(quantity) FROM order_items WHERE order_id = $1 AND product_id = $2), 0),
			COALESCE((SELECT SUM(quantity) FROM stock_operations WHERE order_id = $1 AND product_id = $2 AND direction = 'out'), 0)`,
		orderID, productID).Scan(&ordered, &dispatched)
	if err != nil {
		return fmt.Errorf("fulfillment sums: %w", err)
	}
	result.FullyFulfilled = ordered > 0 && dispatched >= ordered

	return nil
}

// ListStockOperations returns a product's movement history, newest first.
func (s *PostgresStore) ListStockOperations(ctx context.Context, productID uuid.UUID, limit int32) ([]domain.StockOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+stockOperationColumns+` FROM stock_operations
		 WHERE product_id = $1 ORDER BY created_at DESC LIMIT $2`,
		productID, limit)
	if err != nil {
		return nil, fmt.Errorf("query stock operations: %w", err)
	}
	defer rows.Close()

	var ops []domain.StockOperation
	for rows.Next() {
		op, err := scanStockOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
