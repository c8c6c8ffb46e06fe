package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kestrelcommerce/kestrel/internal/domain"
)

const refundColumns = `id, order_id, payment_intent_id, stripe_refund_id,
	amount, currency, reason, status, issued_by, created_at, updated_at`

func scanRefund(row rowScanner) (domain.Refund, error) {
	var r domain.Refund
	var status string
	err := row.Scan(
		&r.ID, &r.OrderID, &r.PaymentIntentID, &r.StripeRefundID,
		&r.Amount, &r.Currency, &r.Reason, &status, &r.IssuedBy,
		&r.CreatedAt, &r.UpdatedAt,
	)
	r.Status = domain.RefundStatus(status)
	return r, err
}

// CreateRefund upserts a refund by its processor id and recomputes the
// order's refunded total from succeeded refunds in the same transaction.
// Duplicate refund webhooks therefore converge instead of double-counting.
func (s *PostgresStore) CreateRefund(ctx context.Context, refund domain.Refund) (*domain.Refund, error) {
	return withTx(ctx, s.pool, func(tx pgx.Tx) (*domain.Refund, error) {
		if refund.ID == uuid.Nil {
			refund.ID = uuid.New()
		}
		now := time.Now().UTC()
		if refund.CreatedAt.IsZero() {
			refund.CreatedAt = now
		}
		refund.UpdatedAt = now

		row := tx.QueryRow(ctx, `
			INSERT INTO refunds (
				id, order_id, payment_intent_id, stripe_refund_id,
				amount, currency, reason, status, issued_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (stripe_refund_id) DO UPDATE SET
				status = EXCLUDED.status,
				amount = EXCLUDED.amount,
				updated_at = EXCLUDED.updated_at
			RETURNING `+refundColumns,
			refund.ID, refund.OrderID, refund.PaymentIntentID, refund.StripeRefundID,
			refund.Amount, refund.Currency, refund.Reason, string(refund.Status),
			refund.IssuedBy, refund.CreatedAt, refund.UpdatedAt)

		stored, err := scanRefund(row)
		if err != nil {
			return nil, fmt.Errorf("upsert refund: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE orders SET refunded_total = (
				SELECT COALESCE(SUM(amount), 0) FROM refunds
				WHERE order_id = $1 AND status = 'succeeded'
			) WHERE id = $1`, stored.OrderID)
		if err != nil {
			return nil, fmt.Errorf("recompute refunded total: %w", err)
		}

		return &stored, nil
	})
}

// ListRefundsByOrder returns an order's refunds, newest first.
func (s *PostgresStore) ListRefundsByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Refund, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query refunds: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}
