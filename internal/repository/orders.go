package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kestrelcommerce/kestrel/internal/domain"
)

// dbtx is the subset of pgx operations shared by pools and transactions.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, customer_id, seller_id, seller_name, total_amount, refunded_total,
	status, payment_method, stripe_session_id, payment_intent_id, tracking_number,
	guest_email, guest_full_name, guest_phone,
	ship_full_name, ship_phone, ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country,
	created_at, order_date, shipped_at, delivered_at`

const orderItemColumns = `id, order_id, product_id, product_name, product_image,
	quantity, unit_price, subtotal,
	is_reservation, reservation_date, reservation_time, reservation_note`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var status string

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.SellerID, &o.SellerName, &o.TotalAmount, &o.RefundedTotal,
		&status, &o.PaymentMethod, &o.StripeSessionID, &o.PaymentIntentID, &o.TrackingNumber,
		&o.GuestEmail, &o.GuestFullName, &o.GuestPhone,
		&o.ShippingAddress.FullName, &o.ShippingAddress.Phone,
		&o.ShippingAddress.AddressLine1, &o.ShippingAddress.AddressLine2,
		&o.ShippingAddress.City, &o.ShippingAddress.State,
		&o.ShippingAddress.PostalCode, &o.ShippingAddress.Country,
		&o.CreatedAt, &o.OrderDate, &o.ShippedAt, &o.DeliveredAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func scanOrderItem(row rowScanner) (domain.OrderItem, error) {
	var it domain.OrderItem
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductImage,
		&it.Quantity, &it.UnitPrice, &it.Subtotal,
		&it.IsReservation, &it.ReservationDate, &it.ReservationTime, &it.ReservationNote,
	)
	return it, err
}

func getOrderItems(ctx context.Context, q dbtx, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetOrder retrieves an order with its items.
func (s *PostgresStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Items, err = getOrderItems(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrdersBySessionID returns every order tied to a payment session,
// creation order.
func (s *PostgresStore) GetOrdersBySessionID(ctx context.Context, sessionID string) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE stripe_session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query orders by session: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].Items, err = getOrderItems(ctx, s.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func insertOrder(ctx context.Context, q dbtx, o *domain.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, seller_id, seller_name, total_amount, refunded_total,
			status, payment_method, stripe_session_id, payment_intent_id, tracking_number,
			guest_email, guest_full_name, guest_phone,
			ship_full_name, ship_phone, ship_line1, ship_line2, ship_city, ship_state, ship_postal_code, ship_country,
			created_at, order_date
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22,
			$23, $24
		)`,
		o.ID, o.CustomerID, o.SellerID, o.SellerName, o.TotalAmount, o.RefundedTotal,
		string(o.Status), o.PaymentMethod, o.StripeSessionID, o.PaymentIntentID, o.TrackingNumber,
		o.GuestEmail, o.GuestFullName, o.GuestPhone,
		o.ShippingAddress.FullName, o.ShippingAddress.Phone,
		o.ShippingAddress.AddressLine1, o.ShippingAddress.AddressLine2,
		o.ShippingAddress.City, o.ShippingAddress.State,
		o.ShippingAddress.PostalCode, o.ShippingAddress.Country,
		o.CreatedAt, o.OrderDate,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.OrderID = o.ID
		_, err := q.Exec(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, product_name, product_image,
				quantity, unit_price, subtotal,
				is_reservation, reservation_date, reservation_time, reservation_note
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			it.ID, it.OrderID, it.ProductID, it.ProductName, it.ProductImage,
			it.Quantity, it.UnitPrice, it.Subtotal,
			it.IsReservation, it.ReservationDate, it.ReservationTime, it.ReservationNote,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func findConflicts(ctx context.Context, q dbtx, slots []domain.ReservationSlot) ([]domain.ReservationSlot, error) {
	var conflicts []domain.ReservationSlot
	for _, slot := range slots {
		var exists bool
		err := q.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM order_items oi
				JOIN orders o ON o.id = oi.order_id
				WHERE oi.product_id = $1
				  AND oi.is_reservation
				  AND oi.reservation_date = $2
				  AND oi.reservation_time = $3
				  AND o.status <> 'cancelled'
			)`,
			slot.ProductID, slot.ReservationDate, slot.ReservationTime,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check reservation slot: %w", err)
		}
		if exists {
			conflicts = append(conflicts, slot)
		}
	}
	return conflicts, nil
}

// FindReservationConflicts reports which of the given slots are already
// booked by a non-cancelled order.
func (s *PostgresStore) FindReservationConflicts(ctx context.Context, slots []domain.ReservationSlot) ([]domain.ReservationSlot, error) {
	return findConflicts(ctx, s.pool, slots)
}

// StageOrders atomically re-checks reservation conflicts, purges prior staged
// orders for the session, and inserts the new staged set.
func (s *PostgresStore) StageOrders(ctx context.Context, params StageOrdersParams) ([]domain.Order, error) {
	return withTx(ctx, s.pool, func(tx pgx.Tx) ([]domain.Order, error) {
		if err := advisoryLockSession(ctx, tx, params.SessionID); err != nil {
			return nil, err
		}

		var slots []domain.ReservationSlot
		for _, o := range params.Orders {
			for _, it := range o.Items {
				if it.IsReservation {
					slots = append(slots, domain.ReservationSlot{
						ProductID:       it.ProductID,
						ReservationDate: it.ReservationDate,
						ReservationTime: it.ReservationTime,
					})
				}
			}
		}
		conflicts, err := findConflicts(ctx, tx, slots)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, domain.ReservationConflictError("checkout.stage", conflicts)
		}

		_, err = tx.Exec(ctx,
			`DELETE FROM orders WHERE stripe_session_id = $1 AND status = 'pending_payment'`,
			params.SessionID)
		if err != nil {
			return nil, fmt.Errorf("purge staged orders: %w", err)
		}

		now := time.Now().UTC()
		staged := make([]domain.Order, len(params.Orders))
		for i, o := range params.Orders {
			o.Status = domain.OrderStatusPendingPayment
			o.StripeSessionID = params.SessionID
			o.CreatedAt = now
			o.OrderDate = now
			if err := insertOrder(ctx, tx, &o); err != nil {
				return nil, err
			}
			staged[i] = o
		}
		return staged, nil
	})
}

// PurgeStagedOrders deletes pending_payment orders for a session. Committed
// orders are never touched.
func (s *PostgresStore) PurgeStagedOrders(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orders WHERE stripe_session_id = $1 AND status = 'pending_payment'`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("purge staged orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FinalizeOrders commits a paid session's orders exactly once. An advisory
// lock on the session id serializes the check-then-act against the
// concurrent client-call and webhook triggers.
func (s *PostgresStore) FinalizeOrders(ctx context.Context, params FinalizeOrdersParams) ([]uuid.UUID, bool, error) {
	type result struct {
		ids     []uuid.UUID
		created bool
	}

	res, err := withTx(ctx, s.pool, func(tx pgx.Tx) (result, error) {
		var r result

		if err := advisoryLockSession(ctx, tx, params.SessionID); err != nil {
			return r, err
		}

		rows, err := tx.Query(ctx,
			`SELECT id FROM orders WHERE stripe_session_id = $1 ORDER BY created_at, id`,
			params.SessionID)
		if err != nil {
			return r, fmt.Errorf("query existing orders: %w", err)
		}
		existing, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return r, fmt.Errorf("collect existing orders: %w", err)
		}

		if len(existing) > 0 {
			// Replay: refresh payment binding, order date and address
			// snapshot. Status only moves off the staged state; a
			// second call observes processing and leaves it alone.
			_, err := tx.Exec(ctx, `
				UPDATE orders SET
					status = CASE WHEN status = 'pending_payment' THEN 'processing' ELSE status END,
					payment_method = $2,
					payment_intent_id = $3,
					order_date = now(),
					ship_full_name = $4, ship_phone = $5, ship_line1 = $6, ship_line2 = $7,
					ship_city = $8, ship_state = $9, ship_postal_code = $10, ship_country = $11
				WHERE stripe_session_id = $1`,
				params.SessionID, params.PaymentMethod, params.PaymentIntentID,
				params.ShippingAddress.FullName, params.ShippingAddress.Phone,
				params.ShippingAddress.AddressLine1, params.ShippingAddress.AddressLine2,
				params.ShippingAddress.City, params.ShippingAddress.State,
				params.ShippingAddress.PostalCode, params.ShippingAddress.Country,
			)
			if err != nil {
				return r, fmt.Errorf("refresh orders: %w", err)
			}
			r.ids = existing
			return r, nil
		}

		if len(params.Orders) == 0 {
			return r, domain.ErrNoPurchasableItem
		}

		now := time.Now().UTC()
		for i := range params.Orders {
			o := params.Orders[i]
			o.Status = domain.OrderStatusProcessing
			o.StripeSessionID = params.SessionID
			o.PaymentIntentID = params.PaymentIntentID
			o.PaymentMethod = params.PaymentMethod
			o.ShippingAddress = params.ShippingAddress
			o.CreatedAt = now
			o.OrderDate = now
			if err := insertOrder(ctx, tx, &o); err != nil {
				return r, err
			}
			r.ids = append(r.ids, o.ID)
		}
		r.created = true
		return r, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res.ids, res.created, nil
}

// SetOrderStatus writes a status. Shipped and delivered timestamps are
// stamped by the write itself and only take effect once per order.
func (s *PostgresStore) SetOrderStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus, now time.Time) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders SET
			status = $2,
			shipped_at = CASE WHEN $2 = 'shipped' THEN COALESCE(shipped_at, $3) ELSE shipped_at END,
			delivered_at = CASE WHEN $2 = 'delivered' THEN COALESCE(delivered_at, $3) ELSE delivered_at END
		WHERE id = $1
		RETURNING `+orderColumns,
		orderID, string(status), now)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("set order status: %w", err)
	}

	order.Items, err = getOrderItems(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// SetTrackingNumber attaches a tracking number independent of status.
func (s *PostgresStore) SetTrackingNumber(ctx context.Context, orderID uuid.UUID, trackingNumber string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE orders SET tracking_number = $2 WHERE id = $1 RETURNING `+orderColumns,
		orderID, trackingNumber)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("set tracking number: %w", err)
	}

	order.Items, err = getOrderItems(ctx, s.pool, orderID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListStalePendingOrders returns pending orders older than cutoff, oldest
// first.
func (s *PostgresStore) ListStalePendingOrders(ctx context.Context, cutoff time.Time, limit int32) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = 'pending' AND order_date < $1
		 ORDER BY order_date ASC
		 LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// CreateAuditEntry records one action against an order.
func (s *PostgresStore) CreateAuditEntry(ctx context.Context, entry domain.OrderAuditEntry) (*domain.OrderAuditEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO order_audit (id, order_id, action, detail, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.OrderID, entry.Action, entry.Detail, entry.Actor, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	return &entry, nil
}
