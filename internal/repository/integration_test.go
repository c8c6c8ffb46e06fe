//go:build integration
// +build integration

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/kestrelcommerce/kestrel/internal"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newIntegrationStore connects to the database named in .env.test, applies
// migrations, and returns a store backed by a real pool. Tests use fresh ids
// throughout so leftover rows from earlier runs cannot interfere.
func newIntegrationStore(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()

	if err := godotenv.Load("../../.env.test"); err != nil {
		t.Skipf("Skipping integration test: .env.test not found (%v)", err)
	}

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL or DATABASE_URL not set in .env.test")
	}

	sqlDB, err := sql.Open("pgx", url)
	require.NoError(t, err)
	require.NoError(t, internal.RunMigrations(sqlDB))
	require.NoError(t, sqlDB.Close())

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewPostgresStore(pool), pool
}

func insertIntegrationProduct(t *testing.T, pool *pgxpool.Pool, quantity int32) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO products (id, seller_id, name, price, stock_quantity)
		VALUES ($1, $2, $3, $4, $5)`,
		id, uuid.New(), "Integration Widget "+id.String()[:8], int64(2500), quantity)
	require.NoError(t, err)
	return id
}

func integrationAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:     "Grace Hopper",
		Phone:        "+1-555-0100",
		AddressLine1: "1 Harbor Way",
		City:         "Arlington",
		State:        "VA",
		PostalCode:   "22201",
		Country:      "US",
	}
}

func integrationCandidates(productID uuid.UUID) []domain.Order {
	return []domain.Order{{
		SellerID:    uuid.New(),
		SellerName:  "Integration Seller",
		TotalAmount: 5000,
		Items: []domain.OrderItem{{
			ProductID:   productID,
			ProductName: "Integration Widget",
			Quantity:    2,
			UnitPrice:   2500,
			Subtotal:    5000,
		}},
	}}
}

func TestIntegrationFinalizeOrders_ConcurrentCallsCreateOnce(t *testing.T) {
	store, pool := newIntegrationStore(t)
	ctx := context.Background()

	productID := insertIntegrationProduct(t, pool, 10)
	sessionID := fmt.Sprintf("cs_int_race_%d", time.Now().UnixNano())
	params := FinalizeOrdersParams{
		SessionID:       sessionID,
		PaymentIntentID: "pi_int_race",
		PaymentMethod:   "card",
		ShippingAddress: integrationAddress(),
		Orders:          integrationCandidates(productID),
	}

	type outcome struct {
		ids     []uuid.UUID
		created bool
		err     error
	}
	outcomes := make([]outcome, 2)

	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids, created, err := store.FinalizeOrders(ctx, params)
			outcomes[i] = outcome{ids: ids, created: created, err: err}
		}(i)
	}
	wg.Wait()

	creates := 0
	for _, o := range outcomes {
		require.NoError(t, o.err)
		require.Len(t, o.ids, 1)
		if o.created {
			creates++
		}
	}
	assert.Equal(t, 1, creates, "exactly one caller may create the order set")
	assert.Equal(t, outcomes[0].ids, outcomes[1].ids, "both callers see the same order ids")

	var count int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE stripe_session_id = $1`, sessionID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIntegrationFinalizeOrders_PromotesStagedOrders(t *testing.T) {
	store, pool := newIntegrationStore(t)
	ctx := context.Background()

	productID := insertIntegrationProduct(t, pool, 10)
	sessionID := fmt.Sprintf("cs_int_staged_%d", time.Now().UnixNano())

	staged, err := store.StageOrders(ctx, StageOrdersParams{
		SessionID: sessionID,
		Orders:    integrationCandidates(productID),
	})
	require.NoError(t, err)
	require.Len(t, staged, 1)
	require.Equal(t, domain.OrderStatusPendingPayment, staged[0].Status)

	// Orders already exist for the session, so no candidates are passed.
	ids, created, err := store.FinalizeOrders(ctx, FinalizeOrdersParams{
		SessionID:       sessionID,
		PaymentIntentID: "pi_int_staged",
		PaymentMethod:   "card",
		ShippingAddress: integrationAddress(),
	})
	require.NoError(t, err)
	assert.False(t, created)
	require.Len(t, ids, 1)
	assert.Equal(t, staged[0].ID, ids[0])

	order, err := store.GetOrder(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, order.Status)
	assert.Equal(t, "pi_int_staged", order.PaymentIntentID)
	assert.Equal(t, "1 Harbor Way", order.ShippingAddress.AddressLine1)
}

func TestIntegrationFinalizeOrders_ReplayLeavesAdvancedStatus(t *testing.T) {
	store, pool := newIntegrationStore(t)
	ctx := context.Background()

	productID := insertIntegrationProduct(t, pool, 10)
	sessionID := fmt.Sprintf("cs_int_replay_%d", time.Now().UnixNano())
	params := FinalizeOrdersParams{
		SessionID:       sessionID,
		PaymentIntentID: "pi_int_replay",
		PaymentMethod:   "card",
		ShippingAddress: integrationAddress(),
		Orders:          integrationCandidates(productID),
	}

	ids, created, err := store.FinalizeOrders(ctx, params)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, ids, 1)

	// The seller ships before a late webhook delivery replays finalization.
	_, err = store.SetOrderStatus(ctx, ids[0], domain.OrderStatusShipped, time.Now().UTC())
	require.NoError(t, err)

	replayIDs, replayCreated, err := store.FinalizeOrders(ctx, params)
	require.NoError(t, err)
	assert.False(t, replayCreated)
	assert.Equal(t, ids, replayIDs)

	order, err := store.GetOrder(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, order.Status, "replay must not regress a shipped order")
	assert.NotNil(t, order.ShippedAt)
}

func TestIntegrationCreateStockOperation_InsufficientStockUnchanged(t *testing.T) {
	store, pool := newIntegrationStore(t)
	ctx := context.Background()

	productID := insertIntegrationProduct(t, pool, 2)

	_, err := store.CreateStockOperation(ctx, domain.CreateStockOperationParams{
		ProductID:   productID,
		Direction:   domain.StockOut,
		Quantity:    5,
		Reason:      "oversold attempt",
		PerformedBy: "integration@example.com",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	var quantity int32
	err = pool.QueryRow(ctx,
		`SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&quantity)
	require.NoError(t, err)
	assert.Equal(t, int32(2), quantity, "a rejected stock-out must not touch the quantity")

	var ledger int
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM stock_operations WHERE product_id = $1`, productID).Scan(&ledger)
	require.NoError(t, err)
	assert.Zero(t, ledger, "a rejected stock-out leaves no ledger row")
}

func TestIntegrationCreateStockOperation_MovesQuantityAndLedger(t *testing.T) {
	store, pool := newIntegrationStore(t)
	ctx := context.Background()

	productID := insertIntegrationProduct(t, pool, 10)

	result, err := store.CreateStockOperation(ctx, domain.CreateStockOperationParams{
		ProductID:   productID,
		Direction:   domain.StockOut,
		Quantity:    3,
		Reason:      "manual dispatch",
		PerformedBy: "integration@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(10), result.Operation.PreviousQuantity)
	assert.Equal(t, int32(7), result.Operation.NewQuantity)

	var quantity int32
	err = pool.QueryRow(ctx,
		`SELECT stock_quantity FROM products WHERE id = $1`, productID).Scan(&quantity)
	require.NoError(t, err)
	assert.Equal(t, int32(7), quantity)

	ops, err := store.ListStockOperations(ctx, productID, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.StockOut, ops[0].Direction)
	assert.Equal(t, int32(3), ops[0].Quantity)
}
