package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/repository"
	"github.com/kestrelcommerce/kestrel/internal/telemetry"
)

const defaultSweepBatch = 100

// CleanupJob periodically cancels pending orders that were never paid within
// the configured timeout. Each sweep is bounded; leftovers are picked up on
// the next tick.
type CleanupJob struct {
	store    repository.Store
	timeout  time.Duration
	interval time.Duration
	batch    int32
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	running atomic.Bool
}

// NewCleanupJob creates the stale order sweeper. timeout is how long a
// pending order may sit unpaid; interval is how often the sweep runs.
func NewCleanupJob(store repository.Store, timeout, interval time.Duration, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:    store,
		timeout:  timeout,
		interval: interval,
		batch:    defaultSweepBatch,
		logger:   logger.With("job", "order_cleanup"),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled. Blocking; callers run it in a goroutine.
func (j *CleanupJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("cleanup job started", "timeout", j.timeout, "interval", j.interval)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup job stopped")
			return
		case <-ticker.C:
			if n, err := j.Sweep(ctx); err != nil {
				j.logger.ErrorContext(ctx, "sweep failed", "error", err)
			} else if n > 0 {
				j.logger.InfoContext(ctx, "stale orders cancelled", "count", n)
			}
		}
	}
}

// Sweep cancels one batch of stale pending orders and returns how many it
// cancelled. Overlapping sweeps are skipped rather than queued.
func (j *CleanupJob) Sweep(ctx context.Context) (int, error) {
	if !j.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer j.running.Store(false)

	now := j.now().UTC()
	cutoff := now.Add(-j.timeout)

	stale, err := j.store.ListStalePendingOrders(ctx, cutoff, j.batch)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, order := range stale {
		// Re-check: the listing is not locked, a concurrent staff action may
		// have moved the order on already.
		if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
			continue
		}

		if _, err := j.store.SetOrderStatus(ctx, order.ID, domain.OrderStatusCancelled, now); err != nil {
			j.logger.ErrorContext(ctx, "failed to cancel stale order",
				"order_id", order.ID, "error", err)
			continue
		}

		if _, err := j.store.CreateAuditEntry(ctx, domain.OrderAuditEntry{
			OrderID: order.ID,
			Action:  domain.AuditActionCancelledTimeout,
			Detail:  "payment not received within " + j.timeout.String(),
			Actor:   "system",
		}); err != nil {
			j.logger.ErrorContext(ctx, "audit write failed",
				"order_id", order.ID, "error", err)
		}

		cancelled++
		if telemetry.Business != nil {
			telemetry.Business.OrdersExpired.Inc()
		}
	}

	return cancelled, nil
}
