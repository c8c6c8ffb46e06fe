package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/kestrelcommerce/kestrel/internal"
	"github.com/kestrelcommerce/kestrel/internal/billing"
	"github.com/kestrelcommerce/kestrel/internal/handler/api"
	"github.com/kestrelcommerce/kestrel/internal/handler/webhook"
	"github.com/kestrelcommerce/kestrel/internal/jobs"
	"github.com/kestrelcommerce/kestrel/internal/middleware"
	"github.com/kestrelcommerce/kestrel/internal/repository"
	"github.com/kestrelcommerce/kestrel/internal/router"
	"github.com/kestrelcommerce/kestrel/internal/routes"
	"github.com/kestrelcommerce/kestrel/internal/service"
	"github.com/kestrelcommerce/kestrel/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Business metrics
	telemetry.InitBusinessMetrics("kestrel")

	// Persistence
	store := repository.NewPostgresStore(pool)

	// Initialize Stripe billing provider
	billingProvider, err := billing.NewStripeProvider(billing.StripeConfig{
		APIKey:         cfg.Stripe.SecretKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		MaxRetries:     3,
		TimeoutSeconds: 30,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}

	// Services
	checkoutService := service.NewCheckoutService(store, billingProvider, service.CheckoutConfig{
		Currency:   cfg.Checkout.Currency,
		SuccessURL: cfg.Checkout.SuccessURL,
		CancelURL:  cfg.Checkout.CancelURL,
	}, logger)
	completionService := service.NewCompletionService(store, billingProvider, logger)
	orderService := service.NewOrderService(store, logger)
	stockService := service.NewStockService(store, logger)

	// Background sweeper for stale pending orders
	cleanupJob := jobs.NewCleanupJob(store, cfg.Cleanup.PendingOrderTimeout, cfg.Cleanup.Interval, logger)
	go cleanupJob.Run(ctx)

	// HTTP metrics
	metrics := middleware.NewMetrics("kestrel")

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if cfg.Env == "dev" {
		securityConfig.ContentSecurityPolicy = ""
		securityConfig.HSTSMaxAge = 0
	}

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		middleware.WithClientIP(),
		metrics.Middleware,
		middleware.SecurityHeaders(securityConfig),
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		rateLimiter.Middleware,
		middleware.CustomerIdentity(),
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
	)

	routes.Register(r, routes.Deps{
		Checkout:      api.NewCheckoutHandler(checkoutService, completionService, logger),
		Orders:        api.NewOrderHandler(orderService, logger),
		Stock:         api.NewStockHandler(stockService, logger),
		StripeWebhook: webhook.NewStripeHandler(billingProvider, completionService, cfg.Stripe.WebhookSecret, logger),
		Metrics:       metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
