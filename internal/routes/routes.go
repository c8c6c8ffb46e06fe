package routes

import (
	"net/http"

	"github.com/kestrelcommerce/kestrel/internal/handler/api"
	"github.com/kestrelcommerce/kestrel/internal/handler/webhook"
	"github.com/kestrelcommerce/kestrel/internal/middleware"
	"github.com/kestrelcommerce/kestrel/internal/router"
)

// Deps carries the handlers the route table wires up.
type Deps struct {
	Checkout *api.CheckoutHandler
	Orders   *api.OrderHandler
	Stock    *api.StockHandler

	StripeWebhook *webhook.StripeHandler

	// Metrics serves the Prometheus scrape endpoint.
	Metrics http.Handler
}

// Register wires the full route table onto the router.
func Register(r *router.Router, deps Deps) {
	// Checkout pipeline
	r.Post("/api/checkout", deps.Checkout.CreateSession)
	r.Post("/api/checkout/complete", deps.Checkout.Complete)

	// Staff order surface
	r.Get("/api/orders/{id}", deps.Orders.Get)
	r.Patch("/api/orders/{id}/status", deps.Orders.UpdateStatus)
	r.Patch("/api/orders/{id}/tracking", deps.Orders.SetTracking)
	r.Post("/api/orders/{id}/refunds", deps.Orders.RecordRefund)
	r.Get("/api/orders/{id}/refunds", deps.Orders.ListRefunds)

	// Stock management
	r.Post("/api/stock-operations", deps.Stock.Create)
	r.Get("/api/products/{id}/stock-operations", deps.Stock.History)

	// Webhooks: signature-verified, bounded body, no identity middleware.
	r.Post("/webhooks/stripe", deps.StripeWebhook.HandleWebhook,
		middleware.MaxBodySize(middleware.SmallMaxBodySize))

	// Operational endpoints
	r.Get("/health", healthCheck)
	if deps.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", deps.Metrics)
	}
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
