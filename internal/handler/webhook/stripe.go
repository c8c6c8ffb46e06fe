package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kestrelcommerce/kestrel/internal/billing"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/handler"
	"github.com/kestrelcommerce/kestrel/internal/telemetry"
	"github.com/stripe/stripe-go/v82"
)

// Session events this pipeline reacts to. Everything else is acknowledged
// and ignored so Stripe never retries events we do not handle.
const (
	eventSessionCompleted      = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	eventSessionExpired        = "checkout.session.expired"
	eventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
)

// maxPayloadBytes bounds webhook bodies, matching Stripe's own limit.
const maxPayloadBytes = 64 * 1024

// StripeHandler processes Stripe webhook events for the checkout pipeline.
type StripeHandler struct {
	provider   billing.Provider
	completion domain.CompletionService
	secret     string
	logger     *slog.Logger
}

// NewStripeHandler creates the webhook handler. secret is the endpoint's
// signing secret from the Stripe dashboard.
func NewStripeHandler(provider billing.Provider, completion domain.CompletionService, secret string, logger *slog.Logger) *StripeHandler {
	return &StripeHandler{
		provider:   provider,
		completion: completion,
		secret:     secret,
		logger:     logger.With("handler", "stripe_webhook"),
	}
}

// HandleWebhook verifies and dispatches one webhook delivery. Handled events
// that fail processing return 5xx so Stripe retries; unrecognized events are
// always acknowledged with 200.
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.read", "error reading request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.verify", "missing signature"))
		return
	}

	if err := h.provider.VerifyWebhookSignature(payload, signature, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "signature verification failed", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.verify", "invalid signature"))
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.parse", "invalid JSON"))
		return
	}

	eventType := string(event.Type)
	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(eventType).Inc()
		defer func() {
			telemetry.Business.WebhookLatency.Observe(time.Since(start).Seconds())
		}()
	}

	h.logger.InfoContext(r.Context(), "webhook event received", "type", eventType, "event_id", event.ID)

	switch eventType {
	case eventSessionCompleted, eventAsyncPaymentSucceeded:
		h.dispatch(w, r, eventType, h.handlePaymentSucceeded(r, event))

	case eventSessionExpired, eventAsyncPaymentFailed:
		h.dispatch(w, r, eventType, h.handleSessionAbandoned(r, event))

	default:
		h.countProcessed(eventType, "ignored")
		acknowledge(w)
	}
}

// dispatch acknowledges or fails the delivery based on the handler outcome.
func (h *StripeHandler) dispatch(w http.ResponseWriter, r *http.Request, eventType string, err error) {
	if err != nil {
		h.countProcessed(eventType, "error")
		handler.ErrorResponse(w, r, err)
		return
	}
	h.countProcessed(eventType, "ok")
	acknowledge(w)
}

// handlePaymentSucceeded finalizes the session's orders. No expected
// customer: the signature already authenticated the caller.
func (h *StripeHandler) handlePaymentSucceeded(r *http.Request, event stripe.Event) error {
	sessionID, err := sessionIDFromEvent(event)
	if err != nil {
		return err
	}

	ids, err := h.completion.FinalizeCheckout(r.Context(), sessionID, nil)
	if err != nil {
		// Client-attributable failures (unpaid, unattributable items) will
		// not heal on retry; acknowledge them so Stripe stops redelivering.
		if status := domain.FinalizationStatus(err); status != 0 && status < 500 {
			h.logger.WarnContext(r.Context(), "finalization rejected",
				"session_id", sessionID, "error", err)
			return nil
		}
		return err
	}

	h.logger.InfoContext(r.Context(), "session finalized via webhook",
		"session_id", sessionID, "orders", len(ids))
	return nil
}

// handleSessionAbandoned purges staged orders for an expired or failed
// session.
func (h *StripeHandler) handleSessionAbandoned(r *http.Request, event stripe.Event) error {
	sessionID, err := sessionIDFromEvent(event)
	if err != nil {
		return err
	}
	return h.completion.PurgeExpiredSession(r.Context(), sessionID)
}

// sessionIDFromEvent extracts the checkout session id from the event payload.
func sessionIDFromEvent(event stripe.Event) (string, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return "", domain.Errorf(domain.EINVALID, "webhook.parse", "malformed session payload")
	}
	if session.ID == "" {
		return "", domain.Errorf(domain.EINVALID, "webhook.parse", "event has no session id")
	}
	return session.ID, nil
}

func (h *StripeHandler) countProcessed(eventType, status string) {
	if telemetry.Business != nil {
		telemetry.Business.WebhookProcessed.WithLabelValues(eventType, status).Inc()
	}
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"received": true}`))
}
