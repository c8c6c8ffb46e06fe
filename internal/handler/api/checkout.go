package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/handler"
	"github.com/kestrelcommerce/kestrel/internal/middleware"
)

// CheckoutHandler exposes checkout session creation and the client-side
// return trigger for finalization.
type CheckoutHandler struct {
	checkout   domain.CheckoutService
	completion domain.CompletionService
	logger     *slog.Logger
}

// NewCheckoutHandler creates the checkout API handler.
func NewCheckoutHandler(checkout domain.CheckoutService, completion domain.CompletionService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:   checkout,
		completion: completion,
		logger:     logger.With("handler", "checkout"),
	}
}

// CreateSession handles POST /api/checkout.
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("checkout.create", "invalid request body"))
		return
	}

	// Identity comes from the gateway, never from the payload.
	req.CustomerID = middleware.CustomerIDFromContext(r.Context())

	result, err := h.checkout.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		if domain.IsValidationError(err) {
			handler.ValidationErrorResponse(w, r, err)
			return
		}
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSONResponse(w, http.StatusCreated, result)
}

type completeRequest struct {
	SessionID string `json:"session_id"`
}

type completeResponse struct {
	OrderIDs []uuid.UUID `json:"order_ids"`
}

// Complete handles POST /api/checkout/complete, the return-page trigger.
// Idempotent with the webhook path; whichever arrives first wins.
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("checkout.finalize", "invalid request body"))
		return
	}

	customerID := middleware.CustomerIDFromContext(r.Context())

	ids, err := h.completion.FinalizeCheckout(r.Context(), req.SessionID, customerID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSONResponse(w, http.StatusOK, completeResponse{OrderIDs: ids})
}
