package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/handler"
	"github.com/kestrelcommerce/kestrel/internal/middleware"
)

// StockHandler exposes the staff-facing stock movement surface.
type StockHandler struct {
	stock  domain.StockService
	logger *slog.Logger
}

// NewStockHandler creates the stock API handler.
func NewStockHandler(stock domain.StockService, logger *slog.Logger) *StockHandler {
	return &StockHandler{
		stock:  stock,
		logger: logger.With("handler", "stock"),
	}
}

type createStockOperationRequest struct {
	ProductID uuid.UUID  `json:"product_id"`
	Direction string     `json:"direction"`
	Quantity  int32      `json:"quantity"`
	Reason    string     `json:"reason"`
	OrderID   *uuid.UUID `json:"order_id"`
}

type stockOperationResponse struct {
	ID        uuid.UUID  `json:"id"`
	ProductID uuid.UUID  `json:"product_id"`
	Direction string     `json:"direction"`
	Quantity  int32      `json:"quantity"`
	Reason    string     `json:"reason,omitempty"`
	OrderID   *uuid.UUID `json:"order_id,omitempty"`

	PreviousQuantity int32 `json:"previous_quantity"`
	NewQuantity      int32 `json:"new_quantity"`

	PerformedBy string    `json:"performed_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type createStockOperationResponse struct {
	Operation stockOperationResponse `json:"operation"`

	OrderStatusChanged bool   `json:"order_status_changed"`
	OrderStatus        string `json:"order_status,omitempty"`
	FullyFulfilled     bool   `json:"fully_fulfilled"`
}

func toStockOperationResponse(op *domain.StockOperation) stockOperationResponse {
	return stockOperationResponse{
		ID:               op.ID,
		ProductID:        op.ProductID,
		Direction:        string(op.Direction),
		Quantity:         op.Quantity,
		Reason:           op.Reason,
		OrderID:          op.OrderID,
		PreviousQuantity: op.PreviousQuantity,
		NewQuantity:      op.NewQuantity,
		PerformedBy:      op.PerformedBy,
		CreatedAt:        op.CreatedAt,
	}
}

// Create handles POST /api/stock-operations.
func (h *StockHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createStockOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("stock.create", "invalid request body"))
		return
	}

	result, err := h.stock.CreateStockOperation(r.Context(), domain.CreateStockOperationParams{
		ProductID:   req.ProductID,
		Direction:   domain.StockDirection(req.Direction),
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		OrderID:     req.OrderID,
		PerformedBy: middleware.StaffActor(r),
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSONResponse(w, http.StatusCreated, createStockOperationResponse{
		Operation:          toStockOperationResponse(&result.Operation),
		OrderStatusChanged: result.OrderStatusChanged,
		OrderStatus:        string(result.OrderStatus),
		FullyFulfilled:     result.FullyFulfilled,
	})
}

// History handles GET /api/products/{id}/stock-operations.
func (h *StockHandler) History(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("stock.history", "invalid product id"))
		return
	}

	var limit int32
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 0 {
			handler.ErrorResponse(w, r, domain.Invalid("stock.history", "invalid limit"))
			return
		}
		limit = int32(n)
	}

	ops, err := h.stock.ListStockOperations(r.Context(), productID, limit)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	out := make([]stockOperationResponse, 0, len(ops))
	for i := range ops {
		out = append(out, toStockOperationResponse(&ops[i]))
	}
	handler.JSONResponse(w, http.StatusOK, out)
}
