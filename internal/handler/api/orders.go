package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/handler"
	"github.com/kestrelcommerce/kestrel/internal/middleware"
)

// OrderHandler exposes the staff-facing order management surface.
type OrderHandler struct {
	orders domain.OrderService
	logger *slog.Logger
}

// NewOrderHandler creates the order API handler.
func NewOrderHandler(orders domain.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger.With("handler", "orders"),
	}
}

type orderItemResponse struct {
	ID           uuid.UUID `json:"id"`
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	ProductImage string    `json:"product_image,omitempty"`
	Quantity     int32     `json:"quantity"`
	UnitPrice    int64     `json:"unit_price"`
	Subtotal     int64     `json:"subtotal"`

	IsReservation   bool   `json:"is_reservation,omitempty"`
	ReservationDate string `json:"reservation_date,omitempty"`
	ReservationTime string `json:"reservation_time,omitempty"`
	ReservationNote string `json:"reservation_note,omitempty"`
}

type orderResponse struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	SellerID   uuid.UUID  `json:"seller_id"`
	SellerName string     `json:"seller_name"`

	Status string `json:"status"`

	Items []orderItemResponse `json:"items"`

	TotalAmount   int64 `json:"total_amount"`
	RefundedTotal int64 `json:"refunded_total"`

	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method,omitempty"`
	TrackingNumber  string                 `json:"tracking_number,omitempty"`

	GuestEmail    string `json:"guest_email,omitempty"`
	GuestFullName string `json:"guest_full_name,omitempty"`
	GuestPhone    string `json:"guest_phone,omitempty"`

	OrderDate   time.Time  `json:"order_date"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		SellerID:        o.SellerID,
		SellerName:      o.SellerName,
		Status:          string(o.Status),
		Items:           make([]orderItemResponse, 0, len(o.Items)),
		TotalAmount:     o.TotalAmount,
		RefundedTotal:   o.RefundedTotal,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		GuestEmail:      o.GuestEmail,
		GuestFullName:   o.GuestFullName,
		GuestPhone:      o.GuestPhone,
		OrderDate:       o.OrderDate,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:              it.ID,
			ProductID:       it.ProductID,
			ProductName:     it.ProductName,
			ProductImage:    it.ProductImage,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice,
			Subtotal:        it.Subtotal,
			IsReservation:   it.IsReservation,
			ReservationDate: it.ReservationDate,
			ReservationTime: it.ReservationTime,
			ReservationNote: it.ReservationNote,
		})
	}
	return resp
}

func orderIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Invalid("order.id", "invalid order id")
	}
	return id, nil
}

// Get handles GET /api/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("order.update_status", "invalid request body"))
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), id, domain.OrderStatus(req.Status), middleware.StaffActor(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type setTrackingRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

// SetTracking handles PATCH /api/orders/{id}/tracking.
func (h *OrderHandler) SetTracking(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req setTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("order.set_tracking", "invalid request body"))
		return
	}

	order, err := h.orders.SetTrackingNumber(r.Context(), id, req.TrackingNumber, middleware.StaffActor(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type recordRefundRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	StripeRefundID  string `json:"stripe_refund_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
}

type refundResponse struct {
	ID       uuid.UUID `json:"id"`
	OrderID  uuid.UUID `json:"order_id"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
	Reason   string    `json:"reason,omitempty"`
	Status   string    `json:"status"`
	IssuedBy string    `json:"issued_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func toRefundResponse(rf *domain.Refund) refundResponse {
	return refundResponse{
		ID:        rf.ID,
		OrderID:   rf.OrderID,
		Amount:    rf.Amount,
		Currency:  rf.Currency,
		Reason:    rf.Reason,
		Status:    string(rf.Status),
		IssuedBy:  rf.IssuedBy,
		CreatedAt: rf.CreatedAt,
	}
}

// RecordRefund handles POST /api/orders/{id}/refunds.
func (h *OrderHandler) RecordRefund(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var req recordRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("order.record_refund", "invalid request body"))
		return
	}

	refund, err := h.orders.RecordRefund(r.Context(), id, domain.RefundParams{
		PaymentIntentID: req.PaymentIntentID,
		StripeRefundID:  req.StripeRefundID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Reason:          req.Reason,
		Status:          domain.RefundStatus(req.Status),
		IssuedBy:        middleware.StaffActor(r),
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSONResponse(w, http.StatusCreated, toRefundResponse(refund))
}

// ListRefunds handles GET /api/orders/{id}/refunds.
func (h *OrderHandler) ListRefunds(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFromPath(r)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	refunds, err := h.orders.ListRefunds(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	out := make([]refundResponse, 0, len(refunds))
	for i := range refunds {
		out = append(out, toRefundResponse(&refunds[i]))
	}
	handler.JSONResponse(w, http.StatusOK, out)
}
