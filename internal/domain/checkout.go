package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Checkout-related domain errors.
var (
	ErrSessionNotFound   = &Error{Code: ENOTFOUND, Message: "Payment session not found"}
	ErrNoPurchasableItem = &Error{Code: EINVALID, Message: "No purchasable items in cart"}
)

// CartItem is one line of an inbound cart payload.
type CartItem struct {
	ProductID  uuid.UUID `json:"product_id" validate:"required"`
	SellerID   uuid.UUID `json:"seller_id" validate:"required"`
	SellerName string    `json:"seller_name"`

	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image"`

	Quantity  int32 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"` // minor currency units

	IsReservation   bool   `json:"is_reservation"`
	ReservationDate string `json:"reservation_date"`
	ReservationTime string `json:"reservation_time"`
	ReservationNote string `json:"reservation_note"`
}

// ShippingAddress is the address snapshot copied into orders and session
// metadata at checkout time.
type ShippingAddress struct {
	FullName     string `json:"full_name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	AddressLine1 string `json:"address_line1" validate:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code" validate:"required"`
	Country      string `json:"country" validate:"required"`
}

// SavedAddress is a customer's stored address record.
type SavedAddress struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	Address    ShippingAddress
	IsDefault  bool
	CreatedAt  time.Time
}

// CheckoutRequest is the orchestrator's input: a cart plus either a saved
// address reference or a fresh address, plus the caller's identity. Guest
// checkouts leave CustomerID nil and fill the guest contact fields instead.
type CheckoutRequest struct {
	CustomerID *uuid.UUID

	Items []CartItem `json:"items"`

	SavedAddressID *uuid.UUID       `json:"saved_address_id"`
	Address        *ShippingAddress `json:"address"`
	SaveAddress    bool             `json:"save_address"`

	PaymentMethod string `json:"payment_method"`

	GuestEmail    string `json:"guest_email"`
	GuestFullName string `json:"guest_full_name"`
	GuestPhone    string `json:"guest_phone"`
}

// CheckoutSessionResult is what the orchestrator returns to the client.
type CheckoutSessionResult struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"url"`
}

// ReservationSlot identifies one (product, date, time) reservation request.
type ReservationSlot struct {
	ProductID       uuid.UUID
	ReservationDate string
	ReservationTime string
}

// ReservationConflictError builds a conflict error naming every booked slot,
// so the caller can resubmit a corrected cart.
func ReservationConflictError(op string, slots []ReservationSlot) error {
	var sb strings.Builder
	sb.WriteString("reservation slot already booked:")
	for i, s := range slots {
		if i > 0 {
			sb.WriteString(";")
		}
		fmt.Fprintf(&sb, " product %s on %s at %s", s.ProductID, s.ReservationDate, s.ReservationTime)
	}
	return Conflict(op, sb.String())
}

// CheckoutService stages speculative orders and opens a hosted payment
// session, rolling both back on any failure after session creation.
type CheckoutService interface {
	// CreateCheckoutSession validates the cart, resolves the shipping
	// address, stages one pending_payment order per seller and returns the
	// hosted session redirect URL.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSessionResult, error)
}

// CompletionService converts a paid payment session into committed orders
// exactly once, regardless of which trigger (client call or webhook) arrives
// first or how many times it is invoked.
type CompletionService interface {
	// FinalizeCheckout ensures the session's orders exist and returns their
	// ids. expectedCustomerID, when non-nil, must match the session owner.
	FinalizeCheckout(ctx context.Context, sessionID string, expectedCustomerID *uuid.UUID) ([]uuid.UUID, error)

	// PurgeExpiredSession removes staged orders for a session that expired
	// or failed before any payment succeeded.
	PurgeExpiredSession(ctx context.Context, sessionID string) error
}
