package billing

import (
	"context"
)

// Payment statuses reported by a hosted session.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// Provider defines the interface to the external payment processor.
// Implementations can use Stripe, PayPal, Square, etc. The pipeline treats
// the hosted session as the single source of truth for "did the customer pay".
type Provider interface {
	// CreateCheckoutSession opens a hosted payment session and returns its
	// id and redirect URL. A session without a URL is treated as failed.
	CreateCheckoutSession(ctx context.Context, params CreateSessionParams) (*Session, error)

	// GetCheckoutSession retrieves a session by id, including payment
	// status, metadata, and customer/shipping details.
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)

	// ListSessionLineItems returns the purchased line items for a session.
	// Used on first-time finalization to reconstruct orders without
	// trusting client-supplied state.
	ListSessionLineItems(ctx context.Context, sessionID string) ([]SessionLineItem, error)

	// ExpireSession invalidates an open session. Best-effort cleanup;
	// callers log failures rather than escalating them.
	ExpireSession(ctx context.Context, sessionID string) error

	// VerifyWebhookSignature verifies that a webhook request is authentic
	// before the payload is treated as trusted input.
	VerifyWebhookSignature(payload []byte, signature string, secret string) error
}

// CreateSessionParams contains parameters for opening a hosted session.
type CreateSessionParams struct {
	// Currency code (ISO 4217 lowercase), e.g. "usd".
	Currency string

	// LineItems describe what the customer is paying for. UnitAmount is in
	// the smallest currency unit.
	LineItems []SessionLineItemParams

	// CustomerEmail prefills the payment page for guests.
	CustomerEmail string

	// SuccessURL and CancelURL are where the processor redirects after the
	// hosted flow. SuccessURL should carry the session id placeholder so
	// the client can call the completion endpoint.
	SuccessURL string
	CancelURL  string

	// Metadata must carry enough to reconstruct the order set if the
	// session is read back without local state (owner, address snapshot,
	// item and seller counts).
	Metadata map[string]string
}

// SessionLineItemParams is one purchasable line passed to the processor.
type SessionLineItemParams struct {
	Name       string
	ImageURL   string
	Quantity   int64
	UnitAmount int64

	// Metadata rides on the processor's product record so line items can
	// be mapped back to local products and sellers at finalization.
	Metadata map[string]string
}

// Session is the processor's view of a hosted payment session.
type Session struct {
	ID  string
	URL string

	// PaymentStatus is one of the PaymentStatus* constants.
	PaymentStatus string

	// PaymentIntentID is set once a payment attempt exists.
	PaymentIntentID string

	Metadata map[string]string

	CustomerEmail string
	CustomerName  string
	CustomerPhone string

	// ShippingAddress is the processor's recorded shipping address, when
	// collected. The pipeline prefers its own metadata snapshot.
	ShippingAddress *SessionAddress
}

// SessionAddress is a processor-recorded address.
type SessionAddress struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// SessionLineItem is one purchased line read back from the processor.
type SessionLineItem struct {
	Name     string
	ImageURL string

	Quantity   int64
	UnitAmount int64
	Currency   string

	// Metadata is the product metadata attached at session creation.
	Metadata map[string]string
}
