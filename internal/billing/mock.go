package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MockProvider is a mock billing provider for testing.
// Simulates hosted session flows without calling the Stripe API.
type MockProvider struct {
	// CreateCheckoutSessionFunc allows customizing session creation behavior
	CreateCheckoutSessionFunc func(ctx context.Context, params CreateSessionParams) (*Session, error)

	// GetCheckoutSessionFunc allows customizing session retrieval behavior
	GetCheckoutSessionFunc func(ctx context.Context, sessionID string) (*Session, error)

	// ListSessionLineItemsFunc allows customizing line item retrieval behavior
	ListSessionLineItemsFunc func(ctx context.Context, sessionID string) ([]SessionLineItem, error)

	// ExpireSessionFunc allows customizing session expiry behavior
	ExpireSessionFunc func(ctx context.Context, sessionID string) error

	// VerifyWebhookSignatureFunc allows customizing webhook verification behavior
	VerifyWebhookSignatureFunc func(payload []byte, signature string, secret string) error

	// Sessions stores created sessions for retrieval
	Sessions map[string]*Session

	// LineItems stores line items per session id
	LineItems map[string][]SessionLineItem

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Sessions:  make(map[string]*Session),
		LineItems: make(map[string][]SessionLineItem),
		CallLog:   []string{},
	}
}

// CreateCheckoutSession creates a mock session with a fake redirect URL.
func (m *MockProvider) CreateCheckoutSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCheckoutSession(%d items)", len(params.LineItems)))

	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}

	// Default mock behavior: create an unpaid session and remember its lines
	sess := &Session{
		ID:            "cs_test_" + uuid.New().String(),
		URL:           "https://checkout.example.com/pay/" + uuid.New().String(),
		PaymentStatus: PaymentStatusUnpaid,
		Metadata:      params.Metadata,
		CustomerEmail: params.CustomerEmail,
	}

	var items []SessionLineItem
	for _, li := range params.LineItems {
		items = append(items, SessionLineItem{
			Name:       li.Name,
			ImageURL:   li.ImageURL,
			Quantity:   li.Quantity,
			UnitAmount: li.UnitAmount,
			Currency:   params.Currency,
			Metadata:   li.Metadata,
		})
	}

	m.Sessions[sess.ID] = sess
	m.LineItems[sess.ID] = items
	return sess, nil
}

// GetCheckoutSession retrieves a stored mock session.
func (m *MockProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetCheckoutSession(%s)", sessionID))

	if m.GetCheckoutSessionFunc != nil {
		return m.GetCheckoutSessionFunc(ctx, sessionID)
	}

	sess, exists := m.Sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ListSessionLineItems returns the stored line items for a session.
func (m *MockProvider) ListSessionLineItems(ctx context.Context, sessionID string) ([]SessionLineItem, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("ListSessionLineItems(%s)", sessionID))

	if m.ListSessionLineItemsFunc != nil {
		return m.ListSessionLineItemsFunc(ctx, sessionID)
	}

	if _, exists := m.Sessions[sessionID]; !exists {
		return nil, ErrSessionNotFound
	}
	return m.LineItems[sessionID], nil
}

// ExpireSession marks a stored session expired.
func (m *MockProvider) ExpireSession(ctx context.Context, sessionID string) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("ExpireSession(%s)", sessionID))

	if m.ExpireSessionFunc != nil {
		return m.ExpireSessionFunc(ctx, sessionID)
	}

	sess, exists := m.Sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}
	sess.PaymentStatus = PaymentStatusUnpaid
	sess.URL = ""
	return nil
}

// VerifyWebhookSignature verifies a mock webhook signature.
// Default behavior: accept "valid_signature", reject everything else.
func (m *MockProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	m.CallLog = append(m.CallLog, "VerifyWebhookSignature")

	if m.VerifyWebhookSignatureFunc != nil {
		return m.VerifyWebhookSignatureFunc(payload, signature, secret)
	}

	if signature != "valid_signature" {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// MarkPaid flips a stored session to paid with a payment intent attached.
// Test helper for driving finalization flows.
func (m *MockProvider) MarkPaid(sessionID string) {
	if sess, exists := m.Sessions[sessionID]; exists {
		sess.PaymentStatus = PaymentStatusPaid
		sess.PaymentIntentID = "pi_" + uuid.New().String()
	}
}
