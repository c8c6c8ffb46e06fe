package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
	session "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider using Stripe Checkout Sessions.
type StripeProvider struct {
	config StripeConfig
	logger *slog.Logger
}

// NewStripeProvider creates a new Stripe billing provider and configures the
// SDK's global client with a bounded HTTP timeout.
func NewStripeProvider(config StripeConfig, logger *slog.Logger) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 30
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}

	stripe.Key = config.APIKey
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		MaxNetworkRetries: stripe.Int64(int64(config.MaxRetries)),
	})
	stripe.SetBackend(stripe.APIBackend, backend)

	return &StripeProvider{
		config: config,
		logger: logger.With("provider", "stripe"),
	}, nil
}

// CreateCheckoutSession opens a hosted Checkout Session in payment mode.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, p CreateSessionParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx

	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}

	for _, li := range p.LineItems {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(li.Name),
			Metadata: li.Metadata,
		}
		if li.ImageURL != "" {
			productData.Images = []*string{stripe.String(li.ImageURL)}
		}

		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(li.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(p.Currency),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: productData,
			},
		})
	}

	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	if sess.URL == "" {
		return nil, ErrNoRedirectURL
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"session_id", sess.ID,
		"line_items", len(p.LineItems))

	return toSession(sess), nil
}

// GetCheckoutSession retrieves a session with its payment intent expanded.
func (s *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	return toSession(sess), nil
}

// ListSessionLineItems returns the session's purchased lines with their
// product metadata expanded.
func (s *StripeProvider) ListSessionLineItems(ctx context.Context, sessionID string) ([]SessionLineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	params.AddExpand("data.price.product")

	var items []SessionLineItem
	iter := session.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()

		item := SessionLineItem{
			Name:     li.Description,
			Quantity: li.Quantity,
			Currency: string(li.Currency),
		}
		if li.Price != nil {
			item.UnitAmount = li.Price.UnitAmount
			if li.Price.Product != nil {
				item.Metadata = li.Price.Product.Metadata
				if li.Price.Product.Name != "" {
					item.Name = li.Price.Product.Name
				}
				if len(li.Price.Product.Images) > 0 {
					item.ImageURL = li.Price.Product.Images[0]
				}
			}
		}

		items = append(items, item)
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeError(err)
	}

	return items, nil
}

// ExpireSession invalidates an open session.
func (s *StripeProvider) ExpireSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := session.Expire(sessionID, params); err != nil {
		return wrapStripeError(err)
	}

	s.logger.InfoContext(ctx, "checkout session expired", "session_id", sessionID)
	return nil
}

// VerifyWebhookSignature verifies a Stripe webhook signature.
func (s *StripeProvider) VerifyWebhookSignature(payload []byte, signature string, secret string) error {
	if _, err := webhook.ConstructEvent(payload, signature, secret); err != nil {
		return errors.Join(ErrInvalidWebhookSignature, err)
	}
	return nil
}

// toSession maps the SDK session onto the provider-neutral type.
func toSession(sess *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      sess.Metadata,
	}

	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}

	if cd := sess.CustomerDetails; cd != nil {
		out.CustomerEmail = cd.Email
		out.CustomerName = cd.Name
		out.CustomerPhone = cd.Phone
		if cd.Address != nil {
			out.ShippingAddress = &SessionAddress{
				Line1:      cd.Address.Line1,
				Line2:      cd.Address.Line2,
				City:       cd.Address.City,
				State:      cd.Address.State,
				PostalCode: cd.Address.PostalCode,
				Country:    cd.Address.Country,
			}
		}
	}

	return out
}

// wrapStripeError converts SDK errors into StripeError, tagging missing
// sessions with ErrSessionNotFound.
func wrapStripeError(err error) error {
	if err == nil {
		return nil
	}

	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		wrapped := &StripeError{
			Message:       sErr.Msg,
			Code:          string(sErr.Code),
			DeclineCode:   string(sErr.DeclineCode),
			RequestID:     sErr.RequestID,
			OriginalError: err,
		}
		if sErr.Code == stripe.ErrorCodeResourceMissing {
			return errors.Join(ErrSessionNotFound, wrapped)
		}
		return wrapped
	}

	return err
}
