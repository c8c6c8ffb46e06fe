package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/billing"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/repository"
	"github.com/kestrelcommerce/kestrel/internal/telemetry"
)

// completionService implements domain.CompletionService.
type completionService struct {
	store   repository.Store
	billing billing.Provider
	logger  *slog.Logger
}

var _ domain.CompletionService = (*completionService)(nil)

// NewCompletionService creates the finalization service. Both the client
// return trigger and the webhook route through it, so all occurrence-once
// behavior lives here and in the store.
func NewCompletionService(store repository.Store, billingProvider billing.Provider, logger *slog.Logger) domain.CompletionService {
	return &completionService{
		store:   store,
		billing: billingProvider,
		logger:  logger.With("service", "completion"),
	}
}

// FinalizeCheckout converts a paid session into committed orders exactly
// once. Safe to call concurrently and repeatedly; replays return the same
// order ids without touching status or stock.
func (s *completionService) FinalizeCheckout(ctx context.Context, sessionID string, expectedCustomerID *uuid.UUID) ([]uuid.UUID, error) {
	const op = "checkout.finalize"

	if sessionID == "" {
		return nil, domain.FinalizationFailed(400, domain.EINVALID, op, "session id is required")
	}

	sess, err := s.billing.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrSessionNotFound) {
			s.countFinalization("failed")
			return nil, domain.FinalizationFailed(400, domain.ENOTFOUND, op, "payment session not found")
		}
		s.logger.ErrorContext(ctx, "session lookup failed", "session_id", sessionID, "error", err)
		return nil, domain.Internal(err, op, "failed to look up payment session")
	}

	// Ownership first: an attacker replaying another customer's session id
	// must get a 403 before learning anything about payment state.
	if err := checkSessionOwner(sess, expectedCustomerID); err != nil {
		s.countFinalization("failed")
		return nil, err
	}

	if sess.PaymentStatus != billing.PaymentStatusPaid {
		s.countFinalization("failed")
		return nil, &domain.FinalizationError{StatusCode: 400, Err: domain.ErrPaymentNotSucceeded}
	}

	// Fast path: a previous call already committed the orders.
	existing, err := s.store.GetOrdersBySessionID(ctx, sessionID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to look up orders for session")
	}

	var orders []domain.Order
	if len(existing) == 0 {
		// Nothing staged and nothing committed: rebuild the order set from
		// the processor's line items. Fetched before taking any lock.
		lineItems, err := s.billing.ListSessionLineItems(ctx, sessionID)
		if err != nil {
			s.logger.ErrorContext(ctx, "line item fetch failed", "session_id", sessionID, "error", err)
			return nil, domain.Internal(err, op, "failed to fetch session line items")
		}
		orders, err = s.rebuildOrders(sess, lineItems)
		if err != nil {
			s.countFinalization("failed")
			return nil, err
		}
	}

	address, err := s.addressForSession(ctx, sess)
	if err != nil {
		s.countFinalization("failed")
		return nil, err
	}

	ids, created, err := s.store.FinalizeOrders(ctx, repository.FinalizeOrdersParams{
		SessionID:       sessionID,
		PaymentIntentID: sess.PaymentIntentID,
		PaymentMethod:   sess.Metadata[metaPaymentMethod],
		ShippingAddress: address,
		Orders:          orders,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoPurchasableItem) {
			s.countFinalization("failed")
			return nil, domain.FinalizationFailed(400, domain.EINVALID, op, "session contains no purchasable items")
		}
		s.countFinalization("failed")
		s.logger.ErrorContext(ctx, "finalization failed", "session_id", sessionID, "error", err)
		return nil, domain.Internal(err, op, "failed to finalize orders")
	}

	if created {
		s.countFinalization("created")
		s.logger.InfoContext(ctx, "orders finalized", "session_id", sessionID, "orders", len(ids))
	} else {
		s.countFinalization("replayed")
		s.logger.InfoContext(ctx, "finalization replayed", "session_id", sessionID, "orders", len(ids))
	}

	return ids, nil
}

// PurgeExpiredSession removes staged pending_payment orders for a session
// that expired or failed before payment. Committed orders are untouched.
func (s *completionService) PurgeExpiredSession(ctx context.Context, sessionID string) error {
	const op = "checkout.purge"

	if sessionID == "" {
		return domain.Invalid(op, "session id is required")
	}

	n, err := s.store.PurgeStagedOrders(ctx, sessionID)
	if err != nil {
		return domain.Internal(err, op, "failed to purge staged orders")
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "staged orders purged", "session_id", sessionID, "count", n)
	}
	return nil
}

// checkSessionOwner enforces the session ownership rules from the session
// metadata written at creation time.
func checkSessionOwner(sess *billing.Session, expectedCustomerID *uuid.UUID) error {
	const op = "checkout.finalize"

	ownerRaw, hasOwner := sess.Metadata[metaCustomerID]
	isGuest := sess.Metadata[metaGuest] == "true"

	if !hasOwner && !isGuest {
		return &domain.FinalizationError{StatusCode: 400, Err: domain.ErrMissingSessionOwner}
	}

	if expectedCustomerID == nil {
		// Webhook-triggered finalization: the signature already authenticated
		// the caller, no per-customer check applies.
		return nil
	}

	if isGuest {
		return domain.FinalizationFailed(403, domain.EFORBIDDEN, op, "session does not belong to this customer")
	}
	owner, err := uuid.Parse(ownerRaw)
	if err != nil || owner != *expectedCustomerID {
		return domain.FinalizationFailed(403, domain.EFORBIDDEN, op, "session does not belong to this customer")
	}
	return nil
}

// rebuildOrders reconstructs the per-seller order set from processor line
// items, stamping ownership and guest contact details from session metadata.
func (s *completionService) rebuildOrders(sess *billing.Session, lineItems []billing.SessionLineItem) ([]domain.Order, error) {
	const op = "checkout.finalize"

	items, err := parseCartItems(lineItems)
	if err != nil {
		return nil, domain.FinalizationFailed(400, domain.EINVALID, op, "session line items are not attributable to products")
	}
	items = filterPurchasable(items)
	if len(items) == 0 {
		return nil, domain.FinalizationFailed(400, domain.EINVALID, op, "session contains no purchasable items")
	}

	orders := groupCartItems(items)

	var customerID *uuid.UUID
	if raw, ok := sess.Metadata[metaCustomerID]; ok {
		if id, err := uuid.Parse(raw); err == nil {
			customerID = &id
		}
	}

	for i := range orders {
		orders[i].CustomerID = customerID
		if customerID == nil {
			orders[i].GuestEmail = sess.Metadata[metaGuestEmail]
			orders[i].GuestFullName = sess.Metadata[metaGuestFullName]
			orders[i].GuestPhone = sess.Metadata[metaGuestPhone]
			if orders[i].GuestEmail == "" {
				orders[i].GuestEmail = sess.CustomerEmail
			}
		}
	}
	return orders, nil
}

// addressForSession decodes the address snapshot from session metadata,
// falling back to whatever the processor collected from the customer.
// Finalization must not commit orders that cannot be routed to a carrier, so
// a session that yields no deliverable address from either source is a
// client-attributable failure.
func (s *completionService) addressForSession(ctx context.Context, sess *billing.Session) (domain.ShippingAddress, error) {
	if raw, ok := sess.Metadata[metaShippingAddress]; ok && raw != "" {
		var addr domain.ShippingAddress
		if err := json.Unmarshal([]byte(raw), &addr); err == nil && addressDeliverable(addr) {
			return addr, nil
		}
		s.logger.WarnContext(ctx, "unusable address metadata", "session_id", sess.ID)
	}

	addr := domain.ShippingAddress{
		FullName: sess.CustomerName,
		Phone:    sess.CustomerPhone,
	}
	if sess.ShippingAddress != nil {
		addr.AddressLine1 = sess.ShippingAddress.Line1
		addr.AddressLine2 = sess.ShippingAddress.Line2
		addr.City = sess.ShippingAddress.City
		addr.State = sess.ShippingAddress.State
		addr.PostalCode = sess.ShippingAddress.PostalCode
		addr.Country = sess.ShippingAddress.Country
	}
	if !addressDeliverable(addr) {
		return domain.ShippingAddress{}, &domain.FinalizationError{StatusCode: 400, Err: domain.ErrMissingShippingAddress}
	}
	return addr, nil
}

// addressDeliverable reports whether the fields a carrier needs to route a
// parcel are all present. Name and phone may be absent when the processor
// collected the address.
func addressDeliverable(addr domain.ShippingAddress) bool {
	return addr.AddressLine1 != "" && addr.City != "" && addr.PostalCode != "" && addr.Country != ""
}

func (s *completionService) countFinalization(outcome string) {
	if telemetry.Business != nil {
		telemetry.Business.Finalizations.WithLabelValues(outcome).Inc()
	}
}
