package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kestrelcommerce/kestrel/internal/billing"
	"github.com/kestrelcommerce/kestrel/internal/domain"
	"github.com/kestrelcommerce/kestrel/internal/repository"
	"github.com/kestrelcommerce/kestrel/internal/telemetry"
	"github.com/samber/lo"
)

// Session metadata keys. The session must carry enough to rebuild the order
// set from the processor alone, so every key written here is read back in
// completion.go.
const (
	metaCustomerID      = "customer_id"
	metaGuest           = "guest"
	metaGuestEmail      = "guest_email"
	metaGuestFullName   = "guest_full_name"
	metaGuestPhone      = "guest_phone"
	metaShippingAddress = "shipping_address"
	metaPaymentMethod   = "payment_method"
	metaSaveAddress     = "save_address"
	metaItemCount       = "item_count"
	metaSellerCount     = "seller_count"
)

// Line item metadata keys, attached to the processor's product record.
const (
	metaProductID       = "product_id"
	metaSellerID        = "seller_id"
	metaSellerName      = "seller_name"
	metaIsReservation   = "is_reservation"
	metaReservationDate = "reservation_date"
	metaReservationTime = "reservation_time"
	metaReservationNote = "reservation_note"
)

// CheckoutConfig carries the orchestrator's processor-facing settings.
type CheckoutConfig struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

// checkoutService implements domain.CheckoutService.
type checkoutService struct {
	store    repository.Store
	billing  billing.Provider
	cfg      CheckoutConfig
	validate *validator.Validate
	logger   *slog.Logger
}

// Compile-time check that checkoutService implements domain.CheckoutService.
var _ domain.CheckoutService = (*checkoutService)(nil)

// NewCheckoutService creates the checkout session orchestrator.
func NewCheckoutService(store repository.Store, billingProvider billing.Provider, cfg CheckoutConfig, logger *slog.Logger) domain.CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &checkoutService{
		store:    store,
		billing:  billingProvider,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("service", "checkout"),
	}
}

// CreateCheckoutSession validates the cart, resolves the shipping address,
// requests a hosted session and stages one pending_payment order per seller.
// If staging fails after the session exists, the staged orders are purged and
// the session expired so a paid-looking session can never be orphaned.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSessionResult, error) {
	const op = "checkout.create"

	if telemetry.Business != nil {
		telemetry.Business.CheckoutStarted.Inc()
	}

	items := filterPurchasable(req.Items)
	if len(items) == 0 {
		s.countFailure("validation")
		if len(req.Items) == 0 {
			return nil, ErrEmptyCart
		}
		return nil, ErrNoPurchasableItems
	}

	if req.CustomerID == nil && req.GuestEmail == "" {
		s.countFailure("validation")
		return nil, ErrMissingGuestEmail
	}

	addr, err := s.resolveAddress(ctx, &req)
	if err != nil {
		s.countFailure("validation")
		return nil, err
	}

	orders := groupCartItems(items)

	// Fast-fail conflict check; re-validated under lock at staging time.
	slots := reservationSlots(items)
	if len(slots) > 0 {
		conflicts, err := s.store.FindReservationConflicts(ctx, slots)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to check reservation availability")
		}
		if len(conflicts) > 0 {
			s.countFailure("conflict")
			return nil, domain.ReservationConflictError(op, conflicts)
		}
	}

	sess, err := s.billing.CreateCheckoutSession(ctx, s.buildSessionParams(&req, items, orders, addr))
	if err != nil {
		s.countFailure("session")
		s.logger.ErrorContext(ctx, "session creation failed", "error", err)
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "payment session could not be created")
	}

	for i := range orders {
		orders[i].CustomerID = req.CustomerID
		orders[i].ShippingAddress = *addr
		orders[i].PaymentMethod = req.PaymentMethod
		if req.CustomerID == nil {
			orders[i].GuestEmail = req.GuestEmail
			orders[i].GuestFullName = req.GuestFullName
			orders[i].GuestPhone = req.GuestPhone
		}
	}

	staged, err := s.store.StageOrders(ctx, repository.StageOrdersParams{
		SessionID: sess.ID,
		Orders:    orders,
	})
	if err != nil {
		s.compensate(ctx, sess.ID)
		if domain.IsCode(err, domain.ECONFLICT) {
			s.countFailure("conflict")
			return nil, err
		}
		s.countFailure("staging")
		s.logger.ErrorContext(ctx, "order staging failed", "session_id", sess.ID, "error", err)
		return nil, ErrCheckoutUnavailable
	}

	if telemetry.Business != nil {
		telemetry.Business.SessionsCreated.Inc()
		for _, o := range staged {
			telemetry.Business.OrderValue.Observe(float64(o.TotalAmount))
		}
	}

	s.logger.InfoContext(ctx, "checkout session staged",
		"session_id", sess.ID,
		"orders", len(staged),
		"items", len(items))

	return &domain.CheckoutSessionResult{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

// resolveAddress returns the shipping address snapshot for the checkout,
// copying a saved address (owner-checked) or validating a fresh one. A fresh
// address is persisted when the customer asked to save it; failure to save is
// logged, never fatal.
func (s *checkoutService) resolveAddress(ctx context.Context, req *domain.CheckoutRequest) (*domain.ShippingAddress, error) {
	const op = "checkout.address"

	if req.SavedAddressID != nil {
		if req.CustomerID == nil {
			return nil, ErrGuestAddressRef
		}
		saved, err := s.store.GetSavedAddress(ctx, *req.SavedAddressID)
		if err != nil {
			return nil, err
		}
		if saved.CustomerID != *req.CustomerID {
			return nil, ErrAddressNotOwned
		}
		addr := saved.Address
		return &addr, nil
	}

	if req.Address == nil {
		return nil, ErrMissingAddress
	}

	if err := s.validate.Struct(req.Address); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			var fieldErr error
			for _, fe := range verrs {
				fieldErr = domain.AddFieldError(fieldErr, fe.Field(), "is required")
			}
			return nil, fieldErr
		}
		return nil, domain.Invalid(op, "incomplete shipping address")
	}

	if req.SaveAddress && req.CustomerID != nil {
		_, err := s.store.CreateSavedAddress(ctx, domain.SavedAddress{
			CustomerID: *req.CustomerID,
			Address:    *req.Address,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to save address", "error", err)
		}
	}

	return req.Address, nil
}

// buildSessionParams assembles the processor request: line items with enough
// product metadata to rebuild orders, and session metadata naming the owner
// and the address snapshot.
func (s *checkoutService) buildSessionParams(req *domain.CheckoutRequest, items []domain.CartItem, orders []domain.Order, addr *domain.ShippingAddress) billing.CreateSessionParams {
	lineItems := make([]billing.SessionLineItemParams, 0, len(items))
	for _, it := range items {
		md := map[string]string{
			metaProductID:  it.ProductID.String(),
			metaSellerID:   it.SellerID.String(),
			metaSellerName: it.SellerName,
		}
		if it.IsReservation {
			md[metaIsReservation] = "true"
			md[metaReservationDate] = it.ReservationDate
			md[metaReservationTime] = it.ReservationTime
			if it.ReservationNote != "" {
				md[metaReservationNote] = it.ReservationNote
			}
		}
		lineItems = append(lineItems, billing.SessionLineItemParams{
			Name:       it.ProductName,
			ImageURL:   it.ProductImage,
			Quantity:   int64(it.Quantity),
			UnitAmount: it.UnitPrice,
			Metadata:   md,
		})
	}

	addrJSON, _ := json.Marshal(addr)
	metadata := map[string]string{
		metaShippingAddress: string(addrJSON),
		metaPaymentMethod:   req.PaymentMethod,
		metaItemCount:       strconv.Itoa(len(items)),
		metaSellerCount:     strconv.Itoa(len(orders)),
		metaSaveAddress:     strconv.FormatBool(req.SaveAddress),
	}

	params := billing.CreateSessionParams{
		Currency:   s.cfg.Currency,
		LineItems:  lineItems,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		Metadata:   metadata,
	}

	if req.CustomerID != nil {
		metadata[metaCustomerID] = req.CustomerID.String()
	} else {
		metadata[metaGuest] = "true"
		metadata[metaGuestEmail] = req.GuestEmail
		metadata[metaGuestFullName] = req.GuestFullName
		metadata[metaGuestPhone] = req.GuestPhone
		params.CustomerEmail = req.GuestEmail
	}

	return params
}

// compensate purges staged orders and expires the session after a
// post-session failure. Best effort: failures are logged, never returned, so
// they cannot mask the original error.
func (s *checkoutService) compensate(ctx context.Context, sessionID string) {
	if _, err := s.store.PurgeStagedOrders(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "compensation: purge failed", "session_id", sessionID, "error", err)
	}
	if err := s.billing.ExpireSession(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "compensation: expire failed", "session_id", sessionID, "error", err)
	}
}

func (s *checkoutService) countFailure(reason string) {
	if telemetry.Business != nil {
		telemetry.Business.CheckoutFailed.WithLabelValues(reason).Inc()
	}
}

// filterPurchasable drops items with non-positive quantity or price.
func filterPurchasable(items []domain.CartItem) []domain.CartItem {
	return lo.Filter(items, func(it domain.CartItem, _ int) bool {
		return it.Quantity > 0 && it.UnitPrice > 0
	})
}

// groupCartItems partitions a flat cart into one order per seller. Subtotals
// and order totals are computed here, once, from the cart's unit prices.
func groupCartItems(items []domain.CartItem) []domain.Order {
	bySeller := lo.GroupBy(items, func(it domain.CartItem) uuid.UUID {
		return it.SellerID
	})

	sellerIDs := lo.Keys(bySeller)
	sort.Slice(sellerIDs, func(i, j int) bool {
		return sellerIDs[i].String() < sellerIDs[j].String()
	})

	orders := make([]domain.Order, 0, len(sellerIDs))
	for _, sellerID := range sellerIDs {
		group := bySeller[sellerID]

		order := domain.Order{
			SellerID:   sellerID,
			SellerName: group[0].SellerName,
		}
		for _, it := range group {
			subtotal := it.UnitPrice * int64(it.Quantity)
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:       it.ProductID,
				ProductName:     it.ProductName,
				ProductImage:    it.ProductImage,
				Quantity:        it.Quantity,
				UnitPrice:       it.UnitPrice,
				Subtotal:        subtotal,
				IsReservation:   it.IsReservation,
				ReservationDate: it.ReservationDate,
				ReservationTime: it.ReservationTime,
				ReservationNote: it.ReservationNote,
			})
			order.TotalAmount += subtotal
		}
		orders = append(orders, order)
	}
	return orders
}

// reservationSlots extracts the conflict-check tuples from reservation items.
func reservationSlots(items []domain.CartItem) []domain.ReservationSlot {
	var slots []domain.ReservationSlot
	for _, it := range items {
		if it.IsReservation {
			slots = append(slots, domain.ReservationSlot{
				ProductID:       it.ProductID,
				ReservationDate: it.ReservationDate,
				ReservationTime: it.ReservationTime,
			})
		}
	}
	return slots
}

// parseCartItems maps processor line items back onto cart items using the
// product metadata attached at session creation. Lines without a product id
// cannot be attributed and fail the whole mapping.
func parseCartItems(lineItems []billing.SessionLineItem) ([]domain.CartItem, error) {
	items := make([]domain.CartItem, 0, len(lineItems))
	for _, li := range lineItems {
		productID, err := uuid.Parse(li.Metadata[metaProductID])
		if err != nil {
			return nil, fmt.Errorf("line item %q: bad product id: %w", li.Name, err)
		}
		sellerID, err := uuid.Parse(li.Metadata[metaSellerID])
		if err != nil {
			return nil, fmt.Errorf("line item %q: bad seller id: %w", li.Name, err)
		}

		items = append(items, domain.CartItem{
			ProductID:       productID,
			SellerID:        sellerID,
			SellerName:      li.Metadata[metaSellerName],
			ProductName:     li.Name,
			ProductImage:    li.ImageURL,
			Quantity:        int32(li.Quantity),
			UnitPrice:       li.UnitAmount,
			IsReservation:   li.Metadata[metaIsReservation] == "true",
			ReservationDate: li.Metadata[metaReservationDate],
			ReservationTime: li.Metadata[metaReservationTime],
			ReservationNote: li.Metadata[metaReservationNote],
		})
	}
	return items, nil
}
