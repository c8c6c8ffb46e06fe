package service

import (
	"github.com/kestrelcommerce/kestrel/internal/domain"
)

// Checkout errors - use domain.EINVALID / domain.EFORBIDDEN
var (
	ErrEmptyCart           = domain.Errorf(domain.EINVALID, "", "Cart is empty")
	ErrNoPurchasableItems  = domain.Errorf(domain.EINVALID, "", "No purchasable items in cart")
	ErrMissingAddress      = domain.Errorf(domain.EINVALID, "", "Shipping address is required")
	ErrAddressNotOwned     = domain.Errorf(domain.EFORBIDDEN, "", "Saved address belongs to another customer")
	ErrGuestAddressRef     = domain.Errorf(domain.EINVALID, "", "Guest checkout cannot reference a saved address")
	ErrMissingGuestEmail   = domain.Errorf(domain.EINVALID, "", "Customer email required for guest checkout")
	ErrCheckoutUnavailable = domain.Errorf(domain.EINTERNAL, "", "Checkout could not be completed, please try again")
)

// Order errors
var (
	ErrOrderNotFound   = domain.ErrOrderNotFound
	ErrMissingTracking = domain.Errorf(domain.EINVALID, "", "Tracking number is required")
)

// Stock errors
var (
	ErrInvalidQuantity = domain.Errorf(domain.EINVALID, "", "Quantity must be greater than 0")
)

// Refund errors
var (
	ErrInvalidRefundAmount = domain.Errorf(domain.EINVALID, "", "Refund amount must be greater than 0")
)
