// Package commerce holds the shop domain: catalog and inventory, carts,
// discount codes, orders and the action handlers that drive a purchase
// conversation, including the idempotent order-confirmation protocol.
package commerce

import (
	"errors"
	"fmt"
)

// Sentinel errors for the commerce domain.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrCartNotFound       = errors.New("cart not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOutOfStock         = errors.New("insufficient stock")
	ErrDiscountNotFound   = errors.New("discount code not found")
	ErrDiscountExpired    = errors.New("discount code expired")
	ErrDiscountExhausted  = errors.New("discount code usage limit reached")
	ErrDiscountBelowMin   = errors.New("cart total below discount minimum spend")
	ErrDiscountAboveMax   = errors.New("cart total above discount maximum spend")
	ErrPaymentDeclined    = errors.New("payment declined")
)

// StockError reports one cart line whose requested quantity exceeds
// current availability.
type StockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s only has %d available, you requested %d",
		e.Name, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrOutOfStock }

// DiscountError reports why an applied discount code failed re-validation.
type DiscountError struct {
	Code   string
	Reason error
}

func (e *DiscountError) Error() string {
	return fmt.Sprintf("discount %s: %v", e.Code, e.Reason)
}

func (e *DiscountError) Unwrap() error { return e.Reason }
