package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced by the checkout engine
var (
	ErrProductNotFound         = errors.New("product not found")
	ErrInvalidDiscountCode     = errors.New("invalid discount code")
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrInvalidPriceCalculation = errors.New("invalid price calculation")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrCheckoutNotFound        = errors.New("checkout not found")

	// Retryable: the caller may repeat the whole call.
	ErrReservationTimeout = errors.New("reservation lock timeout")
	ErrRepositoryTimeout  = errors.New("repository lookup timeout")
)

// IsRetryable reports whether err is a transient failure
func IsRetryable(err error) bool {
	return errors.Is(err, ErrReservationTimeout) || errors.Is(err, ErrRepositoryTimeout)
}

// Shortfall describes one product that cannot cover its requested quantity
type Shortfall struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Free      int    `json:"free"`
}

// Missing returns how many units are lacking
func (s Shortfall) Missing() int {
	return s.Requested - s.Free
}

func (s Shortfall) String() string {
	return fmt.Sprintf("product %s: requested %d, free %d, short by %d", s.ProductID, s.Requested, s.Free, s.Missing())
}

// InsufficientInventoryError names every failing product of a reservation
type InsufficientInventoryError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientInventory, strings.Join(parts, "; "))
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientInventory
}

// DiscountCodeError carries the reason a coupon was rejected
type DiscountCodeError struct {
	Code   string
	Reason string
}

func (e *DiscountCodeError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidDiscountCode, e.Code, e.Reason)
}

func (e *DiscountCodeError) Unwrap() error {
	return ErrInvalidDiscountCode
}
