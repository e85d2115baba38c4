package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is shared by brand classification and customer loyalty; the two are independent.
type Tier string

const (
	TierPremium Tier = "PREMIUM"
	TierRegular Tier = "REGULAR"
	TierBudget  Tier = "BUDGET"
)

// Valid reports whether t is one of the known tiers
func (t Tier) Valid() bool {
	switch t {
	case TierPremium, TierRegular, TierBudget:
		return true
	}
	return false
}

// Payment methods and card types
const (
	PaymentMethodCard   = "CARD"
	PaymentMethodUPI    = "UPI"
	PaymentMethodWallet = "WALLET"

	CardTypeCredit = "CREDIT"
	CardTypeDebit  = "DEBIT"
)

// Product represents a product in the catalog
type Product struct {
	ID               string          `db:"id" json:"id"`
	Brand            string          `db:"brand" json:"brand"`
	BrandTier        Tier            `db:"brand_tier" json:"brand_tier"`
	Category         string          `db:"category" json:"category"`
	BasePrice        decimal.Decimal `db:"base_price" json:"base_price"`
	CurrentPrice     decimal.Decimal `db:"current_price" json:"current_price"`
	MinPricePossible decimal.Decimal `db:"min_price_possible" json:"min_price_possible"`
}

// Inventory represents product stock
type Inventory struct {
	ProductID string    `db:"product_id" json:"product_id"`
	Available int       `db:"available" json:"available"`
	Reserved  int       `db:"reserved" json:"reserved"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Free returns the quantity that can still be reserved.
func (i Inventory) Free() int {
	return i.Available - i.Reserved
}

// CartItem is one requested line of a cart
type CartItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// Customer is the buyer profile used for tier discounts
type Customer struct {
	ID    string `json:"id" binding:"required"`
	Tier  Tier   `json:"tier" binding:"required"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// PaymentInfo only feeds discount eligibility; no settlement happens here.
type PaymentInfo struct {
	Method   string `json:"method"`
	CardType string `json:"card_type,omitempty"`
	BankName string `json:"bank_name,omitempty"`
}

// AppliedDiscount is one audit entry of a line's discount chain
type AppliedDiscount struct {
	Strategy string          `json:"strategy"`
	Amount   decimal.Decimal `json:"amount"`
	Clamped  bool            `json:"clamped,omitempty"`
}

// DiscountResult is the priced outcome of a single product
type DiscountResult struct {
	ProductID       string            `json:"product_id"`
	OriginalPrice   decimal.Decimal   `json:"original_price"`
	DiscountedPrice decimal.Decimal   `json:"discounted_price"`
	Applied         []AppliedDiscount `json:"applied"`
}

// LineResult is a DiscountResult bound to the requested quantity
type LineResult struct {
	DiscountResult
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Reservation statuses
const (
	ReservationReserved     = "RESERVED"
	ReservationNotRequested = "NOT_REQUESTED"
	ReservationFailed       = "FAILED"
	ReservationReleased     = "RELEASED"
)

// LineReservation is the reservation outcome of one cart line
type LineReservation struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// ReservationReport summarises a whole-cart reservation attempt
type ReservationReport struct {
	Status string            `json:"status"`
	Reason string            `json:"reason,omitempty"`
	Lines  []LineReservation `json:"lines"`
}

// Checkout states
const (
	CheckoutStateReceived          = "RECEIVED"
	CheckoutStateDiscountsComputed = "DISCOUNTS_COMPUTED"
	CheckoutStateInventoryReserved = "INVENTORY_RESERVED"
	CheckoutStateComplete          = "COMPLETE"
	CheckoutStateFailed            = "FAILED"
)

// CartDiscountReport is the result of one checkout calculation
type CartDiscountReport struct {
	CheckoutID       string             `json:"checkout_id"`
	CustomerID       string             `json:"customer_id"`
	State            string             `json:"state"`
	OriginalPrice    decimal.Decimal    `json:"original_price"`
	FinalPrice       decimal.Decimal    `json:"final_price"`
	TotalDiscount    decimal.Decimal    `json:"total_discount"`
	AppliedDiscounts []string           `json:"applied_discounts"`
	Lines            []LineResult       `json:"lines"`
	Reservation      *ReservationReport `json:"reservation"`
	CreatedAt        time.Time          `json:"created_at"`
}

// CheckoutRecord is the persisted audit of a checkout
type CheckoutRecord struct {
	ID         string          `db:"id" json:"id"`
	CustomerID string          `db:"customer_id" json:"customer_id"`
	State      string          `db:"state" json:"state"`
	FinalPrice decimal.Decimal `db:"final_price" json:"final_price"`
	Report     []byte          `db:"report" json:"-"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
