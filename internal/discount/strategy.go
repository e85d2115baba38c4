package discount

import (
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// Strategy names as they appear in the audit
const (
	NameBrand         = "BrandDiscount"
	NameCategory      = "CategoryDiscount"
	NamePaymentMethod = "PaymentMethodDiscount"
	NameCoupon        = "CouponDiscount"
	NameCustomerTier  = "CustomerTierDiscount"
)

// LineContext is everything a strategy may inspect for one line
type LineContext struct {
	Product   *models.Product
	Customer  models.Customer
	Payment   *models.PaymentInfo
	Code      string
	CartValue decimal.Decimal
	Now       time.Time
}

// Strategy proposes a deduction for a line or abstains (ok == false).
// Only the coupon strategy ever returns an error.
//
// The set is closed: the composer's order is part of the pricing rules.
type Strategy interface {
	Name() string
	Evaluate(lc LineContext, cfg *Config) (a Amount, ok bool, err error)
	sealed()
}

// BrandDiscount deducts the amount configured for the product's brand and brand tier.
type BrandDiscount struct{}

func (BrandDiscount) Name() string { return NameBrand }
func (BrandDiscount) sealed()      {}

// Evaluate looks up the brand entry for the line's product.
func (BrandDiscount) Evaluate(lc LineContext, cfg *Config) (Amount, bool, error) {
	a, ok := cfg.brand(lc.Product.Brand, lc.Product.BrandTier)
	return a, ok, nil
}

// CategoryDiscount deducts the amount configured for the product's category.
type CategoryDiscount struct{}

func (CategoryDiscount) Name() string { return NameCategory }
func (CategoryDiscount) sealed()      {}

// Evaluate looks up the category entry for the line's product.
func (CategoryDiscount) Evaluate(lc LineContext, cfg *Config) (Amount, bool, error) {
	a, ok := cfg.category(lc.Product.Category)
	return a, ok, nil
}

// PaymentMethodDiscount deducts the amount configured for the payment method and card type, falling back to the method alone.
type PaymentMethodDiscount struct{}

func (PaymentMethodDiscount) Name() string { return NamePaymentMethod }
func (PaymentMethodDiscount) sealed()      {}

// Evaluate abstains when the cart carries no payment information.
func (PaymentMethodDiscount) Evaluate(lc LineContext, cfg *Config) (Amount, bool, error) {
	a, ok := cfg.payment(lc.Payment)
	return a, ok, nil
}

// CouponDiscount abstains without a code and fails on a code that does not validate.
type CouponDiscount struct{}

func (CouponDiscount) Name() string { return NameCoupon }
func (CouponDiscount) sealed()      {}

func (CouponDiscount) Evaluate(lc LineContext, cfg *Config) (Amount, bool, error) {
	if lc.Code == "" {
		return Amount{}, false, nil
	}
	coupon, err := lookupCoupon(cfg, lc.Code, lc.Now, lc.CartValue, lc.Customer.Tier)
	if err != nil {
		return Amount{}, false, err
	}
	return coupon.Amount, true, nil
}

func lookupCoupon(cfg *Config, code string, now time.Time, cartValue decimal.Decimal, tier models.Tier) (Coupon, error) {
	coupon, ok := cfg.coupon(code)
	if !ok {
		return Coupon{}, &models.DiscountCodeError{Code: code, Reason: "unknown code"}
	}
	if err := coupon.Validate(now, cartValue, tier); err != nil {
		return Coupon{}, err
	}
	return coupon, nil
}

// CustomerTierDiscount is keyed on the customer's tier only, never on the brand tier.
type CustomerTierDiscount struct{}

func (CustomerTierDiscount) Name() string { return NameCustomerTier }
func (CustomerTierDiscount) sealed()      {}

func (CustomerTierDiscount) Evaluate(lc LineContext, cfg *Config) (Amount, bool, error) {
	a, ok := cfg.Tiers[lc.Customer.Tier]
	return a, ok, nil
}
