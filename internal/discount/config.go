package discount

import (
	"context"
	"strings"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AmountKind tells how an Amount is normalised against a running price
type AmountKind string

const (
	KindPercent AmountKind = "PERCENT"
	KindFixed   AmountKind = "FIXED"
)

// Amount is a configured deduction: a percentage of the running price or a fixed per-unit amount.
type Amount struct {
	Kind  AmountKind      `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Percent builds a percentage amount from a decimal string, e.g. Percent("10") is 10%.
func Percent(v string) Amount {
	return Amount{Kind: KindPercent, Value: decimal.RequireFromString(v)}
}

// Fixed builds an absolute per-unit amount from a decimal string.
func Fixed(v string) Amount {
	return Amount{Kind: KindFixed, Value: decimal.RequireFromString(v)}
}

// Against returns the absolute deduction this amount represents at the given running price.
func (a Amount) Against(running decimal.Decimal) decimal.Decimal {
	if a.Kind == KindPercent {
		return running.Mul(a.Value).Div(hundred)
	}
	return a.Value
}

// Coupon is a registry entry for a discount code
type Coupon struct {
	Code         string          `json:"code"`
	Amount       Amount          `json:"amount"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	UsageLimit   int             `json:"usage_limit"` // 0 means unlimited
	UsedCount    int             `json:"used_count"`
	MinCartValue decimal.Decimal `json:"min_cart_value"`
	Tiers        []models.Tier   `json:"tiers,omitempty"` // empty means every customer tier
}

// Validate checks the coupon against the moment of checkout, the undiscounted cart value and the customer tier.
func (c Coupon) Validate(now time.Time, cartValue decimal.Decimal, tier models.Tier) error {
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return &models.DiscountCodeError{Code: c.Code, Reason: "expired"}
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return &models.DiscountCodeError{Code: c.Code, Reason: "usage limit reached"}
	}
	if c.MinCartValue.IsPositive() && cartValue.LessThan(c.MinCartValue) {
		return &models.DiscountCodeError{Code: c.Code, Reason: "cart below minimum value " + c.MinCartValue.String()}
	}
	if len(c.Tiers) > 0 {
		for _, t := range c.Tiers {
			if t == tier {
				return nil
			}
		}
		return &models.DiscountCodeError{Code: c.Code, Reason: "not available for tier " + string(tier)}
	}
	return nil
}

// Config holds every discount table. It is read-only once handed to the composer.
type Config struct {
	Brands         map[string]Amount
	Categories     map[string]Amount
	PaymentMethods map[string]Amount
	Tiers          map[models.Tier]Amount
	Coupons        map[string]Coupon
}

// NewConfig returns an empty configuration
func NewConfig() *Config {
	return &Config{
		Brands:         make(map[string]Amount),
		Categories:     make(map[string]Amount),
		PaymentMethods: make(map[string]Amount),
		Tiers:          make(map[models.Tier]Amount),
		Coupons:        make(map[string]Coupon),
	}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func brandKey(brand string, tier models.Tier) string {
	if tier == "" {
		return normalize(brand)
	}
	return normalize(brand) + "/" + normalize(string(tier))
}

func paymentKey(method, cardType string) string {
	if cardType == "" {
		return normalize(method)
	}
	return normalize(method) + ":" + normalize(cardType)
}

// SetBrand configures a brand discount for one brand tier; an empty tier matches any tier.
func (c *Config) SetBrand(brand string, tier models.Tier, a Amount) *Config {
	c.Brands[brandKey(brand, tier)] = a
	return c
}

// SetCategory configures a category discount
func (c *Config) SetCategory(category string, a Amount) *Config {
	c.Categories[normalize(category)] = a
	return c
}

// SetPaymentMethod configures a payment discount; an empty card type matches the whole method.
func (c *Config) SetPaymentMethod(method, cardType string, a Amount) *Config {
	c.PaymentMethods[paymentKey(method, cardType)] = a
	return c
}

// SetTier configures a customer tier discount
func (c *Config) SetTier(tier models.Tier, a Amount) *Config {
	c.Tiers[tier] = a
	return c
}

// AddCoupon registers a coupon under its normalised code
func (c *Config) AddCoupon(coupon Coupon) *Config {
	coupon.Code = normalize(coupon.Code)
	c.Coupons[coupon.Code] = coupon
	return c
}

func (c *Config) brand(brand string, tier models.Tier) (Amount, bool) {
	if a, ok := c.Brands[brandKey(brand, tier)]; ok {
		return a, true
	}
	a, ok := c.Brands[brandKey(brand, "")]
	return a, ok
}

func (c *Config) category(category string) (Amount, bool) {
	a, ok := c.Categories[normalize(category)]
	return a, ok
}

func (c *Config) payment(p *models.PaymentInfo) (Amount, bool) {
	if p == nil || p.Method == "" {
		return Amount{}, false
	}
	if p.CardType != "" {
		if a, ok := c.PaymentMethods[paymentKey(p.Method, p.CardType)]; ok {
			return a, true
		}
	}
	a, ok := c.PaymentMethods[paymentKey(p.Method, "")]
	return a, ok
}

func (c *Config) coupon(code string) (Coupon, bool) {
	cp, ok := c.Coupons[normalize(code)]
	return cp, ok
}

// ConfigSource supplies the discount tables for one checkout
type ConfigSource interface {
	DiscountConfig(ctx context.Context) (*Config, error)
}

// StaticSource serves a fixed configuration
type StaticSource struct {
	Config *Config
}

// DiscountConfig implements ConfigSource
func (s StaticSource) DiscountConfig(ctx context.Context) (*Config, error) {
	return s.Config, nil
}

// DefaultConfig returns the sample tables used for local runs
func DefaultConfig() *Config {
	cfg := NewConfig()
	for _, brand := range []string{"PUMA", "ADIDAS", "NIKE"} {
		cfg.SetBrand(brand, models.TierPremium, Percent("10"))
		cfg.SetBrand(brand, "", Percent("5"))
		cfg.AddCoupon(Coupon{Code: brand + "10", Amount: Percent("10"), Tiers: []models.Tier{models.TierPremium}})
		cfg.AddCoupon(Coupon{Code: brand, Amount: Percent("5"), Tiers: []models.Tier{models.TierRegular, models.TierBudget}})
	}
	for _, category := range []string{"SHOES", "T-SHIRTS", "PANTS"} {
		cfg.SetCategory(category, Percent("5"))
	}
	cfg.SetPaymentMethod(models.PaymentMethodCard, models.CardTypeCredit, Percent("5"))
	cfg.SetPaymentMethod(models.PaymentMethodCard, models.CardTypeDebit, Percent("5"))
	cfg.SetTier(models.TierPremium, Percent("5"))
	cfg.SetTier(models.TierRegular, Percent("2"))
	return cfg
}
