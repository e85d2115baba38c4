package discount

import (
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// Composer applies the strategies to cart lines in a fixed order:
// Brand, Category, PaymentMethod, Coupon, CustomerTier.
//
// Every strategy is normalised against the running price left by the previous ones, so the
// tier discount is multiplicative on the already-discounted price and a bad coupon fails
// before the tier deduction is computed.
type Composer struct {
	strategies []Strategy
	now        func() time.Time
}

// NewComposer creates a composer with the standard strategy order
func NewComposer() *Composer {
	return &Composer{
		strategies: []Strategy{
			BrandDiscount{},
			CategoryDiscount{},
			PaymentMethodDiscount{},
			CouponDiscount{},
			CustomerTierDiscount{},
		},
		now: time.Now,
	}
}

// PricedItem pairs a loaded product with the requested quantity
type PricedItem struct {
	Product  *models.Product
	Quantity int
}

// CartInput is the request-scoped input of PriceCart
type CartInput struct {
	Items    []PricedItem
	Customer models.Customer
	Payment  *models.PaymentInfo
	Code     string
}

// CartValue sums current price times quantity over the cart, before any discount
func CartValue(items []PricedItem) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, it := range items {
		if err := validateProduct(it.Product); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(it.Product.CurrentPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total, nil
}

// ValidateCoupon checks in.Code against the undiscounted cart value and the customer's tier.
// It fails with a *models.DiscountCodeError when the code is unknown or does not apply.
func (c *Composer) ValidateCoupon(in CartInput, cfg *Config) (Coupon, error) {
	cartValue, err := CartValue(in.Items)
	if err != nil {
		return Coupon{}, err
	}
	return lookupCoupon(cfg, in.Code, c.now(), cartValue, in.Customer.Tier)
}

// PriceCart validates the coupon for the whole cart, then runs ApplyAll on every line.
// Any error means no line result is returned.
func (c *Composer) PriceCart(in CartInput, cfg *Config) ([]models.LineResult, error) {
	cartValue, err := CartValue(in.Items)
	if err != nil {
		return nil, err
	}

	now := c.now()
	if in.Code != "" {
		if _, err := lookupCoupon(cfg, in.Code, now, cartValue, in.Customer.Tier); err != nil {
			return nil, err
		}
	}

	lines := make([]models.LineResult, 0, len(in.Items))
	for _, it := range in.Items {
		res, err := c.ApplyAll(LineContext{
			Product:   it.Product,
			Customer:  in.Customer,
			Payment:   in.Payment,
			Code:      in.Code,
			CartValue: cartValue,
			Now:       now,
		}, cfg)
		if err != nil {
			return nil, err
		}
		qty := decimal.NewFromInt(int64(it.Quantity))
		lines = append(lines, models.LineResult{
			DiscountResult: *res,
			Quantity:       it.Quantity,
			LineTotal:      res.DiscountedPrice.Mul(qty),
		})
	}
	return lines, nil
}

// ApplyAll runs every strategy against one line's running price and clamps each deduction at
// the product's floor. A deduction that clamps to nothing leaves no audit entry.
func (c *Composer) ApplyAll(lc LineContext, cfg *Config) (*models.DiscountResult, error) {
	p := lc.Product
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	if lc.Now.IsZero() {
		lc.Now = c.now()
	}

	running := p.CurrentPrice
	floor := p.MinPricePossible
	applied := make([]models.AppliedDiscount, 0, len(c.strategies))

	for _, s := range c.strategies {
		amount, ok, err := s.Evaluate(lc, cfg)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		deduction := amount.Against(running)
		if deduction.IsNegative() {
			return nil, fmt.Errorf("%w: %s proposes negative deduction %s for product %s",
				models.ErrInvalidPriceCalculation, s.Name(), deduction, p.ID)
		}

		clamped := false
		if room := running.Sub(floor); deduction.GreaterThan(room) {
			deduction = room
			clamped = true
		}
		if deduction.IsZero() {
			continue
		}

		running = running.Sub(deduction)
		applied = append(applied, models.AppliedDiscount{
			Strategy: s.Name(),
			Amount:   deduction,
			Clamped:  clamped,
		})
	}

	return &models.DiscountResult{
		ProductID:       p.ID,
		OriginalPrice:   p.CurrentPrice,
		DiscountedPrice: running,
		Applied:         applied,
	}, nil
}

// Aggregate sums line totals and collects strategy names in first-appearance order
func Aggregate(lines []models.LineResult) (original, final decimal.Decimal, applied []string) {
	original, final = decimal.Zero, decimal.Zero
	seen := make(map[string]bool)
	applied = []string{}

	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		original = original.Add(l.OriginalPrice.Mul(qty))
		final = final.Add(l.DiscountedPrice.Mul(qty))
		for _, a := range l.Applied {
			if !seen[a.Strategy] {
				seen[a.Strategy] = true
				applied = append(applied, a.Strategy)
			}
		}
	}
	return original, final, applied
}

// validateProduct enforces 0 <= min_price_possible <= current_price <= base_price
func validateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("%w: nil product", models.ErrInvalidPriceCalculation)
	}
	if p.MinPricePossible.IsNegative() {
		return fmt.Errorf("%w: product %s has negative floor %s", models.ErrInvalidPriceCalculation, p.ID, p.MinPricePossible)
	}
	if p.MinPricePossible.GreaterThan(p.CurrentPrice) {
		return fmt.Errorf("%w: product %s floor %s above current price %s",
			models.ErrInvalidPriceCalculation, p.ID, p.MinPricePossible, p.CurrentPrice)
	}
	if p.CurrentPrice.GreaterThan(p.BasePrice) {
		return fmt.Errorf("%w: product %s current price %s above base price %s",
			models.ErrInvalidPriceCalculation, p.ID, p.CurrentPrice, p.BasePrice)
	}
	return nil
}
