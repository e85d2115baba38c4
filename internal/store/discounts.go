package store

import (
	"context"
	"database/sql"
	"fmt"

	"checkout-service/internal/discount"
	"checkout-service/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func toAmount(kind string, value decimal.Decimal) (discount.Amount, error) {
	switch discount.AmountKind(kind) {
	case discount.KindPercent, discount.KindFixed:
		return discount.Amount{Kind: discount.AmountKind(kind), Value: value}, nil
	}
	return discount.Amount{}, fmt.Errorf("unknown discount kind %q", kind)
}

type brandRow struct {
	Brand string          `db:"brand"`
	Tier  sql.NullString  `db:"brand_tier"`
	Kind  string          `db:"kind"`
	Value decimal.Decimal `db:"value"`
}

type categoryRow struct {
	Category string          `db:"category"`
	Kind     string          `db:"kind"`
	Value    decimal.Decimal `db:"value"`
}

type paymentRow struct {
	Method   string          `db:"method"`
	CardType sql.NullString  `db:"card_type"`
	Kind     string          `db:"kind"`
	Value    decimal.Decimal `db:"value"`
}

type tierRow struct {
	Tier  string          `db:"tier"`
	Kind  string          `db:"kind"`
	Value decimal.Decimal `db:"value"`
}

type couponRow struct {
	Code         string          `db:"code"`
	ExpiresAt    sql.NullTime    `db:"expires_at"`
	UsageLimit   int             `db:"usage_limit"`
	UsedCount    int             `db:"used_count"`
	MinCartValue decimal.Decimal `db:"min_cart_value"`
	Tiers        pq.StringArray  `db:"tiers"`
	Kind         string          `db:"kind"`
	Value        decimal.Decimal `db:"value"`
}

// DiscountConfig loads every discount table into one snapshot.
// It makes *Store a discount.ConfigSource.
func (s *Store) DiscountConfig(ctx context.Context) (*discount.Config, error) {
	cfg := discount.NewConfig()

	var brands []brandRow
	if err := s.db.SelectContext(ctx, &brands, "SELECT brand, brand_tier, kind, value FROM brand_discounts"); err != nil {
		return nil, fmt.Errorf("failed to load brand discounts: %w", err)
	}
	for _, r := range brands {
		a, err := toAmount(r.Kind, r.Value)
		if err != nil {
			return nil, fmt.Errorf("brand %s: %w", r.Brand, err)
		}
		cfg.SetBrand(r.Brand, models.Tier(r.Tier.String), a)
	}

	var categories []categoryRow
	if err := s.db.SelectContext(ctx, &categories, "SELECT category, kind, value FROM category_discounts"); err != nil {
		return nil, fmt.Errorf("failed to load category discounts: %w", err)
	}
	for _, r := range categories {
		a, err := toAmount(r.Kind, r.Value)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", r.Category, err)
		}
		cfg.SetCategory(r.Category, a)
	}

	var payments []paymentRow
	if err := s.db.SelectContext(ctx, &payments, "SELECT method, card_type, kind, value FROM payment_discounts"); err != nil {
		return nil, fmt.Errorf("failed to load payment discounts: %w", err)
	}
	for _, r := range payments {
		a, err := toAmount(r.Kind, r.Value)
		if err != nil {
			return nil, fmt.Errorf("payment %s: %w", r.Method, err)
		}
		cfg.SetPaymentMethod(r.Method, r.CardType.String, a)
	}

	var tiers []tierRow
	if err := s.db.SelectContext(ctx, &tiers, "SELECT tier, kind, value FROM tier_discounts"); err != nil {
		return nil, fmt.Errorf("failed to load tier discounts: %w", err)
	}
	for _, r := range tiers {
		a, err := toAmount(r.Kind, r.Value)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", r.Tier, err)
		}
		cfg.SetTier(models.Tier(r.Tier), a)
	}

	var coupons []couponRow
	err := s.db.SelectContext(ctx, &coupons,
		"SELECT code, kind, value, expires_at, usage_limit, used_count, min_cart_value, tiers FROM coupons")
	if err != nil {
		return nil, fmt.Errorf("failed to load coupons: %w", err)
	}
	for _, r := range coupons {
		c, err := r.coupon()
		if err != nil {
			return nil, fmt.Errorf("coupon %s: %w", r.Code, err)
		}
		cfg.AddCoupon(c)
	}

	return cfg, nil
}

func (r couponRow) coupon() (discount.Coupon, error) {
	a, err := toAmount(r.Kind, r.Value)
	if err != nil {
		return discount.Coupon{}, err
	}
	c := discount.Coupon{
		Code:         r.Code,
		Amount:       a,
		UsageLimit:   r.UsageLimit,
		UsedCount:    r.UsedCount,
		MinCartValue: r.MinCartValue,
	}
	if r.ExpiresAt.Valid {
		exp := r.ExpiresAt.Time
		c.ExpiresAt = &exp
	}
	for _, t := range r.Tiers {
		c.Tiers = append(c.Tiers, models.Tier(t))
	}
	return c, nil
}
