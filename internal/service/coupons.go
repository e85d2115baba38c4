package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/catalog"
	"checkout-service/internal/discount"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CouponRequest asks whether a code would apply to a cart
type CouponRequest struct {
	Items    []models.CartItem `json:"items" binding:"required,min=1,dive"`
	Customer models.Customer   `json:"customer" binding:"required"`
	Code     string            `json:"code" binding:"required"`
}

// CouponValidation is the outcome of a successful coupon check
type CouponValidation struct {
	Code      string          `json:"code"`
	Valid     bool            `json:"valid"`
	Amount    discount.Amount `json:"amount"`
	CartValue decimal.Decimal `json:"cart_value"`
}

// ValidateCoupon checks a code against a cart without pricing or reserving it.
// Every line must be covered by free stock first; a code that does not apply fails with
// ErrInvalidDiscountCode.
func (s *CheckoutService) ValidateCoupon(ctx context.Context, req *CouponRequest) (*CouponValidation, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ValidateCoupon",
		attribute.String("coupon.code", req.Code))
	defer span.End()

	if req.Code == "" {
		err := fmt.Errorf("%w: coupon code required", models.ErrInvalidRequest)
		util.RecordError(span, err)
		return nil, err
	}
	if err := validateRequest(&CheckoutRequest{Items: req.Items, Customer: req.Customer}); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	items, err := s.loadItems(ctx, req.Items)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	if err := s.checkAvailability(ctx, req.Items); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	cfg, err := s.config.DiscountConfig(ctx)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to load discount config: %w", err)
	}

	in := discount.CartInput{Items: items, Customer: req.Customer, Code: req.Code}
	coupon, err := s.composer.ValidateCoupon(in, cfg)
	if err != nil {
		if errors.Is(err, models.ErrInvalidDiscountCode) {
			util.CouponRejectionsTotal.Inc()
		}
		util.RecordError(span, err)
		return nil, err
	}
	cartValue, _ := discount.CartValue(items)

	s.logger.Debug("Coupon validated", zap.String("code", coupon.Code), zap.String("cart_value", cartValue.String()))
	return &CouponValidation{
		Code:      coupon.Code,
		Valid:     true,
		Amount:    coupon.Amount,
		CartValue: cartValue,
	}, nil
}

// checkAvailability reports every product whose free stock cannot cover the summed quantity
func (s *CheckoutService) checkAvailability(ctx context.Context, cart []models.CartItem) error {
	if s.repoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.repoTimeout)
		defer cancel()
	}

	requested := make(map[string]int, len(cart))
	order := make([]string, 0, len(cart))
	for _, it := range cart {
		if _, ok := requested[it.ProductID]; !ok {
			order = append(order, it.ProductID)
		}
		requested[it.ProductID] += it.Quantity
	}

	var shortfalls []models.Shortfall
	for _, id := range order {
		inv, err := s.repo.GetInventory(ctx, id)
		if err != nil {
			return repositoryError(id, err)
		}
		if free := inv.Free(); free < requested[id] {
			shortfalls = append(shortfalls, models.Shortfall{ProductID: id, Requested: requested[id], Free: free})
		}
	}
	if len(shortfalls) > 0 {
		return &models.InsufficientInventoryError{Shortfalls: shortfalls}
	}
	return nil
}

// ListProducts returns the catalog when the product backend can list it
func (s *CheckoutService) ListProducts(ctx context.Context) ([]models.Product, error) {
	lister, ok := s.repo.(catalog.ProductLister)
	if !ok {
		return nil, catalog.ErrListingUnsupported
	}
	if s.repoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.repoTimeout)
		defer cancel()
	}

	products, err := lister.ListProducts(ctx)
	if err != nil {
		return nil, repositoryError("*", err)
	}
	return products, nil
}
