package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/catalog"
	"checkout-service/internal/discount"
	"checkout-service/internal/inventory"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Reserver validates and reserves whole carts
type Reserver interface {
	Reserve(ctx context.Context, items []models.CartItem) (*models.ReservationReport, error)
	Release(ctx context.Context, items []models.CartItem) error
}

// CheckoutStore persists finished checkout reports.
// TransitionReservation is an atomic compare-and-set on the stored reservation status; it fails
// with ErrInvalidRequest when the current status is not from.
type CheckoutStore interface {
	SaveCheckout(ctx context.Context, report *models.CartDiscountReport) error
	GetCheckout(ctx context.Context, id string) (*models.CartDiscountReport, error)
	TransitionReservation(ctx context.Context, id, from, to string) (*models.CartDiscountReport, error)
}

// EventPublisher announces checkout outcomes
type EventPublisher interface {
	PublishCartPriced(ctx context.Context, event *models.CartPricedEvent) error
	PublishInventoryReserved(ctx context.Context, event *models.InventoryReservedEvent) error
	PublishReservationFailed(ctx context.Context, event *models.ReservationFailedEvent) error
	PublishReleaseRequested(ctx context.Context, event *models.ReservationReleaseRequestedEvent) error
}

// CheckoutService prices carts and optionally reserves their stock
type CheckoutService struct {
	repo        catalog.Repository
	config      discount.ConfigSource
	composer    *discount.Composer
	reserver    Reserver
	checkouts   CheckoutStore
	publisher   EventPublisher
	repoTimeout time.Duration
	logger      *zap.Logger
}

// NewCheckoutService creates a new checkout service. checkouts and publisher may be nil.
func NewCheckoutService(
	repo catalog.Repository,
	config discount.ConfigSource,
	reserver Reserver,
	checkouts CheckoutStore,
	publisher EventPublisher,
	repoTimeout time.Duration,
) *CheckoutService {
	return &CheckoutService{
		repo:        repo,
		config:      config,
		composer:    discount.NewComposer(),
		reserver:    reserver,
		checkouts:   checkouts,
		publisher:   publisher,
		repoTimeout: repoTimeout,
		logger:      util.GetLogger(),
	}
}

// CheckoutRequest is one cart to price
type CheckoutRequest struct {
	Items            []models.CartItem   `json:"items" binding:"required,min=1,dive"`
	Customer         models.Customer     `json:"customer" binding:"required"`
	Payment          *models.PaymentInfo `json:"payment,omitempty"`
	CouponCode       string              `json:"coupon_code,omitempty"`
	ReserveInventory bool                `json:"reserve_inventory"`
}

// CalculateCartDiscounts prices every line, aggregates the cart and, when asked, reserves stock.
//
// Errors before pricing completes return no report. A failed reservation returns the priced
// report in state FAILED together with the error.
func (s *CheckoutService) CalculateCartDiscounts(ctx context.Context, req *CheckoutRequest) (*models.CartDiscountReport, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CalculateCartDiscounts",
		attribute.Int("cart.lines", len(req.Items)),
		attribute.Bool("cart.reserve", req.ReserveInventory))
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	report := &models.CartDiscountReport{
		CheckoutID: uuid.New().String(),
		CustomerID: req.Customer.ID,
		State:      models.CheckoutStateReceived,
		CreatedAt:  time.Now().UTC(),
	}
	span.SetAttributes(attribute.String("checkout.id", report.CheckoutID))

	if err := validateRequest(req); err != nil {
		return nil, s.fail(span, report, "invalid_request", err)
	}

	items, err := s.loadItems(ctx, req.Items)
	if err != nil {
		return nil, s.fail(span, report, failureReason(err), err)
	}

	cfg, err := s.config.DiscountConfig(ctx)
	if err != nil {
		return nil, s.fail(span, report, "config_error", fmt.Errorf("failed to load discount config: %w", err))
	}

	lines, err := s.composer.PriceCart(discount.CartInput{
		Items:    items,
		Customer: req.Customer,
		Payment:  req.Payment,
		Code:     req.CouponCode,
	}, cfg)
	if err != nil {
		if errors.Is(err, models.ErrInvalidDiscountCode) {
			util.CouponRejectionsTotal.Inc()
		}
		return nil, s.fail(span, report, failureReason(err), err)
	}

	original, final, applied := discount.Aggregate(lines)
	report.Lines = lines
	report.OriginalPrice = original
	report.FinalPrice = final
	report.TotalDiscount = original.Sub(final)
	report.AppliedDiscounts = applied
	report.State = models.CheckoutStateDiscountsComputed
	recordDiscountMetrics(lines)

	if !req.ReserveInventory {
		report.Reservation = inventory.NotRequestedReport(req.Items)
		report.State = models.CheckoutStateComplete
		s.finish(ctx, report)
		s.publishCartPriced(ctx, report)
		return report, nil
	}

	reservation, err := s.reserver.Reserve(ctx, req.Items)
	report.Reservation = reservation
	if err != nil {
		if report.Reservation == nil {
			report.Reservation = &models.ReservationReport{Status: models.ReservationFailed, Reason: err.Error()}
		}
		s.fail(span, report, failureReason(err), err)
		s.save(ctx, report)
		s.publishReservationFailed(ctx, report, err)
		return report, err
	}

	report.State = models.CheckoutStateInventoryReserved
	s.logger.Debug("Checkout state changed",
		zap.String("checkout_id", report.CheckoutID),
		zap.String("state", report.State))

	report.State = models.CheckoutStateComplete
	s.finish(ctx, report)
	s.publishInventoryReserved(ctx, report, req.Items)
	return report, nil
}

func validateRequest(req *CheckoutRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", models.ErrInvalidRequest)
	}
	for i, it := range req.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: line %d has no product id", models.ErrInvalidRequest, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: line %d has quantity %d", models.ErrInvalidRequest, i, it.Quantity)
		}
	}
	if req.Customer.Tier != "" && !req.Customer.Tier.Valid() {
		return fmt.Errorf("%w: unknown customer tier %q", models.ErrInvalidRequest, req.Customer.Tier)
	}
	return nil
}

// loadItems fetches every distinct product in one batch and checks each has a stock record
func (s *CheckoutService) loadItems(ctx context.Context, cart []models.CartItem) ([]discount.PricedItem, error) {
	if s.repoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.repoTimeout)
		defer cancel()
	}

	ids := make([]string, 0, len(cart))
	seen := make(map[string]bool, len(cart))
	for _, it := range cart {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}

	products, err := catalog.LoadProducts(ctx, s.repo, ids)
	if err != nil {
		return nil, repositoryError(strings.Join(ids, ","), err)
	}
	for _, id := range ids {
		if _, err := s.repo.GetInventory(ctx, id); err != nil {
			return nil, repositoryError(id, err)
		}
	}

	items := make([]discount.PricedItem, 0, len(cart))
	for _, it := range cart {
		items = append(items, discount.PricedItem{Product: products[it.ProductID], Quantity: it.Quantity})
	}
	return items, nil
}

func repositoryError(productID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: product %s: %v", models.ErrRepositoryTimeout, productID, err)
	}
	return err
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, models.ErrInvalidDiscountCode):
		return "invalid_discount_code"
	case errors.Is(err, models.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, models.ErrInvalidPriceCalculation):
		return "invalid_price_calculation"
	case errors.Is(err, models.ErrReservationTimeout):
		return "reservation_timeout"
	case errors.Is(err, models.ErrRepositoryTimeout):
		return "repository_timeout"
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid_request"
	}
	return "internal_error"
}

func recordDiscountMetrics(lines []models.LineResult) {
	for _, l := range lines {
		for _, a := range l.Applied {
			util.DiscountsAppliedTotal.WithLabelValues(a.Strategy).Inc()
			if a.Clamped {
				util.DiscountClampsTotal.WithLabelValues(a.Strategy).Inc()
			}
		}
	}
}

func (s *CheckoutService) fail(span trace.Span, report *models.CartDiscountReport, reason string, err error) error {
	report.State = models.CheckoutStateFailed
	util.CheckoutsTotal.WithLabelValues(models.CheckoutStateFailed).Inc()
	util.CheckoutsFailedTotal.WithLabelValues(reason).Inc()
	util.RecordError(span, err)

	s.logger.Warn("Checkout failed",
		zap.String("checkout_id", report.CheckoutID),
		zap.String("customer_id", report.CustomerID),
		zap.String("reason", reason),
		zap.Error(err))
	return err
}

func (s *CheckoutService) finish(ctx context.Context, report *models.CartDiscountReport) {
	util.CheckoutsTotal.WithLabelValues(report.State).Inc()
	s.save(ctx, report)

	s.logger.Info("Checkout completed",
		zap.String("checkout_id", report.CheckoutID),
		zap.String("customer_id", report.CustomerID),
		zap.String("final_price", report.FinalPrice.String()),
		zap.String("total_discount", report.TotalDiscount.String()),
		zap.Strings("applied_discounts", report.AppliedDiscounts),
		zap.String("reservation", report.Reservation.Status))
}

func (s *CheckoutService) save(ctx context.Context, report *models.CartDiscountReport) {
	if s.checkouts == nil {
		return
	}
	if err := s.checkouts.SaveCheckout(ctx, report); err != nil {
		s.logger.Error("Failed to save checkout", zap.String("checkout_id", report.CheckoutID), zap.Error(err))
	}
}
