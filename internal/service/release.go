package service

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ReleaseRequest names the checkout whose reservation is given back
type ReleaseRequest struct {
	CheckoutID string `json:"checkout_id" binding:"required"`
}

// ReleaseReservation gives a checkout's reservation back, exactly once. The stored reservation is
// moved from RESERVED to RELEASED before any stock changes; a second call fails with
// ErrInvalidRequest. With a publisher configured the release is queued as an event and handled by
// the release worker; queued reports which path was taken.
func (s *CheckoutService) ReleaseReservation(ctx context.Context, req *ReleaseRequest) (queued bool, err error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ReleaseReservation",
		attribute.String("checkout.id", req.CheckoutID))
	defer span.End()

	if req.CheckoutID == "" {
		err := fmt.Errorf("%w: checkout id required", models.ErrInvalidRequest)
		util.RecordError(span, err)
		return false, err
	}
	if s.checkouts == nil {
		return false, fmt.Errorf("%w: %s", models.ErrCheckoutNotFound, req.CheckoutID)
	}

	report, err := s.checkouts.TransitionReservation(ctx, req.CheckoutID,
		models.ReservationReserved, models.ReservationReleased)
	if err != nil {
		util.RecordError(span, err)
		return false, err
	}
	items := reservedItems(report.Reservation)

	if s.publisher != nil {
		event := &models.ReservationReleaseRequestedEvent{
			BaseEvent:  broker.NewBaseEvent(models.EventTypeReservationReleaseRequested),
			CheckoutID: req.CheckoutID,
			Items:      items,
		}
		if err := s.publisher.PublishReleaseRequested(ctx, event); err != nil {
			err = fmt.Errorf("failed to queue release: %w", err)
			s.restoreReservation(ctx, span, req.CheckoutID, err)
			return false, err
		}
		s.logger.Info("Release queued", zap.String("checkout_id", req.CheckoutID), zap.String("event_id", event.EventID))
		return true, nil
	}

	if err := s.reserver.Release(ctx, items); err != nil {
		s.restoreReservation(ctx, span, req.CheckoutID, err)
		return false, err
	}
	s.logger.Info("Reservation released", zap.String("checkout_id", req.CheckoutID))
	return false, nil
}

// restoreReservation undoes the RELEASED mark when the stock could not be given back
func (s *CheckoutService) restoreReservation(ctx context.Context, span trace.Span, checkoutID string, cause error) {
	util.RecordError(span, cause)
	if _, err := s.checkouts.TransitionReservation(ctx, checkoutID,
		models.ReservationReleased, models.ReservationReserved); err != nil {
		s.logger.Error("Failed to restore reservation state", zap.String("checkout_id", checkoutID), zap.Error(err))
	}
}

func reservedItems(r *models.ReservationReport) []models.CartItem {
	items := make([]models.CartItem, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, models.CartItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}

// GetCheckout returns a stored checkout report
func (s *CheckoutService) GetCheckout(ctx context.Context, id string) (*models.CartDiscountReport, error) {
	if s.checkouts == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrCheckoutNotFound, id)
	}
	return s.checkouts.GetCheckout(ctx, id)
}

func asInsufficient(err error) *models.InsufficientInventoryError {
	var insufficient *models.InsufficientInventoryError
	if errors.As(err, &insufficient) {
		return insufficient
	}
	return nil
}
