package service

import (
	"context"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"

	"go.uber.org/zap"
)

// Event publishing never fails a checkout; errors are only logged.

func (s *CheckoutService) publishCartPriced(ctx context.Context, report *models.CartDiscountReport) {
	if s.publisher == nil {
		return
	}
	event := &models.CartPricedEvent{
		BaseEvent:        broker.NewBaseEvent(models.EventTypeCartPriced),
		CheckoutID:       report.CheckoutID,
		CustomerID:       report.CustomerID,
		FinalPrice:       report.FinalPrice,
		AppliedDiscounts: report.AppliedDiscounts,
	}
	if err := s.publisher.PublishCartPriced(ctx, event); err != nil {
		s.logger.Error("Failed to publish CartPriced event", zap.String("checkout_id", report.CheckoutID), zap.Error(err))
	}
}

func (s *CheckoutService) publishInventoryReserved(ctx context.Context, report *models.CartDiscountReport, items []models.CartItem) {
	if s.publisher == nil {
		return
	}
	event := &models.InventoryReservedEvent{
		BaseEvent:  broker.NewBaseEvent(models.EventTypeInventoryReserved),
		CheckoutID: report.CheckoutID,
		CustomerID: report.CustomerID,
		FinalPrice: report.FinalPrice,
		Items:      items,
	}
	if err := s.publisher.PublishInventoryReserved(ctx, event); err != nil {
		s.logger.Error("Failed to publish InventoryReserved event", zap.String("checkout_id", report.CheckoutID), zap.Error(err))
	}
}

func (s *CheckoutService) publishReservationFailed(ctx context.Context, report *models.CartDiscountReport, cause error) {
	if s.publisher == nil {
		return
	}
	event := &models.ReservationFailedEvent{
		BaseEvent:  broker.NewBaseEvent(models.EventTypeReservationFailed),
		CheckoutID: report.CheckoutID,
		CustomerID: report.CustomerID,
		Reason:     cause.Error(),
	}
	if insufficient := asInsufficient(cause); insufficient != nil {
		event.Shortfalls = insufficient.Shortfalls
	}
	if err := s.publisher.PublishReservationFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReservationFailed event", zap.String("checkout_id", report.CheckoutID), zap.Error(err))
	}
}
