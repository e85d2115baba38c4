package worker

import (
	"context"
	"fmt"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Releaser gives reserved stock back
type Releaser interface {
	Release(ctx context.Context, items []models.CartItem) error
}

// ProcessedEvents remembers consumed event ids so redelivered messages are not applied twice
type ProcessedEvents interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ReleaseWorker consumes reservation release requests
type ReleaseWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	releaser     Releaser
	processed    ProcessedEvents
	logger       *zap.Logger
}

// NewReleaseWorker creates a new release worker; processed may be nil.
func NewReleaseWorker(consumer *broker.Consumer, releaser Releaser, processed ProcessedEvents) *ReleaseWorker {
	w := &ReleaseWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		releaser:     releaser,
		processed:    processed,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnReleaseRequested(w.HandleReleaseRequested)
	return w
}

// HandleReleaseRequested releases the stock of one checkout
func (w *ReleaseWorker) HandleReleaseRequested(ctx context.Context, event *models.ReservationReleaseRequestedEvent) error {
	ctx, span := util.StartSpan(ctx, "ReleaseWorker.HandleReleaseRequested")
	defer span.End()

	if w.processed != nil {
		done, err := w.processed.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check processed events: %w", err)
		}
		if done {
			w.logger.Info("Skipping duplicate release request",
				zap.String("event_id", event.EventID),
				zap.String("checkout_id", event.CheckoutID))
			util.ReleaseRequestsProcessedTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	if err := w.releaser.Release(ctx, event.Items); err != nil {
		util.RecordError(span, err)
		util.ReleaseRequestsProcessedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to release checkout %s: %w", event.CheckoutID, err)
	}

	if w.processed != nil {
		if err := w.processed.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			w.logger.Error("Failed to mark event processed", zap.String("event_id", event.EventID), zap.Error(err))
		}
	}

	util.ReleaseRequestsProcessedTotal.WithLabelValues("released").Inc()
	w.logger.Info("Reservation released", zap.String("checkout_id", event.CheckoutID))
	return nil
}

// Start starts the worker
func (w *ReleaseWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting release worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReleaseWorker) Stop() error {
	w.logger.Info("Stopping release worker")
	return w.consumer.Close()
}
