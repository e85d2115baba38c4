package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing checkout events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func (ep *EventPublisher) publish(ctx context.Context, checkoutID, eventType string, event interface{}) error {
	key := fmt.Sprintf("checkout-%s", checkoutID)
	err := ep.producer.PublishEvent(ctx, key, event)
	result := "ok"
	if err != nil {
		result = "error"
	}
	util.EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
	return err
}

// PublishCartPriced publishes CartPriced event
func (ep *EventPublisher) PublishCartPriced(ctx context.Context, event *models.CartPricedEvent) error {
	return ep.publish(ctx, event.CheckoutID, event.EventType, event)
}

// PublishInventoryReserved publishes InventoryReserved event
func (ep *EventPublisher) PublishInventoryReserved(ctx context.Context, event *models.InventoryReservedEvent) error {
	return ep.publish(ctx, event.CheckoutID, event.EventType, event)
}

// PublishReservationFailed publishes ReservationFailed event
func (ep *EventPublisher) PublishReservationFailed(ctx context.Context, event *models.ReservationFailedEvent) error {
	return ep.publish(ctx, event.CheckoutID, event.EventType, event)
}

// PublishReleaseRequested publishes ReservationReleaseRequested event
func (ep *EventPublisher) PublishReleaseRequested(ctx context.Context, event *models.ReservationReleaseRequestedEvent) error {
	return ep.publish(ctx, event.CheckoutID, event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onReleaseRequested func(context.Context, *models.ReservationReleaseRequestedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnReleaseRequested registers a handler for ReservationReleaseRequested events
func (eh *EventHandler) OnReleaseRequested(handler func(context.Context, *models.ReservationReleaseRequestedEvent) error) {
	eh.onReleaseRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeReservationReleaseRequested:
		if eh.onReleaseRequested != nil {
			var event models.ReservationReleaseRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReservationReleaseRequested event: %w", err)
			}
			return eh.onReleaseRequested(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
