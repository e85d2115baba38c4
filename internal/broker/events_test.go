package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishInventoryReserved_KeyedByCheckout(t *testing.T) {
	w := &recordingWriter{}
	ep := NewEventPublisher(NewProducerWithWriter(w))

	event := &models.InventoryReservedEvent{
		BaseEvent:  NewBaseEvent(models.EventTypeInventoryReserved),
		CheckoutID: "chk-1",
		CustomerID: "cust-1",
		FinalPrice: decimal.RequireFromString("855"),
		Items:      []models.CartItem{{ProductID: "1", Quantity: 1}},
	}
	require.NoError(t, ep.PublishInventoryReserved(context.Background(), event))

	require.Len(t, w.messages, 1)
	assert.Equal(t, "checkout-chk-1", string(w.messages[0].Key))

	var decoded models.InventoryReservedEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, models.EventTypeInventoryReserved, decoded.EventType)
	assert.NotEmpty(t, decoded.EventID)
	assert.True(t, decoded.FinalPrice.Equal(event.FinalPrice))
}

func TestPublishEvent_WriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	ep := NewEventPublisher(NewProducerWithWriter(w))

	err := ep.PublishCartPriced(context.Background(), &models.CartPricedEvent{
		BaseEvent:  NewBaseEvent(models.EventTypeCartPriced),
		CheckoutID: "chk-2",
	})
	assert.ErrorContains(t, err, "broker down")
}

func TestHandleMessage_RoutesReleaseRequests(t *testing.T) {
	w := &recordingWriter{}
	ep := NewEventPublisher(NewProducerWithWriter(w))
	require.NoError(t, ep.PublishReleaseRequested(context.Background(), &models.ReservationReleaseRequestedEvent{
		BaseEvent:  NewBaseEvent(models.EventTypeReservationReleaseRequested),
		CheckoutID: "chk-3",
		Items:      []models.CartItem{{ProductID: "2", Quantity: 3}},
	}))

	var got *models.ReservationReleaseRequestedEvent
	eh := NewEventHandler()
	eh.OnReleaseRequested(func(ctx context.Context, e *models.ReservationReleaseRequestedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, eh.HandleMessage(context.Background(), w.messages[0]))
	require.NotNil(t, got)
	assert.Equal(t, "chk-3", got.CheckoutID)
	assert.Equal(t, []models.CartItem{{ProductID: "2", Quantity: 3}}, got.Items)
}

func TestHandleMessage_IgnoresOtherEvents(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnReleaseRequested(func(ctx context.Context, e *models.ReservationReleaseRequestedEvent) error {
		called = true
		return nil
	})

	value, err := json.Marshal(models.CartPricedEvent{BaseEvent: NewBaseEvent(models.EventTypeCartPriced)})
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.False(t, called)

	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
}

func TestHandleMessage_PropagatesHandlerError(t *testing.T) {
	eh := NewEventHandler()
	eh.OnReleaseRequested(func(ctx context.Context, e *models.ReservationReleaseRequestedEvent) error {
		return errors.New("store unavailable")
	})

	value, err := json.Marshal(models.ReservationReleaseRequestedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeReservationReleaseRequested),
	})
	require.NoError(t, err)
	assert.ErrorContains(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}), "store unavailable")
}
