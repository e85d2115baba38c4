package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCartPriced                  = "CART_PRICED"
	EventTypeInventoryReserved           = "INVENTORY_RESERVED"
	EventTypeReservationFailed           = "RESERVATION_FAILED"
	EventTypeReservationReleaseRequested = "RESERVATION_RELEASE_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartPricedEvent published when a checkout completes without reservation
type CartPricedEvent struct {
	BaseEvent
	CheckoutID       string          `json:"checkout_id"`
	CustomerID       string          `json:"customer_id"`
	FinalPrice       decimal.Decimal `json:"final_price"`
	AppliedDiscounts []string        `json:"applied_discounts"`
}

// InventoryReservedEvent published when a checkout reserved its stock
type InventoryReservedEvent struct {
	BaseEvent
	CheckoutID string          `json:"checkout_id"`
	CustomerID string          `json:"customer_id"`
	FinalPrice decimal.Decimal `json:"final_price"`
	Items      []CartItem      `json:"items"`
}

// ReservationFailedEvent published when a reservation was rejected
type ReservationFailedEvent struct {
	BaseEvent
	CheckoutID string      `json:"checkout_id"`
	CustomerID string      `json:"customer_id"`
	Reason     string      `json:"reason"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

// ReservationReleaseRequestedEvent asks the service to give reserved stock back
type ReservationReleaseRequestedEvent struct {
	BaseEvent
	CheckoutID string     `json:"checkout_id"`
	Items      []CartItem `json:"items"`
}
