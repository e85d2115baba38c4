package service

import (
	"context"
	"fmt"
	"sync"

	"checkout-service/internal/models"
)

// MemoryCheckoutStore keeps checkout reports in process memory
type MemoryCheckoutStore struct {
	mu      sync.RWMutex
	reports map[string]models.CartDiscountReport
}

// NewMemoryCheckoutStore creates an empty store
func NewMemoryCheckoutStore() *MemoryCheckoutStore {
	return &MemoryCheckoutStore{reports: make(map[string]models.CartDiscountReport)}
}

// clone detaches the mutable reservation from the caller's report
func clone(r models.CartDiscountReport) models.CartDiscountReport {
	if r.Reservation != nil {
		res := *r.Reservation
		res.Lines = append([]models.LineReservation(nil), r.Reservation.Lines...)
		r.Reservation = &res
	}
	return r
}

func (m *MemoryCheckoutStore) SaveCheckout(ctx context.Context, report *models.CartDiscountReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.CheckoutID] = clone(*report)
	return nil
}

func (m *MemoryCheckoutStore) GetCheckout(ctx context.Context, id string) (*models.CartDiscountReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrCheckoutNotFound, id)
	}
	r = clone(r)
	return &r, nil
}

// TransitionReservation moves the reservation status from one value to another under the store lock
func (m *MemoryCheckoutStore) TransitionReservation(ctx context.Context, id, from, to string) (*models.CartDiscountReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrCheckoutNotFound, id)
	}
	if r.Reservation == nil || r.Reservation.Status != from {
		return nil, reservationStateError(id, r.Reservation)
	}

	r = clone(r)
	r.Reservation.Status = to
	m.reports[id] = r

	out := clone(r)
	return &out, nil
}

func reservationStateError(id string, r *models.ReservationReport) error {
	status := "missing"
	if r != nil {
		status = r.Status
	}
	return fmt.Errorf("%w: checkout %s reservation is %s", models.ErrInvalidRequest, id, status)
}
