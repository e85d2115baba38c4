package inventory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"checkout-service/internal/models"
)

// lockTable hands out one mutex per product id. Locks are created lazily and never removed.
// A buffered channel is used instead of sync.Mutex so that waiting can be abandoned.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]chan struct{})}
}

func (t *lockTable) lockFor(productID string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[productID]
	if !ok {
		l = make(chan struct{}, 1)
		t.locks[productID] = l
	}
	return l
}

// acquire locks every id in the given order; callers pass ids sorted so that two carts with
// overlapping products cannot deadlock. On timeout every lock taken so far is released.
func (t *lockTable) acquire(ctx context.Context, productIDs []string, timeout time.Duration) (func(), error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	held := make([]chan struct{}, 0, len(productIDs))
	unlock := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range productIDs {
		l := t.lockFor(id)
		select {
		case l <- struct{}{}:
			held = append(held, l)
		case <-ctx.Done():
			unlock()
			return nil, fmt.Errorf("%w: product %s: %v", models.ErrReservationTimeout, id, ctx.Err())
		}
	}
	return unlock, nil
}
