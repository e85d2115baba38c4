package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"checkout-service/internal/catalog"
	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(stock map[string]int) *catalog.MemoryRepository {
	repo := catalog.NewMemoryRepository()
	for id, qty := range stock {
		repo.Upsert(models.Product{
			ID:               id,
			Brand:            "PUMA",
			Category:         "SHOES",
			BasePrice:        decimal.NewFromInt(100),
			CurrentPrice:     decimal.NewFromInt(100),
			MinPricePossible: decimal.NewFromInt(50),
		}, qty)
	}
	return repo
}

func reserved(t *testing.T, repo Store, id string) int {
	t.Helper()
	inv, err := repo.GetInventory(context.Background(), id)
	require.NoError(t, err)
	return inv.Reserved
}

func TestReserve_AllLinesReserved(t *testing.T) {
	repo := newRepo(map[string]int{"1": 10, "2": 10})
	m := NewManager(repo, time.Second)

	report, err := m.Reserve(context.Background(), []models.CartItem{
		{ProductID: "1", Quantity: 3},
		{ProductID: "2", Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReserved, report.Status)
	require.Len(t, report.Lines, 2)
	for _, l := range report.Lines {
		assert.Equal(t, models.ReservationReserved, l.Status)
	}

	assert.Equal(t, 3, reserved(t, repo, "1"))
	assert.Equal(t, 4, reserved(t, repo, "2"))
}

func TestReserve_AllOrNothing(t *testing.T) {
	repo := newRepo(map[string]int{"1": 10, "2": 2})
	m := NewManager(repo, time.Second)

	report, err := m.Reserve(context.Background(), []models.CartItem{
		{ProductID: "1", Quantity: 3},
		{ProductID: "2", Quantity: 5},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInsufficientInventory)

	var insufficient *models.InsufficientInventoryError
	require.True(t, errors.As(err, &insufficient))
	require.Len(t, insufficient.Shortfalls, 1)
	assert.Equal(t, models.Shortfall{ProductID: "2", Requested: 5, Free: 2}, insufficient.Shortfalls[0])

	require.NotNil(t, report)
	assert.Equal(t, models.ReservationFailed, report.Status)
	assert.Equal(t, "cart reservation aborted", report.Lines[0].Reason)
	assert.Contains(t, report.Lines[1].Reason, "short by 3")

	assert.Equal(t, 0, reserved(t, repo, "1"))
	assert.Equal(t, 0, reserved(t, repo, "2"))
}

func TestReserve_ConsolidatesDuplicateProducts(t *testing.T) {
	repo := newRepo(map[string]int{"1": 5})
	m := NewManager(repo, time.Second)

	// 3 + 3 exceeds the 5 free units even though each line fits alone
	_, err := m.Reserve(context.Background(), []models.CartItem{
		{ProductID: "1", Quantity: 3},
		{ProductID: "1", Quantity: 3},
	})
	require.ErrorIs(t, err, models.ErrInsufficientInventory)
	assert.Equal(t, 0, reserved(t, repo, "1"))

	report, err := m.Reserve(context.Background(), []models.CartItem{
		{ProductID: "1", Quantity: 2},
		{ProductID: "1", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Len(t, report.Lines, 2)
	assert.Equal(t, 5, reserved(t, repo, "1"))
}

func TestReserve_UnknownProduct(t *testing.T) {
	repo := newRepo(map[string]int{"1": 5})
	m := NewManager(repo, time.Second)

	report, err := m.Reserve(context.Background(), []models.CartItem{
		{ProductID: "1", Quantity: 1},
		{ProductID: "404", Quantity: 1},
	})
	require.ErrorIs(t, err, models.ErrProductNotFound)
	assert.Equal(t, models.ReservationFailed, report.Status)
	assert.Equal(t, 0, reserved(t, repo, "1"))
}

func TestReserve_LastUnitRace(t *testing.T) {
	repo := newRepo(map[string]int{"1": 1})
	m := NewManager(repo, time.Second)

	var (
		wg        sync.WaitGroup
		succeeded int32
		rejected  int32
		start     = make(chan struct{})
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Reserve(context.Background(), []models.CartItem{{ProductID: "1", Quantity: 1}})
			switch {
			case err == nil:
				atomic.AddInt32(&succeeded, 1)
			case errors.Is(err, models.ErrInsufficientInventory):
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded)
	assert.Equal(t, int32(1), rejected)
	assert.Equal(t, 1, reserved(t, repo, "1"))
}

func TestReserve_ConcurrentCartsNeverOversell(t *testing.T) {
	repo := newRepo(map[string]int{"1": 20, "2": 20})
	m := NewManager(repo, 2*time.Second)

	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		// alternate line order so the lock ordering is exercised
		items := []models.CartItem{{ProductID: "1", Quantity: 1}, {ProductID: "2", Quantity: 1}}
		if i%2 == 1 {
			items[0], items[1] = items[1], items[0]
		}
		go func() {
			defer wg.Done()
			if _, err := m.Reserve(context.Background(), items); err == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(20), succeeded)
	assert.Equal(t, 20, reserved(t, repo, "1"))
	assert.Equal(t, 20, reserved(t, repo, "2"))
}

func TestReserve_LockTimeout(t *testing.T) {
	repo := newRepo(map[string]int{"1": 5})
	m := NewManager(repo, 20*time.Millisecond)

	unlock, err := m.locks.acquire(context.Background(), []string{"1"}, time.Second)
	require.NoError(t, err)
	defer unlock()

	report, err := m.Reserve(context.Background(), []models.CartItem{{ProductID: "1", Quantity: 1}})
	require.ErrorIs(t, err, models.ErrReservationTimeout)
	assert.True(t, models.IsRetryable(err))
	assert.Equal(t, models.ReservationFailed, report.Status)
	assert.Equal(t, 0, reserved(t, repo, "1"))
}

func TestLockTable_ReleasesPartialAcquisition(t *testing.T) {
	locks := newLockTable()

	unlockB, err := locks.acquire(context.Background(), []string{"b"}, time.Second)
	require.NoError(t, err)

	_, err = locks.acquire(context.Background(), []string{"a", "b"}, 10*time.Millisecond)
	require.ErrorIs(t, err, models.ErrReservationTimeout)

	// "a" must be free again after the failed attempt
	unlockA, err := locks.acquire(context.Background(), []string{"a"}, 10*time.Millisecond)
	require.NoError(t, err)
	unlockA()
	unlockB()
}

func TestRelease(t *testing.T) {
	repo := newRepo(map[string]int{"1": 10})
	m := NewManager(repo, time.Second)
	ctx := context.Background()

	items := []models.CartItem{{ProductID: "1", Quantity: 4}}
	_, err := m.Reserve(ctx, items)
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, items))
	assert.Equal(t, 0, reserved(t, repo, "1"))

	// unknown products are skipped, reserved never goes negative
	require.NoError(t, m.Release(ctx, []models.CartItem{{ProductID: "1", Quantity: 2}, {ProductID: "404", Quantity: 1}}))
	assert.Equal(t, 0, reserved(t, repo, "1"))
}

// flakyStore fails the increment of one product after validation succeeded
type flakyStore struct {
	*catalog.MemoryRepository
	failOn string
}

func (f *flakyStore) IncrementReserved(ctx context.Context, productID string, quantity int) error {
	if productID == f.failOn {
		return errors.New("connection reset")
	}
	return f.MemoryRepository.IncrementReserved(ctx, productID, quantity)
}

func TestReserve_CompensatesPartialCommit(t *testing.T) {
	store := &flakyStore{MemoryRepository: newRepo(map[string]int{"1": 5, "2": 5}), failOn: "2"}
	m := NewManager(store, time.Second)

	report, err := m.Reserve(context.Background(), []models.CartItem{
		{ProductID: "1", Quantity: 2},
		{ProductID: "2", Quantity: 2},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, models.ReservationFailed, report.Status)
	assert.Equal(t, 0, reserved(t, store, "1"))
}

func TestNotRequestedReport(t *testing.T) {
	report := NotRequestedReport([]models.CartItem{{ProductID: "1", Quantity: 1}})
	assert.Equal(t, models.ReservationNotRequested, report.Status)
	assert.Equal(t, models.ReservationNotRequested, report.Lines[0].Status)
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(redisclient.Wrap(rdb))
}

func TestRedisStore_SyncAndReserve(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	require.NoError(t, s.SyncFrom(ctx, newRepo(map[string]int{"1": 3, "2": 1})))

	m := NewManager(s, time.Second)

	_, err := m.Reserve(ctx, []models.CartItem{{ProductID: "1", Quantity: 2}, {ProductID: "2", Quantity: 2}})
	require.ErrorIs(t, err, models.ErrInsufficientInventory)
	assert.Equal(t, 0, reserved(t, s, "1"))

	_, err = m.Reserve(ctx, []models.CartItem{{ProductID: "1", Quantity: 2}, {ProductID: "2", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, reserved(t, s, "1"))
	assert.Equal(t, 1, reserved(t, s, "2"))

	require.NoError(t, m.Release(ctx, []models.CartItem{{ProductID: "2", Quantity: 1}}))
	assert.Equal(t, 0, reserved(t, s, "2"))
}

func TestRedisStore_CommitDetectsForeignReservation(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	require.NoError(t, s.SyncFrom(ctx, newRepo(map[string]int{"1": 2})))

	// another instance takes the stock directly in Redis, bypassing this manager's locks
	require.NoError(t, s.IncrementReserved(ctx, "1", 2))

	shortfalls, err := s.ReserveAll(ctx, []Line{{ProductID: "1", Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, shortfalls, 1)
	assert.Equal(t, 0, shortfalls[0].Free)
}
