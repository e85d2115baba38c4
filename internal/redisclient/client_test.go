package redisclient

import (
	"context"
	"testing"

	"checkout-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestReserveAll_CommitsEveryLine(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, "1", 10, 2))
	require.NoError(t, c.InitInventory(ctx, "2", 5, 0))

	shortfalls, err := c.ReserveAll(ctx, []StockLine{{ProductID: "1", Quantity: 8}, {ProductID: "2", Quantity: 5}})
	require.NoError(t, err)
	assert.Empty(t, shortfalls)

	inv, err := c.GetInventory(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 10, inv.Reserved)
	inv, err = c.GetInventory(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 5, inv.Reserved)
}

func TestReserveAll_NothingChangesOnShortfall(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, "1", 10, 0))
	require.NoError(t, c.InitInventory(ctx, "2", 3, 1))
	require.NoError(t, c.InitInventory(ctx, "3", 1, 1))

	shortfalls, err := c.ReserveAll(ctx, []StockLine{
		{ProductID: "1", Quantity: 4},
		{ProductID: "2", Quantity: 3},
		{ProductID: "3", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.Shortfall{
		{ProductID: "2", Requested: 3, Free: 2},
		{ProductID: "3", Requested: 1, Free: 0},
	}, shortfalls)

	inv, err := c.GetInventory(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Reserved)
	inv, _ = c.GetInventory(ctx, "2")
	assert.Equal(t, 1, inv.Reserved)
}

func TestReserveAll_UnknownProduct(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.ReserveAll(context.Background(), []StockLine{{ProductID: "404", Quantity: 1}})
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}

func TestReleaseAll_FloorsAtZero(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, "1", 10, 4))

	require.NoError(t, c.ReleaseAll(ctx, []StockLine{{ProductID: "1", Quantity: 3}}))
	inv, _ := c.GetInventory(ctx, "1")
	assert.Equal(t, 1, inv.Reserved)

	require.NoError(t, c.ReleaseReserved(ctx, "1", 5))
	inv, _ = c.GetInventory(ctx, "1")
	assert.Equal(t, 0, inv.Reserved)
	assert.Equal(t, 10, inv.Available)
}

func TestIncrementReserved_Insufficient(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InitInventory(ctx, "7", 1, 0))

	require.NoError(t, c.IncrementReserved(ctx, "7", 1))
	err := c.IncrementReserved(ctx, "7", 1)
	assert.ErrorIs(t, err, models.ErrInsufficientInventory)
}

func TestGetInventory_Missing(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetInventory(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}
