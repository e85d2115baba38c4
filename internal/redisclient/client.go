package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"checkout-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

// Client wraps a Redis connection with the stock reservation scripts
type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// StockLine is one product quantity passed to the Lua scripts
type StockLine struct {
	ProductID string
	Quantity  int
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
	}
}

// Ping checks the connection for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func inventoryKey(productID string) string {
	return fmt.Sprintf("inventory:%s", productID)
}

func scriptArgs(lines []StockLine) ([]string, []interface{}) {
	keys := make([]string, len(lines))
	args := make([]interface{}, len(lines))
	for i, l := range lines {
		keys[i] = inventoryKey(l.ProductID)
		args[i] = l.Quantity
	}
	return keys, args
}

// ReserveAll atomically checks every line and, only if all fit, reserves them all.
// Returns the shortfalls when nothing was reserved.
func (c *Client) ReserveAll(ctx context.Context, lines []StockLine) ([]models.Shortfall, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	keys, args := scriptArgs(lines)

	result, err := c.reserveScript.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve stock script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values)%2 != 0 {
		return nil, fmt.Errorf("unexpected script result type")
	}

	var shortfalls []models.Shortfall
	for i := 0; i < len(values); i += 2 {
		idx, ok1 := values[i].(int64)
		free, ok2 := values[i+1].(int64)
		if !ok1 || !ok2 || idx < 1 || int(idx) > len(lines) {
			return nil, fmt.Errorf("unexpected script result type")
		}
		line := lines[idx-1]
		if free < 0 {
			return nil, fmt.Errorf("%w: inventory for %s", models.ErrProductNotFound, line.ProductID)
		}
		shortfalls = append(shortfalls, models.Shortfall{
			ProductID: line.ProductID,
			Requested: line.Quantity,
			Free:      int(free),
		})
	}
	return shortfalls, nil
}

// ReleaseAll atomically gives reserved stock back
func (c *Client) ReleaseAll(ctx context.Context, lines []StockLine) error {
	if len(lines) == 0 {
		return nil
	}
	keys, args := scriptArgs(lines)

	if _, err := c.releaseScript.Run(ctx, c.rdb, keys, args...).Result(); err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// InitInventory initializes inventory count in Redis
func (c *Client) InitInventory(ctx context.Context, productID string, available, reserved int) error {
	key := inventoryKey(productID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "available", available)
	pipe.HSet(ctx, key, "reserved", reserved)

	_, err := pipe.Exec(ctx)
	return err
}

// GetInventory retrieves current inventory counts
func (c *Client) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	result, err := c.rdb.HGetAll(ctx, inventoryKey(productID)).Result()
	if err != nil {
		return nil, err
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("%w: inventory for %s", models.ErrProductNotFound, productID)
	}

	available, err := strconv.Atoi(result["available"])
	if err != nil {
		return nil, fmt.Errorf("bad available count for %s: %w", productID, err)
	}
	reserved, err := strconv.Atoi(result["reserved"])
	if err != nil {
		return nil, fmt.Errorf("bad reserved count for %s: %w", productID, err)
	}

	return &models.Inventory{
		ProductID: productID,
		Available: available,
		Reserved:  reserved,
	}, nil
}

// IncrementReserved reserves a single line through the same atomic script
func (c *Client) IncrementReserved(ctx context.Context, productID string, quantity int) error {
	shortfalls, err := c.ReserveAll(ctx, []StockLine{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return err
	}
	if len(shortfalls) > 0 {
		return &models.InsufficientInventoryError{Shortfalls: shortfalls}
	}
	return nil
}

// ReleaseReserved releases a single line
func (c *Client) ReleaseReserved(ctx context.Context, productID string, quantity int) error {
	return c.ReleaseAll(ctx, []StockLine{{ProductID: productID, Quantity: quantity}})
}
