package inventory

import (
	"context"
	"fmt"

	"checkout-service/internal/models"
	"checkout-service/internal/redisclient"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// RedisStore keeps the live counters in Redis hashes, shared by every service instance
type RedisStore struct {
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed inventory store
func NewRedisStore(redis *redisclient.Client) *RedisStore {
	return &RedisStore{
		redis:  redis,
		logger: util.GetLogger(),
	}
}

func toStockLines(lines []Line) []redisclient.StockLine {
	out := make([]redisclient.StockLine, len(lines))
	for i, l := range lines {
		out[i] = redisclient.StockLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

func (s *RedisStore) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	return s.redis.GetInventory(ctx, productID)
}

func (s *RedisStore) IncrementReserved(ctx context.Context, productID string, quantity int) error {
	return s.redis.IncrementReserved(ctx, productID, quantity)
}

func (s *RedisStore) ReleaseReserved(ctx context.Context, productID string, quantity int) error {
	return s.redis.ReleaseReserved(ctx, productID, quantity)
}

func (s *RedisStore) ReserveAll(ctx context.Context, lines []Line) ([]models.Shortfall, error) {
	return s.redis.ReserveAll(ctx, toStockLines(lines))
}

func (s *RedisStore) ReleaseAll(ctx context.Context, lines []Line) error {
	return s.redis.ReleaseAll(ctx, toStockLines(lines))
}

// SyncSource lists the authoritative stock records
type SyncSource interface {
	ListInventory(ctx context.Context) ([]models.Inventory, error)
}

// SyncFrom copies the authoritative inventory into Redis
func (s *RedisStore) SyncFrom(ctx context.Context, src SyncSource) error {
	s.logger.Info("Starting inventory sync to Redis")

	records, err := src.ListInventory(ctx)
	if err != nil {
		return fmt.Errorf("failed to list inventory: %w", err)
	}

	synced := 0
	for _, inv := range records {
		if err := s.redis.InitInventory(ctx, inv.ProductID, inv.Available, inv.Reserved); err != nil {
			s.logger.Error("Failed to init Redis inventory",
				zap.String("product_id", inv.ProductID),
				zap.Error(err))
			continue
		}
		synced++
	}

	s.logger.Info("Inventory sync completed", zap.Int("count", synced))
	return nil
}
