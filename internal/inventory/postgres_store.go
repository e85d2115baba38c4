package inventory

import (
	"context"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
)

// PostgresStore reserves stock with row locks inside one transaction per cart
type PostgresStore struct {
	db *store.Store
}

// NewPostgresStore creates a Postgres-backed inventory store
func NewPostgresStore(db *store.Store) *PostgresStore {
	return &PostgresStore{db: db}
}

func toStoreLines(lines []Line) []store.StockLine {
	out := make([]store.StockLine, len(lines))
	for i, l := range lines {
		out[i] = store.StockLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

func (s *PostgresStore) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	return s.db.GetInventory(ctx, productID)
}

func (s *PostgresStore) IncrementReserved(ctx context.Context, productID string, quantity int) error {
	shortfalls, err := s.db.ReserveAllTx(ctx, []store.StockLine{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return err
	}
	if len(shortfalls) > 0 {
		return &models.InsufficientInventoryError{Shortfalls: shortfalls}
	}
	return nil
}

func (s *PostgresStore) ReleaseReserved(ctx context.Context, productID string, quantity int) error {
	return s.db.ReleaseAllTx(ctx, []store.StockLine{{ProductID: productID, Quantity: quantity}})
}

func (s *PostgresStore) ReserveAll(ctx context.Context, lines []Line) ([]models.Shortfall, error) {
	return s.db.ReserveAllTx(ctx, toStoreLines(lines))
}

func (s *PostgresStore) ReleaseAll(ctx context.Context, lines []Line) error {
	return s.db.ReleaseAllTx(ctx, toStoreLines(lines))
}
