package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the sqlx-backed Postgres repository
type Store struct {
	db *sqlx.DB
}

// StockLine is one product quantity reserved or released in a transaction
type StockLine struct {
	ProductID string
	Quantity  int
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const productColumns = "id, brand, brand_tier, category, base_price, current_price, min_price_possible"

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT "+productColumns+" FROM products ORDER BY id")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs; unknown ids are left out
func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// GetInventory retrieves inventory for a product
func (s *Store) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	var inv models.Inventory
	err := s.db.GetContext(ctx, &inv,
		"SELECT product_id, available, reserved, updated_at FROM inventory WHERE product_id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: inventory for %s", models.ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInventory retrieves every inventory row
func (s *Store) ListInventory(ctx context.Context) ([]models.Inventory, error) {
	var records []models.Inventory
	err := s.db.SelectContext(ctx, &records,
		"SELECT product_id, available, reserved, updated_at FROM inventory ORDER BY product_id")
	return records, err
}

// ReserveAllTx locks every inventory row of the cart (FOR UPDATE, in product id order),
// checks all of them and only then raises the reserved counts. Nothing is written when
// any line falls short; the shortfalls are returned instead.
func (s *Store) ReserveAllTx(ctx context.Context, lines []StockLine) ([]models.Shortfall, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	query, args, err := sqlx.In(
		"SELECT product_id, available, reserved, updated_at FROM inventory WHERE product_id IN (?) ORDER BY product_id FOR UPDATE", ids)
	if err != nil {
		return nil, err
	}

	var rows []models.Inventory
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to lock inventory: %w", err)
	}
	byID := make(map[string]models.Inventory, len(rows))
	for _, r := range rows {
		byID[r.ProductID] = r
	}

	var shortfalls []models.Shortfall
	for _, l := range lines {
		inv, ok := byID[l.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: inventory for %s", models.ErrProductNotFound, l.ProductID)
		}
		if inv.Free() < l.Quantity {
			shortfalls = append(shortfalls, models.Shortfall{
				ProductID: l.ProductID,
				Requested: l.Quantity,
				Free:      inv.Free(),
			})
		}
	}
	if len(shortfalls) > 0 {
		return shortfalls, nil
	}

	for _, l := range lines {
		_, err = tx.ExecContext(ctx,
			"UPDATE inventory SET reserved = reserved + $1, updated_at = NOW() WHERE product_id = $2",
			l.Quantity, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve stock: %w", err)
		}
	}

	return nil, tx.Commit()
}

// ReleaseAllTx gives reserved stock back, never below zero
func (s *Store) ReleaseAllTx(ctx context.Context, lines []StockLine) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, l := range lines {
		_, err = tx.ExecContext(ctx,
			"UPDATE inventory SET reserved = GREATEST(reserved - $1, 0), updated_at = NOW() WHERE product_id = $2",
			l.Quantity, l.ProductID)
		if err != nil {
			return fmt.Errorf("failed to release stock: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateInventory updates inventory counts
func (s *Store) UpdateInventory(ctx context.Context, productID string, available, reserved int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE inventory SET available = $1, reserved = $2, updated_at = NOW() WHERE product_id = $3",
		available, reserved, productID)
	return err
}
