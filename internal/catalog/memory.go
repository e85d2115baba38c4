package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryRepository keeps products and inventory in process memory.
// It also acts as an inventory store for the reservation manager.
type MemoryRepository struct {
	mu        sync.RWMutex
	products  map[string]models.Product
	inventory map[string]models.Inventory
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products:  make(map[string]models.Product),
		inventory: make(map[string]models.Inventory),
	}
}

// Upsert stores a product together with its available quantity; reserved stock is kept.
func (r *MemoryRepository) Upsert(p models.Product, available int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[p.ID] = p
	inv := r.inventory[p.ID]
	inv.ProductID = p.ID
	inv.Available = available
	inv.UpdatedAt = time.Now()
	r.inventory[p.ID] = inv
}

// GetProduct returns a copy of the product
func (r *MemoryRepository) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, id)
	}
	return &p, nil
}

// GetInventory returns a copy of the inventory record
func (r *MemoryRepository) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.inventory[productID]
	if !ok {
		return nil, fmt.Errorf("%w: inventory for %s", models.ErrProductNotFound, productID)
	}
	return &inv, nil
}

// GetProductsByIDs returns copies of the known products; unknown ids are skipped
func (r *MemoryRepository) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// ListProducts returns every product ordered by id
func (r *MemoryRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// ListInventory returns every inventory record, in no particular order
func (r *MemoryRepository) ListInventory(ctx context.Context) ([]models.Inventory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]models.Inventory, 0, len(r.inventory))
	for _, inv := range r.inventory {
		records = append(records, inv)
	}
	return records, nil
}

// IncrementReserved adds quantity to the reserved count
func (r *MemoryRepository) IncrementReserved(ctx context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.inventory[productID]
	if !ok {
		return fmt.Errorf("%w: inventory for %s", models.ErrProductNotFound, productID)
	}
	if inv.Reserved+quantity > inv.Available {
		return fmt.Errorf("%w: product %s", models.ErrInsufficientInventory, productID)
	}
	inv.Reserved += quantity
	inv.UpdatedAt = time.Now()
	r.inventory[productID] = inv
	return nil
}

// ReleaseReserved gives reserved stock back, never below zero
func (r *MemoryRepository) ReleaseReserved(ctx context.Context, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.inventory[productID]
	if !ok {
		return fmt.Errorf("%w: inventory for %s", models.ErrProductNotFound, productID)
	}
	inv.Reserved -= quantity
	if inv.Reserved < 0 {
		inv.Reserved = 0
	}
	inv.UpdatedAt = time.Now()
	r.inventory[productID] = inv
	return nil
}

// SampleRepository returns a repository with the demo catalog
func SampleRepository() *MemoryRepository {
	r := NewMemoryRepository()
	for _, s := range []struct {
		id, brand, floor string
	}{
		{"1", "PUMA", "800"},
		{"2", "ADIDAS", "700"},
		{"3", "NIKE", "850"},
	} {
		r.Upsert(models.Product{
			ID:               s.id,
			Brand:            s.brand,
			BrandTier:        models.TierPremium,
			Category:         "SHOES",
			BasePrice:        decimal.NewFromInt(1000),
			CurrentPrice:     decimal.NewFromInt(1000),
			MinPricePossible: decimal.RequireFromString(s.floor),
		}, 10)
	}
	return r
}
