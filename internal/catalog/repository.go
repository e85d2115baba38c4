package catalog

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/models"
)

// ProductReader loads immutable product records
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// BatchProductReader loads several products in one round trip.
// Unknown ids are left out of the result.
type BatchProductReader interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
}

// ProductLister lists the whole catalog
type ProductLister interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// ErrListingUnsupported is returned when the product backend cannot list its catalog
var ErrListingUnsupported = errors.New("product listing not supported")

// InventoryReader loads the current stock of a product
type InventoryReader interface {
	GetInventory(ctx context.Context, productID string) (*models.Inventory, error)
}

// Repository is the catalog the checkout engine reads from.
// Both lookups wrap models.ErrProductNotFound for unknown ids.
type Repository interface {
	ProductReader
	InventoryReader
}

// Composite serves products and inventory from different backends,
// e.g. products from Postgres and live counters from Redis.
type Composite struct {
	Products  ProductReader
	Inventory InventoryReader
}

// GetProduct implements Repository
func (c Composite) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return c.Products.GetProduct(ctx, id)
}

// GetInventory implements Repository
func (c Composite) GetInventory(ctx context.Context, productID string) (*models.Inventory, error) {
	return c.Inventory.GetInventory(ctx, productID)
}

// GetProductsByIDs implements BatchProductReader
func (c Composite) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	return fetchProducts(ctx, c.Products, ids)
}

// ListProducts implements ProductLister when the product backend does
func (c Composite) ListProducts(ctx context.Context) ([]models.Product, error) {
	lister, ok := c.Products.(ProductLister)
	if !ok {
		return nil, ErrListingUnsupported
	}
	return lister.ListProducts(ctx)
}

// LoadProducts fetches the distinct ids keyed by id, in one batch when r supports it.
// Any id missing from the result fails with models.ErrProductNotFound.
func LoadProducts(ctx context.Context, r ProductReader, ids []string) (map[string]*models.Product, error) {
	products, err := fetchProducts(ctx, r, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", models.ErrProductNotFound, id)
		}
	}
	return byID, nil
}

func fetchProducts(ctx context.Context, r ProductReader, ids []string) ([]models.Product, error) {
	if batch, ok := r.(BatchProductReader); ok {
		return batch.GetProductsByIDs(ctx, ids)
	}

	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetProduct(ctx, id)
		if errors.Is(err, models.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, nil
}
