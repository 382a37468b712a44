package commerce

import (
	"context"
	"sort"
	"sync"
)

// Product is one sellable catalog item. Prices are integer cents.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
	Stock      int    `json:"stock"`
}

// Inventory is the catalog and stock port. Availability can change between
// cart building and order confirmation, which is why confirmation
// re-validates every line.
type Inventory interface {
	// Product returns a catalog item, or ErrProductNotFound.
	Product(ctx context.Context, id string) (Product, error)

	// List returns the catalog ordered by product ID.
	List(ctx context.Context) ([]Product, error)

	// Available returns the current stock for a product.
	Available(ctx context.Context, id string) (int, error)

	// Reserve atomically decrements stock for every line, failing with a
	// StockError (and reserving nothing) if any line exceeds availability.
	Reserve(ctx context.Context, lines []CartLine) error

	// Release returns previously reserved stock, e.g. after a failed
	// payment.
	Release(ctx context.Context, lines []CartLine) error
}

// MemoryInventory is an in-memory Inventory for tests and development.
type MemoryInventory struct {
	mu       sync.Mutex
	products map[string]*Product
}

// NewMemoryInventory creates an inventory seeded with the given products.
func NewMemoryInventory(products ...Product) *MemoryInventory {
	inv := &MemoryInventory{products: make(map[string]*Product, len(products))}
	for i := range products {
		p := products[i]
		inv.products[p.ID] = &p
	}
	return inv
}

// Product implements Inventory.
func (inv *MemoryInventory) Product(ctx context.Context, id string) (Product, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	p, ok := inv.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

// List implements Inventory.
func (inv *MemoryInventory) List(ctx context.Context) ([]Product, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]Product, 0, len(inv.products))
	for _, p := range inv.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Available implements Inventory.
func (inv *MemoryInventory) Available(ctx context.Context, id string) (int, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	p, ok := inv.products[id]
	if !ok {
		return 0, ErrProductNotFound
	}
	return p.Stock, nil
}

// SetStock overwrites a product's stock level. Used by tests and catalog
// sync jobs.
func (inv *MemoryInventory) SetStock(id string, stock int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if p, ok := inv.products[id]; ok {
		p.Stock = stock
	}
}

// Reserve implements Inventory. All-or-nothing under one lock.
func (inv *MemoryInventory) Reserve(ctx context.Context, lines []CartLine) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, line := range lines {
		p, ok := inv.products[line.ProductID]
		if !ok {
			return ErrProductNotFound
		}
		if p.Stock < line.Quantity {
			return &StockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: line.Quantity,
			}
		}
	}
	for _, line := range lines {
		inv.products[line.ProductID].Stock -= line.Quantity
	}
	return nil
}

// Release implements Inventory.
func (inv *MemoryInventory) Release(ctx context.Context, lines []CartLine) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, line := range lines {
		if p, ok := inv.products[line.ProductID]; ok {
			p.Stock += line.Quantity
		}
	}
	return nil
}
