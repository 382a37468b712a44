package commerce

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CartLine is one product entry in a cart. UnitPriceCents is captured at
// add time; confirmation re-validates against current inventory anyway.
type CartLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

// Cart is one principal's in-progress order.
type Cart struct {
	ID           string     `json:"id"`
	Principal    string     `json:"principal"`
	Lines        []CartLine `json:"lines"`
	DiscountCode string     `json:"discount_code,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AddLine adds quantity of a product, merging with an existing line.
func (c *Cart) AddLine(p Product, quantity int) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == p.ID {
			c.Lines[i].Quantity += quantity
			return
		}
	}
	c.Lines = append(c.Lines, CartLine{
		ProductID:      p.ID,
		Name:           p.Name,
		Quantity:       quantity,
		UnitPriceCents: p.PriceCents,
	})
}

// RemoveLine drops a product from the cart. Returns false when the
// product was not in the cart.
func (c *Cart) RemoveLine(productID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// SubtotalCents is the line total before any discount.
func (c *Cart) SubtotalCents() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity * l.UnitPriceCents
	}
	return total
}

// TotalCents applies a discount percentage to the subtotal. A nil
// discount leaves the subtotal unchanged.
func (c *Cart) TotalCents(d *Discount) int {
	subtotal := c.SubtotalCents()
	if d == nil {
		return subtotal
	}
	return subtotal - subtotal*d.PercentOff/100
}

// CartService is the cart persistence port.
type CartService interface {
	// CartFor returns the principal's open cart, creating one lazily.
	CartFor(ctx context.Context, principal string) (*Cart, error)

	// Save persists cart changes.
	Save(ctx context.Context, cart *Cart) error

	// Clear drops the principal's open cart, e.g. after confirmation.
	Clear(ctx context.Context, principal string) error
}

// MemoryCarts is an in-memory CartService.
type MemoryCarts struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

// NewMemoryCarts creates an empty cart service.
func NewMemoryCarts() *MemoryCarts {
	return &MemoryCarts{carts: make(map[string]*Cart)}
}

// CartFor implements CartService.
func (s *MemoryCarts) CartFor(ctx context.Context, principal string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cart, ok := s.carts[principal]; ok {
		return cart, nil
	}
	cart := &Cart{
		ID:        uuid.New().String(),
		Principal: principal,
		CreatedAt: time.Now(),
	}
	s.carts[principal] = cart
	return cart, nil
}

// Save implements CartService.
func (s *MemoryCarts) Save(ctx context.Context, cart *Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[cart.Principal] = cart
	return nil
}

// Clear implements CartService.
func (s *MemoryCarts) Clear(ctx context.Context, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, principal)
	return nil
}
