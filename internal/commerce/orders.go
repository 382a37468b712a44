package commerce

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OrderStatus tracks an order through payment.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a confirmed (or in-flight) purchase. CartID is the secondary
// correlation used for idempotent replay: a duplicate confirmation that
// loses the claim race finds the winner's order through it.
type Order struct {
	ID         string      `json:"id"`
	CartID     string      `json:"cart_id"`
	Principal  string      `json:"principal"`
	Lines      []CartLine  `json:"lines"`
	TotalCents int         `json:"total_cents"`
	Status     OrderStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderService is the order persistence port.
type OrderService interface {
	// CreateFromCart writes a pending order for the cart's lines and total.
	CreateFromCart(ctx context.Context, cart *Cart, totalCents int) (*Order, error)

	// FindByCartID returns the order created for a cart, or
	// ErrOrderNotFound. Cancelled orders are not returned.
	FindByCartID(ctx context.Context, cartID string) (*Order, error)

	// Confirm marks an order paid.
	Confirm(ctx context.Context, orderID string) error

	// Cancel marks an order rolled back after a downstream failure.
	Cancel(ctx context.Context, orderID string) error
}

// PaymentProcessor is the downstream payment port. Charge must respect
// the caller's context deadline.
type PaymentProcessor interface {
	Charge(ctx context.Context, order *Order) error
}

// NoopPayment approves every charge. Development stand-in for a real
// gateway adapter.
type NoopPayment struct{}

// Charge implements PaymentProcessor.
func (NoopPayment) Charge(ctx context.Context, order *Order) error { return nil }

// MemoryOrders is an in-memory OrderService.
type MemoryOrders struct {
	mu     sync.Mutex
	orders map[string]*Order
	byCart map[string]string
}

// NewMemoryOrders creates an empty order service.
func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{
		orders: make(map[string]*Order),
		byCart: make(map[string]string),
	}
}

// CreateFromCart implements OrderService.
func (s *MemoryOrders) CreateFromCart(ctx context.Context, cart *Cart, totalCents int) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := &Order{
		ID:         uuid.New().String(),
		CartID:     cart.ID,
		Principal:  cart.Principal,
		Lines:      append([]CartLine(nil), cart.Lines...),
		TotalCents: totalCents,
		Status:     OrderPending,
		CreatedAt:  time.Now(),
	}
	s.orders[order.ID] = order
	s.byCart[cart.ID] = order.ID
	return order, nil
}

// FindByCartID implements OrderService.
func (s *MemoryOrders) FindByCartID(ctx context.Context, cartID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCart[cartID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	order := s.orders[id]
	if order == nil || order.Status == OrderCancelled {
		return nil, ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

// Confirm implements OrderService.
func (s *MemoryOrders) Confirm(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = OrderConfirmed
	return nil
}

// Cancel implements OrderService.
func (s *MemoryOrders) Cancel(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	order.Status = OrderCancelled
	return nil
}
