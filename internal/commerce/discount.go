package commerce

import (
	"context"
	"sync"
	"time"
)

// Discount is a percentage-off code with expiry, usage and spend limits.
// MaxSpendCents of zero means no upper bound.
type Discount struct {
	Code          string    `json:"code"`
	PercentOff    int       `json:"percent_off"`
	ExpiresAt     time.Time `json:"expires_at"`
	MaxUses       int       `json:"max_uses"`
	Uses          int       `json:"uses"`
	MinSpendCents int       `json:"min_spend_cents"`
	MaxSpendCents int       `json:"max_spend_cents"`
}

// DiscountService validates and consumes discount codes. Validation runs
// twice in a purchase: once when the code is applied and again inside the
// confirmation critical section, because expiry and usage counts may have
// moved in between.
type DiscountService interface {
	// Validate checks a code against a cart subtotal and returns the
	// discount, or a DiscountError naming the failure.
	Validate(ctx context.Context, code string, subtotalCents int) (*Discount, error)

	// Consume records one use of the code after a confirmed order.
	Consume(ctx context.Context, code string) error
}

// MemoryDiscounts is an in-memory DiscountService.
type MemoryDiscounts struct {
	mu    sync.Mutex
	codes map[string]*Discount
	now   func() time.Time
}

// NewMemoryDiscounts creates a service seeded with the given codes.
func NewMemoryDiscounts(codes ...Discount) *MemoryDiscounts {
	s := &MemoryDiscounts{codes: make(map[string]*Discount, len(codes)), now: time.Now}
	for i := range codes {
		d := codes[i]
		s.codes[d.Code] = &d
	}
	return s
}

// WithClock overrides the time source. Used by tests.
func (s *MemoryDiscounts) WithClock(now func() time.Time) *MemoryDiscounts {
	s.now = now
	return s
}

// SetExpiry moves a code's expiry. Used by tests and campaign tooling.
func (s *MemoryDiscounts) SetExpiry(code string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.codes[code]; ok {
		d.ExpiresAt = at
	}
}

// Validate implements DiscountService.
func (s *MemoryDiscounts) Validate(ctx context.Context, code string, subtotalCents int) (*Discount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.codes[code]
	if !ok {
		return nil, &DiscountError{Code: code, Reason: ErrDiscountNotFound}
	}
	switch {
	case !s.now().Before(d.ExpiresAt):
		return nil, &DiscountError{Code: code, Reason: ErrDiscountExpired}
	case d.MaxUses > 0 && d.Uses >= d.MaxUses:
		return nil, &DiscountError{Code: code, Reason: ErrDiscountExhausted}
	case subtotalCents < d.MinSpendCents:
		return nil, &DiscountError{Code: code, Reason: ErrDiscountBelowMin}
	case d.MaxSpendCents > 0 && subtotalCents > d.MaxSpendCents:
		return nil, &DiscountError{Code: code, Reason: ErrDiscountAboveMax}
	}
	clone := *d
	return &clone, nil
}

// Consume implements DiscountService.
func (s *MemoryDiscounts) Consume(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.codes[code]
	if !ok {
		return &DiscountError{Code: code, Reason: ErrDiscountNotFound}
	}
	d.Uses++
	return nil
}
