package cart

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"finitefield.org/hanko-shop/internal/catalog"
)

// MemoryStore keeps carts in process memory. Suitable for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Line
	now   func() time.Time
}

// NewMemoryStore constructs an empty store. A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{carts: map[string][]Line{}, now: clock}
}

// Add increments the quantity of an existing line or appends a new one.
func (s *MemoryStore) Add(_ context.Context, userID string, p catalog.Product) (Line, error) {
	if err := validateItem(userID, p); err != nil {
		return Line{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[userID]
	for i := range lines {
		if lines[i].ProductID == p.ID {
			lines[i].Quantity++
			lines[i].UnitPrice = p.Price
			return lines[i], nil
		}
	}
	now := s.now().UTC()
	line := newLine(p, newLineID(now), now)
	s.carts[userID] = append(lines, line)
	return line, nil
}

// Get returns a copy of the user's cart.
func (s *MemoryStore) Get(_ context.Context, userID string) (Cart, error) {
	if userID == "" {
		return Cart{}, ErrUserRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Cart{UserID: userID, Lines: append([]Line(nil), s.carts[userID]...)}, nil
}

func newLineID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
