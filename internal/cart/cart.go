// Package cart owns the shopping cart state the product page hands items to.
package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finitefield.org/hanko-shop/internal/catalog"
)

var (
	// ErrInvalidItem indicates the product cannot be added (missing id or name).
	ErrInvalidItem = errors.New("cart: invalid item")
	// ErrUserRequired indicates a cart operation was attempted without a user.
	ErrUserRequired = errors.New("cart: user required")
)

// User is the authenticated shopper as seen by the cart.
type User struct {
	ID    string
	Email string
}

// Line is one product entry in a cart.
type Line struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is a user's set of lines in insertion order.
type Cart struct {
	UserID string
	Lines  []Line
}

// Total sums all line subtotals.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Count returns the number of units across all lines.
func (c Cart) Count() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Store persists carts keyed by user id.
type Store interface {
	Add(ctx context.Context, userID string, p catalog.Product) (Line, error)
	Get(ctx context.Context, userID string) (Cart, error)
}

// Session is the capability the product view uses to read the current user
// and mutate that user's cart.
type Session interface {
	CurrentUser(ctx context.Context) (User, bool)
	AddToCart(ctx context.Context, p catalog.Product) error
}

// RequestSession binds a request's user (possibly absent) to a Store.
type RequestSession struct {
	user  *User
	store Store
}

// NewSession returns a Session for user. A nil user means anonymous.
func NewSession(user *User, store Store) RequestSession {
	return RequestSession{user: user, store: store}
}

// CurrentUser returns the user when one is signed in.
func (s RequestSession) CurrentUser(context.Context) (User, bool) {
	if s.user == nil || strings.TrimSpace(s.user.ID) == "" {
		return User{}, false
	}
	return *s.user, true
}

// AddToCart adds one unit of p to the current user's cart.
func (s RequestSession) AddToCart(ctx context.Context, p catalog.Product) error {
	u, ok := s.CurrentUser(ctx)
	if !ok {
		return ErrUserRequired
	}
	_, err := s.store.Add(ctx, u.ID, p)
	return err
}

func validateItem(userID string, p catalog.Product) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserRequired
	}
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return ErrInvalidItem
	}
	return nil
}

func newLine(p catalog.Product, id string, now time.Time) Line {
	return Line{
		ID:        id,
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
		AddedAt:   now,
	}
}
