package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the API has no product for the identifier.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrInvalidProduct is returned when the API payload fails validation.
	ErrInvalidProduct = errors.New("catalog: invalid product payload")
	// ErrMissingID is returned when no identifier is provided.
	ErrMissingID = errors.New("catalog: missing product id")
)

// Product is the catalog entity rendered on the detail page.
type Product struct {
	ID          string
	Name        string          `validate:"required"`
	Description string
	Price       decimal.Decimal `validate:"gte=0"`
	Stock       int             `validate:"gte=0"`
	Images      ImageRef
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool { return p.Stock > 0 }
