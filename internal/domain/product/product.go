// Package product exposes the slice of the catalog that checkout snapshots
// into order items. Catalog management lives outside this service.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageURL string
	// Available is false for products withdrawn from sale.
	Available bool
}

// Repository defines the catalog reads checkout depends on.
type Repository interface {
	// GetByIDs returns the products matching any of ids. Unknown IDs are
	// silently skipped.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
