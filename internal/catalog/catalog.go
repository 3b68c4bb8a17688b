// Package catalog resolves live product data (name, price, images).
// Cart totals for catalog items and the recently-viewed buffer both read
// through a Catalog at read time; nothing caches prices beyond it.
package catalog

import (
	"maps"

	"storefront/internal/model"
)

// Catalog looks up products by id.
type Catalog interface {
	Lookup(productID string) (model.Product, bool)
}

// Static is an immutable in-memory catalog.
type Static struct {
	products map[string]model.Product
}

// NewStatic builds a catalog from a product list. Later duplicates win.
func NewStatic(products ...model.Product) *Static {
	m := make(map[string]model.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &Static{products: m}
}

// Lookup implements Catalog.
func (s *Static) Lookup(productID string) (model.Product, bool) {
	p, ok := s.products[productID]
	return p, ok
}

// Products returns a copy of the catalog contents.
func (s *Static) Products() map[string]model.Product {
	return maps.Clone(s.products)
}

var _ Catalog = (*Static)(nil)
