// Package cart holds the in-memory cart of one shopper session: catalog
// items keyed by product and size, and customizations keyed by id.
//
// Every method keeps these invariants:
//   - quantities are positive; a size entry reaching zero is deleted, and a
//     product or customization left empty is deleted with it
//   - product ids and customization ids never overlap
//
// A Store is not safe for concurrent use; the engine serializes access.
package cart

import (
	"fmt"
	"strings"

	"storefront/internal/catalog"
	"storefront/internal/model"
)

// Store is the canonical cart state.
type Store struct {
	state model.CartState
}

// New returns an empty cart.
func New() *Store {
	return &Store{state: model.NewCartState()}
}

// AddItem adds qty of productID at size to the cart.
func (s *Store) AddItem(productID, size string, qty int) error {
	if err := s.validateItemKey(productID, size); err != nil {
		return err
	}
	if qty <= 0 {
		return model.NewValidationError("quantity", "must be at least 1")
	}

	if qty > model.MaxQuantity-s.state.Items[productID][size] {
		return errQuantityTooLarge()
	}

	sizes, ok := s.state.Items[productID]
	if !ok {
		sizes = model.SizeQty{}
		s.state.Items[productID] = sizes
	}
	sizes[size] += qty
	return nil
}

// UpdateQuantity sets the quantity of productID at size.
// Zero removes the size (and the product once it has no sizes left).
// Negative quantities are rejected without touching state.
// Returns whether the cart changed.
func (s *Store) UpdateQuantity(productID, size string, qty int) (bool, error) {
	if err := s.validateItemKey(productID, size); err != nil {
		return false, err
	}
	if qty < 0 {
		return false, model.NewValidationError("quantity", "must not be negative")
	}
	if qty == 0 {
		return s.RemoveItem(productID, size), nil
	}
	if qty > model.MaxQuantity {
		return false, errQuantityTooLarge()
	}

	sizes, ok := s.state.Items[productID]
	if !ok {
		sizes = model.SizeQty{}
		s.state.Items[productID] = sizes
	}
	if sizes[size] == qty {
		return false, nil
	}
	sizes[size] = qty
	return true, nil
}

// RemoveItem deletes the size entry, cascading to the product entry.
// Returns whether anything was removed.
func (s *Store) RemoveItem(productID, size string) bool {
	sizes, ok := s.state.Items[productID]
	if !ok {
		return false
	}
	if _, ok := sizes[size]; !ok {
		return false
	}
	delete(sizes, size)
	if len(sizes) == 0 {
		delete(s.state.Items, productID)
	}
	return true
}

// Clear empties the cart. Returns whether it held anything.
func (s *Store) Clear() bool {
	wasEmpty := s.state.IsEmpty()
	s.state = model.NewCartState()
	return !wasEmpty
}

// Replace swaps in state wholesale, as on login. Incoming entries that break
// the cart invariants are dropped.
func (s *Store) Replace(state model.CartState) {
	s.state = Normalize(state)
}

// State returns a deep copy of the cart.
func (s *Store) State() model.CartState {
	return s.state.Clone()
}

// Lines returns the cart as tagged line items.
func (s *Store) Lines() []model.Line {
	return s.state.Lines()
}

// Quantity returns the quantity of productID at size (0 when absent).
func (s *Store) Quantity(productID, size string) int {
	return s.state.Items[productID][size]
}

// IsEmpty reports whether the cart holds nothing.
func (s *Store) IsEmpty() bool {
	return s.state.IsEmpty()
}

// Count sums every quantity across items and customizations.
func (s *Store) Count() int {
	n := 0
	for _, line := range s.state.Lines() {
		n += line.Qty()
	}
	return n
}

// Amount totals the cart in minor units. Catalog items are priced live from
// cat; products no longer in the catalog contribute nothing. Customizations
// use the price frozen when they were added.
func (s *Store) Amount(cat catalog.Catalog) int64 {
	var total int64
	for _, line := range s.state.Lines() {
		switch l := line.(type) {
		case model.StandardLine:
			p, ok := cat.Lookup(l.ProductID)
			if !ok {
				continue
			}
			total += int64(l.Quantity) * p.Price
		case model.CustomLine:
			total += int64(l.Quantity) * l.Price
		}
	}
	return total
}

func (s *Store) validateItemKey(productID, size string) error {
	if strings.TrimSpace(productID) == "" {
		return model.NewValidationError("product_id", "product is required")
	}
	if strings.TrimSpace(size) == "" {
		return model.NewValidationError("size", "please select a size")
	}
	if _, ok := s.state.Customizations[productID]; ok {
		return model.NewValidationError("product_id", "id belongs to a customization")
	}
	return nil
}

func errQuantityTooLarge() error {
	return model.NewValidationError("quantity", fmt.Sprintf("at most %d per line", model.MaxQuantity))
}

// Normalize returns a copy of state with non-positive quantities, empty
// sub-maps and ids present in both namespaces removed. Quantities above
// model.MaxQuantity are clamped. On a namespace
// collision the customization wins: it carries a snapshot that cannot be
// rebuilt, while a catalog line can be re-added.
func Normalize(state model.CartState) model.CartState {
	out := model.NewCartState()

	for id, item := range state.Customizations {
		if strings.TrimSpace(id) == "" || item.Quantity <= 0 {
			continue
		}
		item.Quantity = model.ClampQuantity(item.Quantity)
		item.Snapshot = item.Snapshot.Clone()
		out.Customizations[id] = item
	}

	for id, sizes := range state.Items {
		if strings.TrimSpace(id) == "" {
			continue
		}
		if _, taken := out.Customizations[id]; taken {
			continue
		}
		kept := model.SizeQty{}
		for size, qty := range sizes {
			if strings.TrimSpace(size) != "" && qty > 0 {
				kept[size] = model.ClampQuantity(qty)
			}
		}
		if len(kept) > 0 {
			out.Items[id] = kept
		}
	}
	return out
}
