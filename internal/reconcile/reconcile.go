// Package reconcile computes the delta between two carts.
// At login under the merge policy the engine unions the guest cart into the
// server cart, diffs the result against the server copy, and executes only
// the necessary calls.
package reconcile

import "storefront/internal/model"

// CartDiff describes the mutations that turn one cart into another.
// Operations should be applied in order: Remove → Update → Add
// to prevent conflicts (e.g., updating a removed item).
type CartDiff struct {
	ToAdd    []ItemToAdd    // sizes in desired but not current
	ToRemove []ItemToRemove // sizes in current but not desired
	ToUpdate []ItemToUpdate // sizes in both with different quantities

	CustomToAdd    []CustomToAdd    // customizations in desired but not current
	CustomToRemove []string         // customization ids in current but not desired
	CustomToUpdate []CustomToUpdate // customizations in both with different quantities
}

// ItemToAdd specifies a new product size.
type ItemToAdd struct {
	ProductID string
	Size      string
	Quantity  int
}

// ItemToRemove specifies a product size to drop.
type ItemToRemove struct {
	ProductID string
	Size      string
}

// ItemToUpdate specifies a quantity change for an existing product size.
type ItemToUpdate struct {
	ProductID   string
	Size        string
	OldQuantity int // informational
	NewQuantity int
}

// CustomToAdd carries the full entry since the server needs the snapshot.
type CustomToAdd struct {
	CustomizationID string
	Item            model.CustomizationItem
}

// CustomToUpdate specifies a quantity change for an existing customization.
type CustomToUpdate struct {
	CustomizationID string
	OldQuantity     int
	NewQuantity     int
}

// IsEmpty returns true if no changes are needed.
func (d *CartDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 && len(d.ToUpdate) == 0 &&
		len(d.CustomToAdd) == 0 && len(d.CustomToRemove) == 0 && len(d.CustomToUpdate) == 0
}

// Count returns the number of operations in the diff.
func (d *CartDiff) Count() int {
	return len(d.ToAdd) + len(d.ToRemove) + len(d.ToUpdate) +
		len(d.CustomToAdd) + len(d.CustomToRemove) + len(d.CustomToUpdate)
}

// DiffCarts computes the delta between current and desired.
// Standard lines match on product id and size; custom lines on
// customization id. Output follows Lines() order, so it is deterministic.
func DiffCarts(current, desired model.CartState) *CartDiff {
	diff := &CartDiff{}

	for _, line := range desired.Lines() {
		switch l := line.(type) {
		case model.StandardLine:
			old := current.Items[l.ProductID][l.Size]
			switch {
			case old == 0:
				diff.ToAdd = append(diff.ToAdd, ItemToAdd{ProductID: l.ProductID, Size: l.Size, Quantity: l.Quantity})
			case old != l.Quantity:
				diff.ToUpdate = append(diff.ToUpdate, ItemToUpdate{
					ProductID:   l.ProductID,
					Size:        l.Size,
					OldQuantity: old,
					NewQuantity: l.Quantity,
				})
			}
		case model.CustomLine:
			cur, ok := current.Customizations[l.CustomizationID]
			switch {
			case !ok:
				diff.CustomToAdd = append(diff.CustomToAdd, CustomToAdd{
					CustomizationID: l.CustomizationID,
					Item:            desired.Customizations[l.CustomizationID],
				})
			case cur.Quantity != l.Quantity:
				diff.CustomToUpdate = append(diff.CustomToUpdate, CustomToUpdate{
					CustomizationID: l.CustomizationID,
					OldQuantity:     cur.Quantity,
					NewQuantity:     l.Quantity,
				})
			}
		}
	}

	for _, line := range current.Lines() {
		switch l := line.(type) {
		case model.StandardLine:
			if desired.Items[l.ProductID][l.Size] == 0 {
				diff.ToRemove = append(diff.ToRemove, ItemToRemove{ProductID: l.ProductID, Size: l.Size})
			}
		case model.CustomLine:
			if _, ok := desired.Customizations[l.CustomizationID]; !ok {
				diff.CustomToRemove = append(diff.CustomToRemove, l.CustomizationID)
			}
		}
	}

	return diff
}

// MergeCarts unions guest into server. Quantities of a size present in both
// are summed. A customization present in both keeps the server snapshot and
// price with the quantities summed. Summed quantities are clamped to
// model.MaxQuantity. Guest entries whose id falls in the other
// namespace on the server are dropped so the namespaces stay disjoint.
// Neither input is modified.
func MergeCarts(guest, server model.CartState) model.CartState {
	merged := server.Clone()

	for id, sizes := range guest.Items {
		if _, taken := merged.Customizations[id]; taken {
			continue
		}
		for size, qty := range sizes {
			if qty <= 0 {
				continue
			}
			if merged.Items[id] == nil {
				merged.Items[id] = model.SizeQty{}
			}
			merged.Items[id][size] = model.ClampQuantity(merged.Items[id][size] + model.ClampQuantity(qty))
		}
	}

	for id, item := range guest.Customizations {
		if _, taken := merged.Items[id]; taken || item.Quantity <= 0 {
			continue
		}
		if cur, ok := merged.Customizations[id]; ok {
			cur.Quantity = model.ClampQuantity(cur.Quantity + model.ClampQuantity(item.Quantity))
			merged.Customizations[id] = cur
			continue
		}
		item.Quantity = model.ClampQuantity(item.Quantity)
		item.Snapshot = item.Snapshot.Clone()
		merged.Customizations[id] = item
	}

	return merged
}
