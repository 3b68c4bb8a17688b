package cart

import (
	"encoding/json"
	"strings"

	"storefront/internal/model"
)

// AddCustomization puts c in the cart.
// A customization already in the cart gains one more unit and keeps its
// original snapshot and price; a repeat add means "one more of the same
// configuration", not a re-capture. A new one enters at quantity 1 with a
// freshly captured snapshot. Returns the resulting quantity.
func (s *Store) AddCustomization(c model.Customization) (int, error) {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return 0, model.NewValidationError("customization_id", "customization is required")
	}
	if _, ok := s.state.Items[id]; ok {
		return 0, model.NewValidationError("customization_id", "id belongs to a catalog product")
	}

	if item, ok := s.state.Customizations[id]; ok {
		if item.Quantity >= model.MaxQuantity {
			return 0, errQuantityTooLarge()
		}
		item.Quantity++
		s.state.Customizations[id] = item
		return item.Quantity, nil
	}

	if c.Price < 0 {
		return 0, model.NewValidationError("price", "must not be negative")
	}
	s.state.Customizations[id] = model.CustomizationItem{
		Price:    c.Price,
		Quantity: 1,
		Snapshot: CaptureSnapshot(c.Design),
	}
	return 1, nil
}

// UpdateCustomizationQuantity sets the quantity of customization id.
// Zero removes it; negative quantities are rejected without touching state.
// Unknown ids are rejected: a customization cannot be created without its
// snapshot. Returns whether the cart changed.
func (s *Store) UpdateCustomizationQuantity(id string, qty int) (bool, error) {
	if qty < 0 {
		return false, model.NewValidationError("quantity", "must not be negative")
	}
	item, ok := s.state.Customizations[id]
	if !ok {
		if qty == 0 {
			return false, nil
		}
		return false, model.NewNotFoundError("customization")
	}
	if qty == 0 {
		return s.RemoveCustomization(id), nil
	}
	if qty > model.MaxQuantity {
		return false, errQuantityTooLarge()
	}
	if item.Quantity == qty {
		return false, nil
	}
	item.Quantity = qty
	s.state.Customizations[id] = item
	return true, nil
}

// RemoveCustomization deletes customization id. Returns whether it existed.
func (s *Store) RemoveCustomization(id string) bool {
	if _, ok := s.state.Customizations[id]; !ok {
		return false
	}
	delete(s.state.Customizations, id)
	return true
}

// Customization returns a copy of the cart entry for id.
func (s *Store) Customization(id string) (model.CustomizationItem, bool) {
	item, ok := s.state.Customizations[id]
	if !ok {
		return model.CustomizationItem{}, false
	}
	item.Snapshot = item.Snapshot.Clone()
	return item, true
}

// CaptureSnapshot deep-copies a design and fills in neck and sleeve style
// from the canvas payload when the design does not name them.
func CaptureSnapshot(design model.Snapshot) model.Snapshot {
	snap := design.Clone()
	if snap.NeckStyle != "" && snap.SleeveStyle != "" {
		return snap
	}

	neck, sleeve := stylesFromCanvas(snap.Design)
	if snap.NeckStyle == "" {
		snap.NeckStyle = neck
	}
	if snap.SleeveStyle == "" {
		snap.SleeveStyle = sleeve
	}
	return snap
}

// canvasStyles covers the two shapes the design editor has produced:
// flat {"neckStyle": "v"} and nested {"neck": {"style": "v"}}.
type canvasStyles struct {
	NeckStyle   string     `json:"neckStyle"`
	SleeveStyle string     `json:"sleeveStyle"`
	Neck        *partStyle `json:"neck"`
	Sleeve      *partStyle `json:"sleeve"`
}

type partStyle struct {
	Style string `json:"style"`
}

func stylesFromCanvas(raw json.RawMessage) (neck, sleeve string) {
	if len(raw) == 0 {
		return "", ""
	}
	var cs canvasStyles
	if err := json.Unmarshal(raw, &cs); err != nil {
		return "", ""
	}

	neck, sleeve = cs.NeckStyle, cs.SleeveStyle
	if neck == "" && cs.Neck != nil {
		neck = cs.Neck.Style
	}
	if sleeve == "" && cs.Sleeve != nil {
		sleeve = cs.Sleeve.Style
	}
	return neck, sleeve
}
