package model

import (
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"time"
)

// === Catalog ===

// Product is a catalog entry as served by the storefront API.
// Price is in minor units and always read live; carts never store it.
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       int64    `json:"price"`
	Images      []string `json:"images,omitempty"`
	Category    string   `json:"category,omitempty"`
	SubCategory string   `json:"subCategory,omitempty"`
}

// === Cart ===

// MaxQuantity caps the quantity of a single cart line. Adds and updates past
// it are rejected; carts arriving from elsewhere are clamped to it.
const MaxQuantity = 999

// ClampQuantity limits qty to MaxQuantity.
func ClampQuantity(qty int) int {
	return min(qty, MaxQuantity)
}

// SizeQty maps a size label to a positive quantity.
type SizeQty map[string]int

// Snapshot is the immutable copy of a custom design captured when the
// customization entered the cart. Later edits to the customization record
// never reach a snapshot already in the cart.
type Snapshot struct {
	Fabric          string             `json:"fabric,omitempty"`
	Color           string             `json:"color,omitempty"`
	Measurements    map[string]float64 `json:"measurements,omitempty"`
	Design          json.RawMessage    `json:"design,omitempty"` // canvas payload, opaque
	ReferenceImages []string           `json:"referenceImages,omitempty"`
	NeckStyle       string             `json:"neckStyle,omitempty"`
	SleeveStyle     string             `json:"sleeveStyle,omitempty"`
}

// Clone returns a deep copy sharing no backing storage with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Measurements = maps.Clone(s.Measurements)
	out.ReferenceImages = slices.Clone(s.ReferenceImages)
	if s.Design != nil {
		out.Design = slices.Clone(s.Design)
	}
	return out
}

// CustomizationItem is a one-off custom design held in the cart.
// Price is frozen at insertion.
type CustomizationItem struct {
	Price    int64    `json:"price"`
	Quantity int      `json:"quantity"`
	Snapshot Snapshot `json:"snapshot"`
}

// CartState is the canonical cart shape shared with the storefront API and
// the guest-cart document in local storage.
type CartState struct {
	Items          map[string]SizeQty           `json:"items"`
	Customizations map[string]CustomizationItem `json:"customizations"`
}

// NewCartState returns an empty cart with non-nil maps.
func NewCartState() CartState {
	return CartState{
		Items:          map[string]SizeQty{},
		Customizations: map[string]CustomizationItem{},
	}
}

// Clone deep-copies the cart, normalizing nil maps to empty ones.
func (c CartState) Clone() CartState {
	out := NewCartState()
	for id, sizes := range c.Items {
		out.Items[id] = maps.Clone(sizes)
	}
	for id, item := range c.Customizations {
		item.Snapshot = item.Snapshot.Clone()
		out.Customizations[id] = item
	}
	return out
}

// IsEmpty reports whether the cart holds nothing.
func (c CartState) IsEmpty() bool {
	return len(c.Items) == 0 && len(c.Customizations) == 0
}

// === Line items ===

// Line is a single purchasable row of the cart: either a StandardLine or a
// CustomLine. The interface is sealed so switches over it stay exhaustive.
type Line interface {
	Key() string
	Qty() int
	isLine()
}

// StandardLine is a catalog SKU at one size.
type StandardLine struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (l StandardLine) Key() string { return l.ProductID + "/" + l.Size }
func (l StandardLine) Qty() int    { return l.Quantity }
func (StandardLine) isLine()       {}

// CustomLine is a customization with its frozen price and snapshot.
type CustomLine struct {
	CustomizationID string   `json:"customizationId"`
	Snapshot        Snapshot `json:"snapshot"`
	Quantity        int      `json:"quantity"`
	Price           int64    `json:"price"`
}

func (l CustomLine) Key() string { return "custom/" + l.CustomizationID }
func (l CustomLine) Qty() int    { return l.Quantity }
func (CustomLine) isLine()       {}

// Lines flattens the cart into tagged lines, standard lines first, each group
// in key order.
func (c CartState) Lines() []Line {
	lines := make([]Line, 0, len(c.Items)+len(c.Customizations))

	for _, id := range sortedKeys(c.Items) {
		sizes := c.Items[id]
		for _, size := range sortedKeys(sizes) {
			lines = append(lines, StandardLine{ProductID: id, Size: size, Quantity: sizes[size]})
		}
	}
	for _, id := range sortedKeys(c.Customizations) {
		item := c.Customizations[id]
		lines = append(lines, CustomLine{
			CustomizationID: id,
			Snapshot:        item.Snapshot.Clone(),
			Quantity:        item.Quantity,
			Price:           item.Price,
		})
	}
	return lines
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// === Customization records ===

// CustomizationStatus is the lifecycle of a saved design.
type CustomizationStatus string

const (
	CustomizationDraft     CustomizationStatus = "draft"
	CustomizationSubmitted CustomizationStatus = "submitted"
)

// Customization is a saved design record owned by the signed-in user.
// Adding one to the cart captures Design into a Snapshot.
type Customization struct {
	ID        string              `json:"id"`
	Name      string              `json:"name,omitempty"`
	Price     int64               `json:"price"`
	Design    Snapshot            `json:"design"`
	Status    CustomizationStatus `json:"status,omitempty"`
	UpdatedAt time.Time           `json:"updatedAt,omitempty"`
}

// === Recently viewed ===

// RecentEntry is one product in the recently-viewed buffer.
type RecentEntry struct {
	ProductID   string    `json:"productId"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	Images      []string  `json:"images,omitempty"`
	Category    string    `json:"category,omitempty"`
	SubCategory string    `json:"subCategory,omitempty"`
	ViewedAt    time.Time `json:"viewedAt"`
}

// NewRecentEntry stamps p as viewed at the given time.
func NewRecentEntry(p Product, at time.Time) RecentEntry {
	return RecentEntry{
		ProductID:   p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Images:      slices.Clone(p.Images),
		Category:    p.Category,
		SubCategory: p.SubCategory,
		ViewedAt:    at,
	}
}
