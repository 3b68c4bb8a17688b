// Package remote is the client for the storefront persistence API.
// Every call carries the shopper's session token explicitly; the API answers
// with a {success, message, data} envelope, and a 401/403 is the only status
// that maps to model.ErrUnauthorized.
package remote

import (
	"context"

	"storefront/internal/model"
)

// API abstracts the storefront persistence endpoints.
// The engine depends on this interface; Client is the HTTP implementation
// and Mock the test double.
type API interface {
	// GetCart returns the server copy of the shopper's cart.
	GetCart(ctx context.Context, token string) (model.CartState, error)

	// AddItem adds Quantity units of a product size (delta semantics).
	AddItem(ctx context.Context, token string, req ItemRequest) error

	// UpdateItem sets the absolute quantity of a product size.
	UpdateItem(ctx context.Context, token string, req ItemRequest) error

	// RemoveItem deletes a product size.
	RemoveItem(ctx context.Context, token, productID, size string) error

	// ClearCart empties the server cart.
	ClearCart(ctx context.Context, token string) error

	// AddCustomization adds one unit of a customization with its snapshot.
	AddCustomization(ctx context.Context, token string, req CustomizationRequest) error

	// UpdateCustomization sets the quantity of a customization in the cart.
	UpdateCustomization(ctx context.Context, token, id string, quantity int) error

	// RemoveCustomization deletes a customization from the cart.
	RemoveCustomization(ctx context.Context, token, id string) error

	// GetWishlist returns the wishlist product ids.
	GetWishlist(ctx context.Context, token string) ([]string, error)

	// AddToWishlist, RemoveFromWishlist and ToggleWishlist return the full
	// resulting set, which is authoritative.
	AddToWishlist(ctx context.Context, token, productID string) ([]string, error)
	RemoveFromWishlist(ctx context.Context, token, productID string) ([]string, error)
	ToggleWishlist(ctx context.Context, token, productID string) ([]string, error)

	// Saved customization records (the design editor's documents).
	ListCustomizations(ctx context.Context, token string) ([]model.Customization, error)
	GetCustomization(ctx context.Context, token, id string) (*model.Customization, error)
	SaveCustomization(ctx context.Context, token string, c *model.Customization) (*model.Customization, error)
	DeleteCustomization(ctx context.Context, token, id string) error
	SubmitCustomization(ctx context.Context, token, id string) (*model.Customization, error)

	// ListProducts returns the live catalog. No token required.
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// ItemRequest is the body of add/update item calls.
type ItemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// CustomizationRequest is the body of the add-customization call.
type CustomizationRequest struct {
	CustomizationID string         `json:"customizationId"`
	Price           int64          `json:"price"`
	Snapshot        model.Snapshot `json:"snapshot"`
}

// Result is the response envelope of every storefront API call.
type Result[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data,omitempty"`
}

type seqKey struct{}

// WithSeq attaches a sync sequence number to ctx. The client sends it as the
// Sync-Seq header so the server can discard writes older than one it has
// already applied for the same key.
func WithSeq(ctx context.Context, seq uint64) context.Context {
	return context.WithValue(ctx, seqKey{}, seq)
}

// SeqFromContext returns the sequence number set by WithSeq.
func SeqFromContext(ctx context.Context) (uint64, bool) {
	seq, ok := ctx.Value(seqKey{}).(uint64)
	return seq, ok
}
