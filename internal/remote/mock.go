package remote

import (
	"context"

	"storefront/internal/model"
)

// Mock implements API for testing.
// Each method can be configured via function fields; unset mutations succeed
// and unset reads return empty values.
type Mock struct {
	GetCartFunc             func(ctx context.Context, token string) (model.CartState, error)
	AddItemFunc             func(ctx context.Context, token string, req ItemRequest) error
	UpdateItemFunc          func(ctx context.Context, token string, req ItemRequest) error
	RemoveItemFunc          func(ctx context.Context, token, productID, size string) error
	ClearCartFunc           func(ctx context.Context, token string) error
	AddCustomizationFunc    func(ctx context.Context, token string, req CustomizationRequest) error
	UpdateCustomizationFunc func(ctx context.Context, token, id string, quantity int) error
	RemoveCustomizationFunc func(ctx context.Context, token, id string) error

	GetWishlistFunc        func(ctx context.Context, token string) ([]string, error)
	AddToWishlistFunc      func(ctx context.Context, token, productID string) ([]string, error)
	RemoveFromWishlistFunc func(ctx context.Context, token, productID string) ([]string, error)
	ToggleWishlistFunc     func(ctx context.Context, token, productID string) ([]string, error)

	ListCustomizationsFunc  func(ctx context.Context, token string) ([]model.Customization, error)
	GetCustomizationFunc    func(ctx context.Context, token, id string) (*model.Customization, error)
	SaveCustomizationFunc   func(ctx context.Context, token string, c *model.Customization) (*model.Customization, error)
	DeleteCustomizationFunc func(ctx context.Context, token, id string) error
	SubmitCustomizationFunc func(ctx context.Context, token, id string) (*model.Customization, error)

	ListProductsFunc func(ctx context.Context) ([]model.Product, error)
}

// GetCart calls the configured GetCartFunc or returns an empty cart.
func (m *Mock) GetCart(ctx context.Context, token string) (model.CartState, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, token)
	}
	return model.NewCartState(), nil
}

func (m *Mock) AddItem(ctx context.Context, token string, req ItemRequest) error {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, token, req)
	}
	return nil
}

func (m *Mock) UpdateItem(ctx context.Context, token string, req ItemRequest) error {
	if m.UpdateItemFunc != nil {
		return m.UpdateItemFunc(ctx, token, req)
	}
	return nil
}

func (m *Mock) RemoveItem(ctx context.Context, token, productID, size string) error {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, token, productID, size)
	}
	return nil
}

func (m *Mock) ClearCart(ctx context.Context, token string) error {
	if m.ClearCartFunc != nil {
		return m.ClearCartFunc(ctx, token)
	}
	return nil
}

func (m *Mock) AddCustomization(ctx context.Context, token string, req CustomizationRequest) error {
	if m.AddCustomizationFunc != nil {
		return m.AddCustomizationFunc(ctx, token, req)
	}
	return nil
}

func (m *Mock) UpdateCustomization(ctx context.Context, token, id string, quantity int) error {
	if m.UpdateCustomizationFunc != nil {
		return m.UpdateCustomizationFunc(ctx, token, id, quantity)
	}
	return nil
}

func (m *Mock) RemoveCustomization(ctx context.Context, token, id string) error {
	if m.RemoveCustomizationFunc != nil {
		return m.RemoveCustomizationFunc(ctx, token, id)
	}
	return nil
}

// GetWishlist calls the configured GetWishlistFunc or returns an empty list.
func (m *Mock) GetWishlist(ctx context.Context, token string) ([]string, error) {
	if m.GetWishlistFunc != nil {
		return m.GetWishlistFunc(ctx, token)
	}
	return []string{}, nil
}

// AddToWishlist calls the configured AddToWishlistFunc or echoes the id.
func (m *Mock) AddToWishlist(ctx context.Context, token, productID string) ([]string, error) {
	if m.AddToWishlistFunc != nil {
		return m.AddToWishlistFunc(ctx, token, productID)
	}
	return []string{productID}, nil
}

// RemoveFromWishlist calls the configured RemoveFromWishlistFunc or returns
// an empty list.
func (m *Mock) RemoveFromWishlist(ctx context.Context, token, productID string) ([]string, error) {
	if m.RemoveFromWishlistFunc != nil {
		return m.RemoveFromWishlistFunc(ctx, token, productID)
	}
	return []string{}, nil
}

// ToggleWishlist calls the configured ToggleWishlistFunc or returns an error.
func (m *Mock) ToggleWishlist(ctx context.Context, token, productID string) ([]string, error) {
	if m.ToggleWishlistFunc != nil {
		return m.ToggleWishlistFunc(ctx, token, productID)
	}
	return nil, model.NewInternalError(nil)
}

func (m *Mock) ListCustomizations(ctx context.Context, token string) ([]model.Customization, error) {
	if m.ListCustomizationsFunc != nil {
		return m.ListCustomizationsFunc(ctx, token)
	}
	return nil, nil
}

func (m *Mock) GetCustomization(ctx context.Context, token, id string) (*model.Customization, error) {
	if m.GetCustomizationFunc != nil {
		return m.GetCustomizationFunc(ctx, token, id)
	}
	return nil, model.NewNotFoundError("customization")
}

func (m *Mock) SaveCustomization(ctx context.Context, token string, c *model.Customization) (*model.Customization, error) {
	if m.SaveCustomizationFunc != nil {
		return m.SaveCustomizationFunc(ctx, token, c)
	}
	return c, nil
}

func (m *Mock) DeleteCustomization(ctx context.Context, token, id string) error {
	if m.DeleteCustomizationFunc != nil {
		return m.DeleteCustomizationFunc(ctx, token, id)
	}
	return nil
}

func (m *Mock) SubmitCustomization(ctx context.Context, token, id string) (*model.Customization, error) {
	if m.SubmitCustomizationFunc != nil {
		return m.SubmitCustomizationFunc(ctx, token, id)
	}
	return nil, model.NewNotFoundError("customization")
}

func (m *Mock) ListProducts(ctx context.Context) ([]model.Product, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx)
	}
	return nil, nil
}

// Ensure Mock implements API.
var _ API = (*Mock)(nil)
