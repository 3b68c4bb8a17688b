package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"storefront/internal/model"
)

// =============================================================================
// STOREFRONT API CLIENT
// =============================================================================
//
// Authentication: the shopper's session token goes in the Authorization
// header as a Bearer token; the storefront's own API key goes in X-Api-Key.
//
// Ordering: mutation calls made by the sync dispatcher carry a Sync-Seq
// header (see WithSeq). Sequence numbers are monotonic per engine, so the
// server can drop a write that arrives after a newer one for the same key.
//
// Versioning: the server advertises Api-Version (semver). A response whose
// major version differs from the client's is rejected before decoding.
// =============================================================================

const (
	headerSyncSeq    = "Sync-Seq"
	headerAPIVersion = "Api-Version"
	headerAPIKey     = "X-Api-Key"

	userAgent = "storefront-engine/1.0"

	// DefaultAPIVersion is the API major this client speaks.
	DefaultAPIVersion = "v1"
)

// Config holds storefront API client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	APIVersion string            // semver, e.g. "v1" or "v1.3.0"
	Timeout    time.Duration     // per request; default 15s
	Transport  http.RoundTripper // nil uses http.DefaultTransport
}

// Client is the HTTP implementation of API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiMajor   string
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("invalid API version %q", version)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		apiMajor: semver.Major(version),
	}, nil
}

// === Cart ===

// GetCart implements API.
func (c *Client) GetCart(ctx context.Context, token string) (model.CartState, error) {
	var out model.CartState
	if err := c.call(ctx, http.MethodGet, "/cart", token, nil, &out); err != nil {
		return model.CartState{}, err
	}
	return out.Clone(), nil
}

// AddItem implements API.
func (c *Client) AddItem(ctx context.Context, token string, req ItemRequest) error {
	return c.call(ctx, http.MethodPost, "/cart/items", token, req, nil)
}

// UpdateItem implements API.
func (c *Client) UpdateItem(ctx context.Context, token string, req ItemRequest) error {
	return c.call(ctx, http.MethodPatch, "/cart/items", token, req, nil)
}

// RemoveItem implements API.
func (c *Client) RemoveItem(ctx context.Context, token, productID, size string) error {
	return c.call(ctx, http.MethodDelete, pathf("/cart/items/%s/%s", productID, size), token, nil, nil)
}

// ClearCart implements API.
func (c *Client) ClearCart(ctx context.Context, token string) error {
	return c.call(ctx, http.MethodDelete, "/cart", token, nil, nil)
}

// AddCustomization implements API.
func (c *Client) AddCustomization(ctx context.Context, token string, req CustomizationRequest) error {
	return c.call(ctx, http.MethodPost, "/cart/customizations", token, req, nil)
}

// UpdateCustomization implements API.
func (c *Client) UpdateCustomization(ctx context.Context, token, id string, quantity int) error {
	body := map[string]int{"quantity": quantity}
	return c.call(ctx, http.MethodPatch, pathf("/cart/customizations/%s", id), token, body, nil)
}

// RemoveCustomization implements API.
func (c *Client) RemoveCustomization(ctx context.Context, token, id string) error {
	return c.call(ctx, http.MethodDelete, pathf("/cart/customizations/%s", id), token, nil, nil)
}

// === Wishlist ===

// GetWishlist implements API.
func (c *Client) GetWishlist(ctx context.Context, token string) ([]string, error) {
	return c.wishlistCall(ctx, http.MethodGet, "/wishlist", token)
}

// AddToWishlist implements API. A duplicate add surfaces as model.ErrConflict.
func (c *Client) AddToWishlist(ctx context.Context, token, productID string) ([]string, error) {
	return c.wishlistCall(ctx, http.MethodPost, pathf("/wishlist/%s", productID), token)
}

// RemoveFromWishlist implements API. Removing an absent product surfaces as
// model.ErrNotFound.
func (c *Client) RemoveFromWishlist(ctx context.Context, token, productID string) ([]string, error) {
	return c.wishlistCall(ctx, http.MethodDelete, pathf("/wishlist/%s", productID), token)
}

// ToggleWishlist implements API.
func (c *Client) ToggleWishlist(ctx context.Context, token, productID string) ([]string, error) {
	return c.wishlistCall(ctx, http.MethodPost, pathf("/wishlist/%s/toggle", productID), token)
}

func (c *Client) wishlistCall(ctx context.Context, method, path, token string) ([]string, error) {
	var ids []string
	if err := c.call(ctx, method, path, token, nil, &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// === Customization records ===

// ListCustomizations implements API.
func (c *Client) ListCustomizations(ctx context.Context, token string) ([]model.Customization, error) {
	var out []model.Customization
	if err := c.call(ctx, http.MethodGet, "/customizations", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCustomization implements API.
func (c *Client) GetCustomization(ctx context.Context, token, id string) (*model.Customization, error) {
	var out model.Customization
	if err := c.call(ctx, http.MethodGet, pathf("/customizations/%s", id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveCustomization creates the record when it has no id, else replaces it.
func (c *Client) SaveCustomization(ctx context.Context, token string, rec *model.Customization) (*model.Customization, error) {
	method, path := http.MethodPost, "/customizations"
	if rec.ID != "" {
		method, path = http.MethodPut, pathf("/customizations/%s", rec.ID)
	}
	var out model.Customization
	if err := c.call(ctx, method, path, token, rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteCustomization implements API.
func (c *Client) DeleteCustomization(ctx context.Context, token, id string) error {
	return c.call(ctx, http.MethodDelete, pathf("/customizations/%s", id), token, nil, nil)
}

// SubmitCustomization implements API.
func (c *Client) SubmitCustomization(ctx context.Context, token, id string) (*model.Customization, error) {
	var out model.Customization
	if err := c.call(ctx, http.MethodPost, pathf("/customizations/%s/submit", id), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// === Catalog ===

// wireProduct is a product as the API serializes it: prices are decimal
// strings in major units.
type wireProduct struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Images      []string `json:"images"`
	Category    string   `json:"category"`
	SubCategory string   `json:"subCategory"`
}

// ListProducts implements API and catalog.Source.
func (c *Client) ListProducts(ctx context.Context) ([]model.Product, error) {
	var wire []wireProduct
	if err := c.call(ctx, http.MethodGet, "/products", "", nil, &wire); err != nil {
		return nil, err
	}

	products := make([]model.Product, 0, len(wire))
	for _, w := range wire {
		products = append(products, model.Product{
			ID:          w.ID,
			Name:        w.Name,
			Price:       model.ParseCents(w.Price),
			Images:      w.Images,
			Category:    w.Category,
			SubCategory: w.SubCategory,
		})
	}
	return products, nil
}

// === HTTP Helpers ===

// call performs one request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, method, path, token string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body, token)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError("storefront", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewUpstreamError("storefront", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, respBody)
	}

	if err := c.checkVersion(resp.Header.Get(headerAPIVersion)); err != nil {
		return err
	}

	if len(respBody) == 0 {
		return nil
	}

	var envelope Result[json.RawMessage]
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return model.NewUpstreamError("storefront", fmt.Errorf("parsing response: %w", err))
	}
	if !envelope.Success {
		msg := envelope.Message
		if msg == "" {
			msg = "request was not accepted"
		}
		return &model.APIError{
			Code:       "REQUEST_REJECTED",
			Message:    msg,
			StatusCode: http.StatusBadGateway,
			Err:        model.ErrUpstreamError,
		}
	}

	if out != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return model.NewUpstreamError("storefront", fmt.Errorf("parsing data: %w", err))
		}
	}
	return nil
}

// newRequest creates a request with API key, Bearer token and Sync-Seq.
// token may be empty for public endpoints.
func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}, token string) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if seq, ok := SeqFromContext(ctx); ok {
		req.Header.Set(headerSyncSeq, strconv.FormatUint(seq, 10))
	}

	return req, nil
}

// checkVersion rejects responses from an incompatible API major.
// Servers that do not advertise a version are accepted.
func (c *Client) checkVersion(advertised string) error {
	if advertised == "" {
		return nil
	}
	if !strings.HasPrefix(advertised, "v") {
		advertised = "v" + advertised
	}
	if !semver.IsValid(advertised) || semver.Major(advertised) != c.apiMajor {
		return model.NewUpstreamError("storefront",
			fmt.Errorf("incompatible API version %s, client speaks %s", advertised, c.apiMajor))
	}
	return nil
}

// parseError converts an error status to model.APIError.
func parseError(statusCode int, body []byte) error {
	var envelope Result[json.RawMessage]
	json.Unmarshal(body, &envelope) // Best effort parse
	msg := envelope.Message

	switch statusCode {
	case 401, 403:
		if msg == "" {
			msg = "your session has expired, please sign in again"
		}
		return model.NewUnauthorizedError(msg)
	case 404:
		return model.NewNotFoundError("resource")
	case 409:
		if msg == "" {
			msg = "already exists"
		}
		return model.NewConflictError(msg)
	case 429:
		return model.NewRateLimitError("storefront")
	case 400, 422:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewUpstreamError("storefront",
			errors.New("status "+strconv.Itoa(statusCode)+": "+msg))
	}
}

// pathf formats a path, escaping every argument as a single segment.
func pathf(format string, args ...string) string {
	escaped := make([]interface{}, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}
	return fmt.Sprintf(format, escaped...)
}

var _ API = (*Client)(nil)
