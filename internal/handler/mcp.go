// MCP transport for the storefront daemon using the official MCP Go SDK.
// Exposes the cart, wishlist and recently-viewed operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/authguard"
	"storefront/internal/engine"
	"storefront/internal/model"
)

// === MCP Meta Types ===
// meta carries what the REST transport reads from headers:
// - Storefront-Session header → meta["session"]

// MCPMeta represents request metadata in MCP requests.
type MCPMeta struct {
	Session string `json:"session"`
}

// === MCP Tool Input Types ===

// SessionInput is the input of tools that only need a session.
type SessionInput struct {
	Meta MCPMeta `json:"meta" jsonschema:"request metadata (session required),required"`
}

// LoginInput is the input schema for the login tool.
type LoginInput struct {
	Meta  MCPMeta `json:"meta" jsonschema:"request metadata (session required),required"`
	Token string  `json:"token" jsonschema:"session token issued by the storefront,required"`
}

// ItemInput addresses one standard cart line.
type ItemInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata (session required),required"`
	ProductID string  `json:"product_id" jsonschema:"product ID,required"`
	Size      string  `json:"size" jsonschema:"size label, e.g. M,required"`
	Quantity  int     `json:"quantity,omitempty" jsonschema:"quantity; defaults to 1 for add_item, 0 removes the line on update_quantity"`
}

// CustomizationInput describes a made-to-measure design to put in the cart.
// The canvas payload is not accepted over MCP; garment styles are given
// directly instead.
type CustomizationInput struct {
	Meta            MCPMeta            `json:"meta" jsonschema:"request metadata (session required),required"`
	ID              string             `json:"id" jsonschema:"customization ID,required"`
	Name            string             `json:"name,omitempty" jsonschema:"display name"`
	Price           int64              `json:"price" jsonschema:"unit price in cents,required"`
	Fabric          string             `json:"fabric,omitempty" jsonschema:"fabric"`
	Color           string             `json:"color,omitempty" jsonschema:"color"`
	Measurements    map[string]float64 `json:"measurements,omitempty" jsonschema:"body measurements in centimeters"`
	ReferenceImages []string           `json:"reference_images,omitempty" jsonschema:"reference image URLs"`
	NeckStyle       string             `json:"neck_style,omitempty" jsonschema:"neck style"`
	SleeveStyle     string             `json:"sleeve_style,omitempty" jsonschema:"sleeve style"`
}

// CustomizationQuantityInput sets the quantity of a customization line.
type CustomizationQuantityInput struct {
	Meta     MCPMeta `json:"meta" jsonschema:"request metadata (session required),required"`
	ID       string  `json:"id" jsonschema:"customization ID,required"`
	Quantity int     `json:"quantity" jsonschema:"new quantity; 0 removes the line,required"`
}

// ProductInput addresses one product.
type ProductInput struct {
	Meta      MCPMeta `json:"meta" jsonschema:"request metadata (session required),required"`
	ProductID string  `json:"product_id" jsonschema:"product ID,required"`
}

// === MCP Tool Output Types ===

// SessionOutput describes a session.
type SessionOutput struct {
	Session   string             `json:"session"`
	Mode      string             `json:"mode"`
	Subject   string             `json:"subject,omitempty"`
	ExpiresAt string             `json:"expires_at,omitempty"`
	Notices   []authguard.Notice `json:"notices,omitempty"`
	Redirect  string             `json:"redirect,omitempty"`
}

// CartLine is one cart line as MCP clients see it.
type CartLine struct {
	Kind            string `json:"kind"`
	ProductID       string `json:"product_id,omitempty"`
	Size            string `json:"size,omitempty"`
	CustomizationID string `json:"customization_id,omitempty"`
	Quantity        int    `json:"quantity"`
	Price           int64  `json:"price,omitempty"`
	Fabric          string `json:"fabric,omitempty"`
	Color           string `json:"color,omitempty"`
}

// CartOutput is the cart summary returned by every cart tool.
type CartOutput struct {
	Mode     string             `json:"mode"`
	Count    int                `json:"count"`
	Amount   int64              `json:"amount"`
	Total    string             `json:"total"`
	Lines    []CartLine         `json:"lines"`
	Notices  []authguard.Notice `json:"notices,omitempty"`
	Redirect string             `json:"redirect,omitempty"`
}

// WishlistOutput lists the wishlist after a wishlist tool.
type WishlistOutput struct {
	ProductID  string             `json:"product_id,omitempty"`
	Wishlisted bool               `json:"wishlisted,omitempty"`
	Items      []string           `json:"items"`
	Notices    []authguard.Notice `json:"notices,omitempty"`
	Redirect   string             `json:"redirect,omitempty"`
}

// RecentEntry is one recently-viewed product.
type RecentEntry struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Category  string `json:"category,omitempty"`
	ViewedAt  string `json:"viewed_at"`
}

// RecentOutput lists recently-viewed products, newest first.
type RecentOutput struct {
	Items    []RecentEntry      `json:"items"`
	Notices  []authguard.Notice `json:"notices,omitempty"`
	Redirect string             `json:"redirect,omitempty"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront shopper state. Call create_session first and pass the " +
				"returned id as meta.session on every other tool.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_session",
		Description: "Start a new guest shopper session.",
	}, h.mcpCreateSession)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "login",
		Description: "Sign the session in with a storefront token. The server cart and wishlist are loaded.",
	}, h.mcpLogin)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "logout",
		Description: "Sign the session out and clear its cart and wishlist.",
	}, h.mcpLogout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the cart with item count and total at current catalog prices.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add units of a product in a size to the cart.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_quantity",
		Description: "Set the quantity of a product in a size. Quantity 0 removes the line.",
	}, h.mcpUpdateQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove a product in a size from the cart.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every line from the cart.",
	}, h.mcpClearCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_customization",
		Description: "Add one unit of a made-to-measure design to the cart. Adding the same design again increments its quantity.",
	}, h.mcpAddCustomization)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_customization_quantity",
		Description: "Set the quantity of a design in the cart. Quantity 0 removes it.",
	}, h.mcpUpdateCustomizationQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_wishlist",
		Description: "Add a product to the wishlist, or remove it if it is already there. Requires a signed-in session.",
	}, h.mcpToggleWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_wishlist",
		Description: "List the product IDs on the wishlist.",
	}, h.mcpGetWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "view_product",
		Description: "Record that the shopper viewed a product.",
	}, h.mcpViewProduct)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "recently_viewed",
		Description: "List the most recently viewed products, newest first.",
	}, h.mcpRecentlyViewed)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpCreateSession(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input struct{},
) (*mcp.CallToolResult, *SessionOutput, error) {
	id, e := h.registry.Create()
	return nil, h.sessionOutput(id, e), nil
}

func (h *Handler) mcpLogin(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LoginInput,
) (*mcp.CallToolResult, *SessionOutput, error) {
	id, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if err := e.Login(ctx, input.Token); err != nil {
		return nil, nil, h.mcpError(e, err)
	}
	return nil, h.sessionOutput(id, e), nil
}

func (h *Handler) mcpLogout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *SessionOutput, error) {
	id, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	e.Logout()
	return nil, h.sessionOutput(id, e), nil
}

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return nil, cartOutput(e), nil
}

func (h *Handler) mcpAddItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ItemInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	qty := input.Quantity
	if qty == 0 {
		qty = 1
	}
	if err := e.AddItem(input.ProductID, input.Size, qty); err != nil {
		return nil, nil, h.mcpError(e, err)
	}
	return nil, cartOutput(e), nil
}

func (h *Handler) mcpUpdateQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ItemInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if err := e.UpdateQuantity(input.ProductID, input.Size, input.Quantity); err != nil {
		return nil, nil, h.mcpError(e, err)
	}
	return nil, cartOutput(e), nil
}

func (h *Handler) mcpRemoveItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ItemInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	e.RemoveItem(input.ProductID, input.Size)
	return nil, cartOutput(e), nil
}

func (h *Handler) mcpClearCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	e.ClearCart()
	return nil, cartOutput(e), nil
}

func (h *Handler) mcpAddCustomization(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CustomizationInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	c := model.Customization{
		ID:    input.ID,
		Name:  input.Name,
		Price: input.Price,
		Design: model.Snapshot{
			Fabric:          input.Fabric,
			Color:           input.Color,
			Measurements:    input.Measurements,
			ReferenceImages: input.ReferenceImages,
			NeckStyle:       input.NeckStyle,
			SleeveStyle:     input.SleeveStyle,
		},
	}
	if _, err := e.AddCustomization(c); err != nil {
		return nil, nil, h.mcpError(e, err)
	}
	return nil, cartOutput(e), nil
}

func (h *Handler) mcpUpdateCustomizationQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CustomizationQuantityInput,
) (*mcp.CallToolResult, *CartOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if err := e.UpdateCustomizationQuantity(input.ID, input.Quantity); err != nil {
		return nil, nil, h.mcpError(e, err)
	}
	return nil, cartOutput(e), nil
}

func (h *Handler) mcpToggleWishlist(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ProductInput,
) (*mcp.CallToolResult, *WishlistOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	member, err := e.ToggleWishlist(ctx, input.ProductID)
	if err != nil {
		return nil, nil, h.mcpError(e, err)
	}
	out := &WishlistOutput{ProductID: input.ProductID, Wishlisted: member, Items: e.Wishlist()}
	out.Notices, out.Redirect = drainSignals(e)
	return nil, out, nil
}

func (h *Handler) mcpGetWishlist(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *WishlistOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	out := &WishlistOutput{Items: e.Wishlist()}
	out.Notices, out.Redirect = drainSignals(e)
	return nil, out, nil
}

func (h *Handler) mcpViewProduct(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ProductInput,
) (*mcp.CallToolResult, *RecentOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	if _, err := e.ViewProduct(input.ProductID); err != nil {
		return nil, nil, h.mcpError(e, err)
	}
	return nil, recentOutput(e), nil
}

func (h *Handler) mcpRecentlyViewed(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, *RecentOutput, error) {
	_, e, err := h.mcpSession(&input.Meta)
	if err != nil {
		return nil, nil, err
	}
	return nil, recentOutput(e), nil
}

// === Helpers ===

// mcpSession resolves meta.session to its engine.
func (h *Handler) mcpSession(meta *MCPMeta) (string, *engine.Engine, error) {
	if meta == nil || meta.Session == "" {
		return "", nil, fmt.Errorf("VALIDATION_ERROR: meta.session is required in MCP requests")
	}
	id, e, err := h.openSession(meta.Session)
	if err != nil {
		return "", nil, h.mcpError(nil, err)
	}
	return id, e, nil
}

// mcpError converts engine errors to MCP-friendly errors. A pending login
// redirect is appended so the agent can tell the shopper to sign in again.
func (h *Handler) mcpError(e *engine.Engine, err error) error {
	redirect := ""
	if e != nil {
		if _, to := drainSignals(e); to != "" {
			redirect = " (redirect: " + to + ")"
		}
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s%s", apiErr.Code, apiErr.Message, redirect)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error%s", redirect)
}

func (h *Handler) sessionOutput(id string, e *engine.Engine) *SessionOutput {
	v := newSessionView(id, e)
	out := &SessionOutput{
		Session:   v.Session,
		Mode:      v.Mode,
		Subject:   v.Subject,
		ExpiresAt: v.ExpiresAt,
	}
	out.Notices, out.Redirect = drainSignals(e)
	return out
}

// drainSignals returns the pending notices of e and the redirect target, if any.
func drainSignals(e *engine.Engine) ([]authguard.Notice, string) {
	toLogin, notices := e.Signals()
	if toLogin {
		return notices, LoginPath
	}
	return notices, ""
}

func cartOutput(e *engine.Engine) *CartOutput {
	v := newCartView(e.Summary())
	out := &CartOutput{
		Mode:   v.Mode,
		Count:  v.Count,
		Amount: v.Amount,
		Total:  v.Total,
		Lines:  make([]CartLine, 0, len(v.Lines)),
	}
	for _, l := range v.Lines {
		line := CartLine{
			Kind:            l.Kind,
			ProductID:       l.ProductID,
			Size:            l.Size,
			CustomizationID: l.CustomizationID,
			Quantity:        l.Quantity,
			Price:           l.Price,
		}
		if l.Snapshot != nil {
			line.Fabric = l.Snapshot.Fabric
			line.Color = l.Snapshot.Color
		}
		out.Lines = append(out.Lines, line)
	}
	out.Notices, out.Redirect = drainSignals(e)
	return out
}

func recentOutput(e *engine.Engine) *RecentOutput {
	entries := e.RecentlyViewed()
	out := &RecentOutput{Items: make([]RecentEntry, 0, len(entries))}
	for _, r := range entries {
		out.Items = append(out.Items, RecentEntry{
			ProductID: r.ProductID,
			Name:      r.Name,
			Price:     r.Price,
			Category:  r.Category,
			ViewedAt:  r.ViewedAt.UTC().Format(time.RFC3339),
		})
	}
	out.Notices, out.Redirect = drainSignals(e)
	return out
}
