package handler

import (
	"net/http"

	"storefront/internal/engine"
	"storefront/internal/model"
)

// === Views ===

// lineView flattens the two cart line kinds into one tagged JSON shape.
type lineView struct {
	Kind            string          `json:"kind"` // "standard" or "custom"
	ProductID       string          `json:"productId,omitempty"`
	Size            string          `json:"size,omitempty"`
	CustomizationID string          `json:"customizationId,omitempty"`
	Quantity        int             `json:"quantity"`
	Price           int64           `json:"price,omitempty"`
	Snapshot        *model.Snapshot `json:"snapshot,omitempty"`
}

type cartView struct {
	Mode   string     `json:"mode"`
	Count  int        `json:"count"`
	Amount int64      `json:"amount"`
	Total  string     `json:"total"`
	Lines  []lineView `json:"lines"`
}

func newCartView(s engine.Summary) cartView {
	v := cartView{
		Mode:   string(s.Mode),
		Count:  s.Count,
		Amount: s.Amount,
		Total:  model.FormatCents(s.Amount),
		Lines:  make([]lineView, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		switch l := l.(type) {
		case model.StandardLine:
			v.Lines = append(v.Lines, lineView{
				Kind:      "standard",
				ProductID: l.ProductID,
				Size:      l.Size,
				Quantity:  l.Quantity,
			})
		case model.CustomLine:
			snap := l.Snapshot
			v.Lines = append(v.Lines, lineView{
				Kind:            "custom",
				CustomizationID: l.CustomizationID,
				Quantity:        l.Quantity,
				Price:           l.Price,
				Snapshot:        &snap,
			})
		}
	}
	return v
}

type wishlistView struct {
	Items []string `json:"items"`
}

type wishlistChangeView struct {
	ProductID  string   `json:"productId"`
	Wishlisted bool     `json:"wishlisted"`
	Result     string   `json:"result,omitempty"`
	Items      []string `json:"items"`
}

type recentView struct {
	Items []model.RecentEntry `json:"items"`
}

// === Cart ===

type itemRequest struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  *int   `json:"quantity,omitempty"`
}

// quantity returns the requested quantity, or def when none was sent.
func (r itemRequest) quantity(def int) int {
	if r.Quantity == nil {
		return def
	}
	return *r.Quantity
}

type customizationQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// sessionHandler serves a request for a resolved session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, e *engine.Engine)

// withSession resolves the Storefront-Session header before calling fn.
func (h *Handler) withSession(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, e, err := h.sessionFromRequest(r)
		if err != nil {
			h.writeError(w, err)
			return
		}
		fn(w, r, e)
	}
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	e.ClearCart()
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, e, err)
		return
	}
	if err := e.AddItem(req.ProductID, req.Size, req.quantity(1)); err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	var req itemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, e, err)
		return
	}
	if req.Quantity == nil {
		h.respondError(w, e, model.NewValidationError("quantity", "quantity is required"))
		return
	}
	if err := e.UpdateQuantity(req.ProductID, req.Size, *req.Quantity); err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	e.RemoveItem(r.PathValue("productId"), r.PathValue("size"))
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleAddCustomization(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	var c model.Customization
	if err := decodeJSON(r, &c); err != nil {
		h.respondError(w, e, err)
		return
	}
	if _, err := e.AddCustomization(c); err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleUpdateCustomization(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	var req customizationQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, e, err)
		return
	}
	if err := e.UpdateCustomizationQuantity(r.PathValue("id"), req.Quantity); err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleRemoveCustomization(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	e.RemoveCustomization(r.PathValue("id"))
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

func (h *Handler) handleCheckoutConfirmed(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	e.CheckoutConfirmed()
	h.respond(w, e, http.StatusOK, newCartView(e.Summary()))
}

// === Wishlist ===

func (h *Handler) handleGetWishlist(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	h.respond(w, e, http.StatusOK, wishlistView{Items: e.Wishlist()})
}

func (h *Handler) handleToggleWishlist(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	id := r.PathValue("productId")
	member, err := e.ToggleWishlist(r.Context(), id)
	if err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, wishlistChangeView{
		ProductID:  id,
		Wishlisted: member,
		Items:      e.Wishlist(),
	})
}

func (h *Handler) handleAddToWishlist(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	id := r.PathValue("productId")
	res, err := e.AddToWishlist(r.Context(), id)
	if err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, wishlistChangeView{
		ProductID:  id,
		Wishlisted: true,
		Result:     res.String(),
		Items:      e.Wishlist(),
	})
}

func (h *Handler) handleRemoveFromWishlist(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	id := r.PathValue("productId")
	res, err := e.RemoveFromWishlist(r.Context(), id)
	if err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, wishlistChangeView{
		ProductID:  id,
		Wishlisted: false,
		Result:     res.String(),
		Items:      e.Wishlist(),
	})
}

// === Recently viewed ===

func (h *Handler) handleGetRecent(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	h.respond(w, e, http.StatusOK, recentView{Items: e.RecentlyViewed()})
}

func (h *Handler) handleViewProduct(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	if _, err := e.ViewProduct(r.PathValue("productId")); err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, recentView{Items: e.RecentlyViewed()})
}

// === Saved designs ===

type customizationsView struct {
	Items []model.Customization `json:"items"`
}

func (h *Handler) handleListCustomizations(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	records, err := e.Customizations(r.Context())
	if err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, customizationsView{Items: records})
}

func (h *Handler) handleSaveCustomization(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	var c model.Customization
	if err := decodeJSON(r, &c); err != nil {
		h.respondError(w, e, err)
		return
	}
	status := http.StatusOK
	if c.ID == "" {
		status = http.StatusCreated
	}
	saved, err := e.SaveCustomization(r.Context(), c)
	if err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, status, saved)
}

func (h *Handler) handleSubmitCustomization(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	submitted, err := e.SubmitCustomization(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, submitted)
}

func (h *Handler) handleDeleteCustomization(w http.ResponseWriter, r *http.Request, e *engine.Engine) {
	if err := e.DeleteCustomization(r.Context(), r.PathValue("id")); err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, nil)
}
