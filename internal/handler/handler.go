// Package handler provides the HTTP and MCP surfaces of the storefront daemon.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/authguard"
	"storefront/internal/engine"
	"storefront/internal/model"
)

// LoginPath is where a shopper is sent after their session is torn down.
const LoginPath = "/login"

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry *engine.Registry
	logger   *slog.Logger
}

// New creates a new Handler over the given session registry.
func New(registry *engine.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Sessions and authentication
	mux.HandleFunc("POST /sessions", h.handleCreateSession)
	mux.HandleFunc("DELETE /sessions", h.handleCloseSession)
	mux.HandleFunc("GET /session", h.handleGetSession)
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /logout", h.handleLogout)

	// Cart
	mux.HandleFunc("GET /cart", h.withSession(h.handleGetCart))
	mux.HandleFunc("DELETE /cart", h.withSession(h.handleClearCart))
	mux.HandleFunc("POST /cart/items", h.withSession(h.handleAddItem))
	mux.HandleFunc("PATCH /cart/items", h.withSession(h.handleUpdateItem))
	mux.HandleFunc("DELETE /cart/items/{productId}/{size}", h.withSession(h.handleRemoveItem))
	mux.HandleFunc("POST /cart/customizations", h.withSession(h.handleAddCustomization))
	mux.HandleFunc("PATCH /cart/customizations/{id}", h.withSession(h.handleUpdateCustomization))
	mux.HandleFunc("DELETE /cart/customizations/{id}", h.withSession(h.handleRemoveCustomization))
	mux.HandleFunc("POST /cart/checkout-confirmed", h.withSession(h.handleCheckoutConfirmed))

	// Wishlist
	mux.HandleFunc("GET /wishlist", h.withSession(h.handleGetWishlist))
	mux.HandleFunc("POST /wishlist/{productId}/toggle", h.withSession(h.handleToggleWishlist))
	mux.HandleFunc("POST /wishlist/{productId}", h.withSession(h.handleAddToWishlist))
	mux.HandleFunc("DELETE /wishlist/{productId}", h.withSession(h.handleRemoveFromWishlist))

	// Recently viewed
	mux.HandleFunc("GET /recent", h.withSession(h.handleGetRecent))
	mux.HandleFunc("POST /recent/{productId}", h.withSession(h.handleViewProduct))

	// Saved designs
	mux.HandleFunc("GET /customizations", h.withSession(h.handleListCustomizations))
	mux.HandleFunc("POST /customizations", h.withSession(h.handleSaveCustomization))
	mux.HandleFunc("POST /customizations/{id}/submit", h.withSession(h.handleSubmitCustomization))
	mux.HandleFunc("DELETE /customizations/{id}", h.withSession(h.handleDeleteCustomization))

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Sessions ===

type sessionView struct {
	Session   string `json:"session"`
	Mode      string `json:"mode"`
	Subject   string `json:"subject,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func newSessionView(id string, e *engine.Engine) sessionView {
	v := sessionView{Session: id, Mode: string(e.Mode())}
	if claims, ok := e.Profile(); ok {
		v.Subject = claims.Subject
		if !claims.ExpiresAt.IsZero() {
			v.ExpiresAt = claims.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return v
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, e := h.registry.Create()
	w.Header().Set(SessionHeader, formatSessionHeader(id))
	h.respond(w, e, http.StatusCreated, newSessionView(id, e))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionHeader(r.Header.Get(SessionHeader))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !h.registry.Close(id) {
		h.writeError(w, model.NewNotFoundError("session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, e, err := h.sessionFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, e, http.StatusOK, newSessionView(id, e))
}

type loginRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	id, e, err := h.sessionFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := e.Login(r.Context(), req.Token); err != nil {
		h.respondError(w, e, err)
		return
	}
	h.respond(w, e, http.StatusOK, newSessionView(id, e))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, e, err := h.sessionFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	e.Logout()
	h.respond(w, e, http.StatusOK, newSessionView(id, e))
}

// === Health ===

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Sessions: h.registry.Len(),
	})
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// === Response Helpers ===

// envelope carries a payload plus the guard signals raised while serving it.
type envelope struct {
	Data     any                `json:"data,omitempty"`
	Notices  []authguard.Notice `json:"notices,omitempty"`
	Redirect string             `json:"redirect,omitempty"`
}

// respond writes data with any pending navigation and notices of e.
func (h *Handler) respond(w http.ResponseWriter, e *engine.Engine, status int, data any) {
	env := envelope{Data: data}
	h.attachSignals(e, &env.Notices, &env.Redirect)
	h.writeJSON(w, status, env)
}

// respondError writes err with any pending navigation and notices of e.
func (h *Handler) respondError(w http.ResponseWriter, e *engine.Engine, err error) {
	apiErr := h.toAPIError(err)
	resp := errorResponse{Error: errorBody{Code: apiErr.Code, Message: apiErr.Message}}
	h.attachSignals(e, &resp.Notices, &resp.Redirect)
	h.writeJSON(w, apiErr.StatusCode, resp)
}

func (h *Handler) attachSignals(e *engine.Engine, notices *[]authguard.Notice, redirect *string) {
	toLogin, pending := e.Signals()
	*notices = pending
	if toLogin {
		*redirect = LoginPath
	}
}

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	apiErr := h.toAPIError(err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// toAPIError uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	h.logger.Error("internal error", slog.String("error", err.Error()))
	return model.NewInternalError(err)
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error    errorBody          `json:"error"`
	Notices  []authguard.Notice `json:"notices,omitempty"`
	Redirect string             `json:"redirect,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
