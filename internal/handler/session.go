package handler

import (
	"net/http"

	"github.com/dunglas/httpsfv"

	"storefront/internal/engine"
	"storefront/internal/model"
)

// SessionHeader identifies the shopper session on every request.
// Format is an RFC 8941 dictionary: Storefront-Session: sid="<id>"
const SessionHeader = "Storefront-Session"

// parseSessionHeader extracts the sid member from the header value.
func parseSessionHeader(value string) (string, error) {
	if value == "" {
		return "", model.NewValidationError(SessionHeader, "header is required")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{value})
	if err != nil {
		return "", model.NewValidationError(SessionHeader, "invalid structured field syntax")
	}

	member, ok := dict.Get("sid")
	if !ok {
		return "", model.NewValidationError(SessionHeader, "missing sid")
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", model.NewValidationError(SessionHeader, "sid must be an item")
	}
	sid, ok := item.Value.(string)
	if !ok || sid == "" {
		return "", model.NewValidationError(SessionHeader, "sid must be a non-empty string")
	}
	return sid, nil
}

// formatSessionHeader renders id as a Storefront-Session header value.
func formatSessionHeader(id string) string {
	dict := httpsfv.NewDictionary()
	dict.Add("sid", httpsfv.NewItem(id))
	value, err := httpsfv.Marshal(dict)
	if err != nil {
		// strings always serialize; fall back to the literal form
		return `sid="` + id + `"`
	}
	return value
}

// sessionFromRequest resolves the engine named by the session header.
func (h *Handler) sessionFromRequest(r *http.Request) (string, *engine.Engine, error) {
	id, err := parseSessionHeader(r.Header.Get(SessionHeader))
	if err != nil {
		return "", nil, err
	}
	return h.openSession(id)
}

func (h *Handler) openSession(id string) (string, *engine.Engine, error) {
	e, ok := h.registry.Open(id)
	if !ok {
		return "", nil, model.NewNotFoundError("session")
	}
	return id, e, nil
}
