// Package session holds the authentication token of one shopper session and
// the mode derived from it.
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Mode is derived from token presence.
type Mode string

const (
	// ModeGuest keeps state local only; nothing is synced.
	ModeGuest Mode = "guest"
	// ModeAuthenticated syncs every mutation to the storefront API.
	ModeAuthenticated Mode = "authenticated"
)

// Holder owns the current token. Safe for concurrent use.
type Holder struct {
	mu    sync.RWMutex
	token string
}

// New returns a guest session.
func New() *Holder {
	return &Holder{}
}

// Set installs token; an empty token means guest.
func (h *Holder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Clear drops the token and returns the session to guest mode.
func (h *Holder) Clear() {
	h.Set("")
}

// Token returns the current token ("" for guests).
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Mode reports guest or authenticated.
func (h *Holder) Mode() Mode {
	if h.Token() == "" {
		return ModeGuest
	}
	return ModeAuthenticated
}

// Authenticated is shorthand for Mode() == ModeAuthenticated.
func (h *Holder) Authenticated() bool {
	return h.Mode() == ModeAuthenticated
}

// Claims is the subset of token claims the engine cares about.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no expiry
}

// Inspect reads claims from a JWT token without verifying its signature.
// The storefront API is the only party that validates tokens; the engine
// reads them for logging and to reject tokens that are already expired.
// Opaque (non-JWT) tokens return ok=false.
func Inspect(token string) (Claims, bool) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, false
	}

	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt != nil {
		c.ExpiresAt = rc.ExpiresAt.Time
	}
	return c, true
}

// Expired reports whether c has an expiry at or before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
