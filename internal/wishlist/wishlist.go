// Package wishlist holds the signed-in shopper's wishlist.
//
// The server owns the set: every mutation is one round trip and the set it
// returns replaces the local copy. Guests have no wishlist; their attempts are
// redirected to login and leave nothing behind.
package wishlist

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"storefront/internal/authguard"
	"storefront/internal/model"
	"storefront/internal/remote"
	"storefront/internal/session"
)

// Result reports what an explicit Add or Remove did.
type Result int

const (
	ResultAdded Result = iota
	ResultRemoved
	ResultAlreadyPresent // add of a member; non-fatal
	ResultNotPresent     // remove of a non-member; non-fatal
)

func (r Result) String() string {
	switch r {
	case ResultAdded:
		return "added"
	case ResultRemoved:
		return "removed"
	case ResultAlreadyPresent:
		return "already_present"
	case ResultNotPresent:
		return "not_present"
	default:
		return "unknown"
	}
}

// Config wires a Store to its session.
type Config struct {
	API       remote.API
	Session   *session.Holder
	Guard     *authguard.Guard
	Navigator authguard.Navigator
	Timeout   time.Duration // per call; default 10s
	Logger    *slog.Logger
}

// Store is safe for concurrent use. Its lock is never held across a remote
// call, so the auth guard's reset hook may call Clear from inside a failing
// operation.
type Store struct {
	mu  sync.RWMutex
	ids []string

	api     remote.API
	session *session.Holder
	guard   *authguard.Guard
	nav     authguard.Navigator
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an empty wishlist.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		ids:     []string{},
		api:     cfg.API,
		session: cfg.Session,
		guard:   cfg.Guard,
		nav:     cfg.Navigator,
		timeout: timeout,
		logger:  logger,
	}
}

// Toggle flips membership of productID and reports whether it is now a
// member, as decided by the server.
func (s *Store) Toggle(ctx context.Context, productID string) (bool, error) {
	token, err := s.begin(productID)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.api.ToggleWishlist(ctx, token, productID)
	if err != nil {
		s.guard.Check("toggle_wishlist", err)
		return false, err
	}
	s.apply(token, ids)
	return slices.Contains(ids, productID), nil
}

// Add makes productID a member.
func (s *Store) Add(ctx context.Context, productID string) (Result, error) {
	token, err := s.begin(productID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.api.AddToWishlist(ctx, token, productID)
	switch {
	case errors.Is(err, model.ErrConflict):
		s.mutate(token, func(cur []string) []string {
			if slices.Contains(cur, productID) {
				return cur
			}
			return append(cur, productID)
		})
		return ResultAlreadyPresent, nil
	case err != nil:
		s.guard.Check("add_to_wishlist", err)
		return 0, err
	}
	s.apply(token, ids)
	return ResultAdded, nil
}

// Remove drops productID from the wishlist.
func (s *Store) Remove(ctx context.Context, productID string) (Result, error) {
	token, err := s.begin(productID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ids, err := s.api.RemoveFromWishlist(ctx, token, productID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		s.mutate(token, func(cur []string) []string {
			return slices.DeleteFunc(cur, func(id string) bool { return id == productID })
		})
		return ResultNotPresent, nil
	case err != nil:
		s.guard.Check("remove_from_wishlist", err)
		return 0, err
	}
	s.apply(token, ids)
	return ResultRemoved, nil
}

// Replace overwrites the local set, e.g. with the copy fetched at login.
func (s *Store) Replace(ids []string) {
	s.mu.Lock()
	s.ids = dedupe(ids)
	s.mu.Unlock()
}

// Clear empties the local set.
func (s *Store) Clear() {
	s.mu.Lock()
	s.ids = []string{}
	s.mu.Unlock()
}

// Contains reports whether productID is a member.
func (s *Store) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.ids, productID)
}

// Items returns a copy of the member ids in server order.
func (s *Store) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.ids)
}

// begin validates the call and returns the token to use. Guests are sent
// to login.
func (s *Store) begin(productID string) (string, error) {
	if strings.TrimSpace(productID) == "" {
		return "", model.NewValidationError("product_id", "product is required")
	}
	token := s.session.Token()
	if token == "" {
		if s.nav != nil {
			s.nav.ToLogin()
		}
		return "", model.NewLoginRequiredError("the wishlist")
	}
	return token, nil
}

// apply installs a server-returned set unless the session changed while the
// call was in flight.
func (s *Store) apply(token string, ids []string) {
	s.mutate(token, func([]string) []string { return dedupe(ids) })
}

func (s *Store) mutate(token string, fn func([]string) []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Token() != token {
		s.logger.Debug("discarding wishlist response from previous session")
		return
	}
	s.ids = fn(s.ids)
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
