// Package engine is the per-session composition root.
//
// An Engine owns one shopper's session token, cart, wishlist, recently-viewed
// list, sync lanes and auth guard. Cart mutations apply locally first and are
// synced afterwards on the session's lanes; a rejected token anywhere tears
// the whole session down through the guard.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/authguard"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/recent"
	"storefront/internal/reconcile"
	"storefront/internal/remote"
	"storefront/internal/session"
	"storefront/internal/storage"
	"storefront/internal/syncer"
	"storefront/internal/wishlist"
)

// LoginPolicy decides what happens to the guest cart at login.
type LoginPolicy string

const (
	// PolicyReplace discards the guest cart in favor of the server cart.
	PolicyReplace LoginPolicy = "replace"
	// PolicyMerge unions the guest cart into the server cart and pushes the
	// difference.
	PolicyMerge LoginPolicy = "merge"
)

// ParsePolicy maps a config value to a LoginPolicy. Empty means replace.
func ParsePolicy(s string) (LoginPolicy, error) {
	switch LoginPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyMerge:
		return PolicyMerge, nil
	default:
		return "", fmt.Errorf("unknown login cart policy %q (want replace or merge)", s)
	}
}

// Config wires an Engine.
type Config struct {
	API         remote.API
	Catalog     catalog.Catalog
	Storage     *storage.Store // session-scoped local storage; nil disables persistence
	Policy      LoginPolicy
	SyncTimeout time.Duration
	RecentLimit int

	// Optional observers in addition to the engine's own inbox.
	Navigator authguard.Navigator
	Notifier  authguard.Notifier

	Logger *slog.Logger
	Now    func() time.Time
}

// Summary is the cart as a checkout page renders it.
type Summary struct {
	Mode   session.Mode `json:"mode"`
	Count  int          `json:"count"`
	Amount int64        `json:"amount"`
	Lines  []model.Line `json:"lines"`
}

// Engine is safe for concurrent use.
type Engine struct {
	// mu serializes local mutations and the enqueue of their sync calls, so
	// lane order matches mutation order. It is never held across a remote
	// call or while the guard runs.
	mu sync.Mutex

	session  *session.Holder
	cart     *cart.Store
	wishlist *wishlist.Store
	recent   *recent.Buffer
	syncer   *syncer.Syncer
	guard    *authguard.Guard
	inbox    *authguard.Inbox
	nav      authguard.Navigator

	api     remote.API
	catalog catalog.Catalog
	storage *storage.Store
	policy  LoginPolicy
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	// cached per-login data, dropped on logout and reset
	profile        *session.Claims
	customizations []model.Customization
	customLoaded   bool
}

// New builds an Engine in guest mode, restoring the guest cart from storage.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.SyncTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyReplace
	}
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.NewStatic()
	}

	e := &Engine{
		session: session.New(),
		cart:    cart.New(),
		recent:  recent.New(cfg.Storage, cfg.RecentLimit),
		inbox:   &authguard.Inbox{},
		api:     cfg.API,
		catalog: cat,
		storage: cfg.Storage,
		policy:  policy,
		timeout: timeout,
		logger:  logger,
		now:     now,
	}

	nav := navigators{e.inbox}
	if cfg.Navigator != nil {
		nav = append(nav, cfg.Navigator)
	}
	notify := notifiers{e.inbox}
	if cfg.Notifier != nil {
		notify = append(notify, cfg.Notifier)
	}

	e.nav = nav
	e.guard = authguard.New(e.reset, nav, notify, logger)
	e.syncer = syncer.New(syncer.Config{
		Timeout: timeout,
		Logger:  logger,
		OnError: func(key string, err error) { e.guard.Check(key, err) },
	})
	e.wishlist = wishlist.New(wishlist.Config{
		API:       cfg.API,
		Session:   e.session,
		Guard:     e.guard,
		Navigator: nav,
		Timeout:   timeout,
		Logger:    logger,
	})

	e.restoreGuestCart()
	return e
}

// === Session ===

// Login installs token and loads the shopper's server-side state.
// Cart and wishlist are fetched concurrently. Under PolicyReplace the server
// cart overwrites the guest cart; under PolicyMerge the guest cart is added
// on top and the difference is synced. On any error the engine stays a guest.
func (e *Engine) Login(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.NewValidationError("token", "token is required")
	}

	claims, isJWT := session.Inspect(token)
	if isJWT && claims.Expired(e.now()) {
		return model.NewUnauthorizedError("token has expired")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var serverCart model.CartState
	var wishlistIDs []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := e.api.GetCart(gctx, token)
		if err != nil {
			return fmt.Errorf("fetching cart: %w", err)
		}
		serverCart = c
		return nil
	})
	g.Go(func() error {
		ids, err := e.api.GetWishlist(gctx, token)
		if err != nil {
			return fmt.Errorf("fetching wishlist: %w", err)
		}
		wishlistIDs = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		e.logger.Warn("login failed", "error", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	guest := e.cart.State()
	e.syncer.Reset()
	e.session.Set(token)
	e.customizations, e.customLoaded = nil, false
	e.profile = nil
	if isJWT {
		e.profile = &claims
	}

	switch e.policy {
	case PolicyMerge:
		server := cart.Normalize(serverCart)
		e.cart.Replace(reconcile.MergeCarts(guest, server))
		diff := reconcile.DiffCarts(server, e.cart.State())
		e.pushDiffLocked(token, diff)
	default:
		e.cart.Replace(serverCart)
	}
	e.wishlist.Replace(wishlistIDs)

	// The server copy is authoritative from here on.
	if e.storage != nil {
		e.storage.Delete(storage.KeyGuestCart)
	}

	e.logger.Info("session authenticated",
		"subject", claims.Subject,
		"policy", string(e.policy),
		"guest_lines", len(guest.Lines()),
		"cart_lines", len(e.cart.Lines()),
	)
	return nil
}

// Logout drops the token and every piece of session state. The empty guest
// cart is persisted. No navigation happens; that is only for rejected tokens.
func (e *Engine) Logout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
	e.logger.Info("session logged out")
}

// reset is the auth guard's hook.
func (e *Engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	e.session.Clear()
	e.syncer.Reset()
	e.cart.Clear()
	e.wishlist.Clear()
	e.profile = nil
	e.customizations, e.customLoaded = nil, false
	e.persistGuestCartLocked()
}

// Mode reports guest or authenticated.
func (e *Engine) Mode() session.Mode {
	return e.session.Mode()
}

// Token returns the current session token ("" for guests).
func (e *Engine) Token() string {
	return e.session.Token()
}

// Profile returns the claims of the current token when it is a JWT.
func (e *Engine) Profile() (session.Claims, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.profile == nil {
		return session.Claims{}, false
	}
	return *e.profile, true
}

// Signals drains pending navigation and notices for the transport layer.
func (e *Engine) Signals() (redirect bool, notices []authguard.Notice) {
	return e.inbox.Drain()
}

// Wait blocks until all queued sync calls have finished.
func (e *Engine) Wait() {
	e.syncer.Wait()
}

// === Cart ===

// AddItem adds qty units of productID in size.
func (e *Engine) AddItem(productID, size string, qty int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cart.AddItem(productID, size, qty); err != nil {
		return err
	}
	e.afterCartChangeLocked(itemKey(productID, size), func(ctx context.Context, token string) error {
		return e.api.AddItem(ctx, token, remote.ItemRequest{ProductID: productID, Size: size, Quantity: qty})
	})
	return nil
}

// UpdateQuantity sets the quantity of productID in size. Zero removes it.
func (e *Engine) UpdateQuantity(productID, size string, qty int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed, err := e.cart.UpdateQuantity(productID, size, qty)
	if err != nil || !changed {
		return err
	}
	e.afterCartChangeLocked(itemKey(productID, size), func(ctx context.Context, token string) error {
		if qty == 0 {
			return e.api.RemoveItem(ctx, token, productID, size)
		}
		return e.api.UpdateItem(ctx, token, remote.ItemRequest{ProductID: productID, Size: size, Quantity: qty})
	})
	return nil
}

// RemoveItem drops productID in size. Removing an absent item is a no-op.
func (e *Engine) RemoveItem(productID, size string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cart.RemoveItem(productID, size) {
		return
	}
	e.afterCartChangeLocked(itemKey(productID, size), func(ctx context.Context, token string) error {
		return e.api.RemoveItem(ctx, token, productID, size)
	})
}

// ClearCart empties the cart.
func (e *Engine) ClearCart() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cart.Clear() {
		return
	}
	e.afterCartChangeLocked(keyCart, func(ctx context.Context, token string) error {
		return e.api.ClearCart(ctx, token)
	})
}

// CheckoutConfirmed empties the cart after the order was placed. The server
// empties its copy as part of placing the order, so nothing is synced.
func (e *Engine) CheckoutConfirmed() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cart.Clear()
	e.persistGuestCartLocked()
}

// AddCustomization puts one more unit of c in the cart and returns the
// resulting quantity.
func (e *Engine) AddCustomization(c model.Customization) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	qty, err := e.cart.AddCustomization(c)
	if err != nil {
		return 0, err
	}
	item, _ := e.cart.Customization(c.ID)
	req := remote.CustomizationRequest{CustomizationID: c.ID, Price: item.Price, Snapshot: item.Snapshot}
	e.afterCartChangeLocked(customKey(c.ID), func(ctx context.Context, token string) error {
		return e.api.AddCustomization(ctx, token, req)
	})
	return qty, nil
}

// UpdateCustomizationQuantity sets the quantity of customization id.
func (e *Engine) UpdateCustomizationQuantity(id string, qty int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed, err := e.cart.UpdateCustomizationQuantity(id, qty)
	if err != nil || !changed {
		return err
	}
	e.afterCartChangeLocked(customKey(id), func(ctx context.Context, token string) error {
		if qty == 0 {
			return e.api.RemoveCustomization(ctx, token, id)
		}
		return e.api.UpdateCustomization(ctx, token, id, qty)
	})
	return nil
}

// RemoveCustomization drops customization id from the cart.
func (e *Engine) RemoveCustomization(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cart.RemoveCustomization(id) {
		return
	}
	e.afterCartChangeLocked(customKey(id), func(ctx context.Context, token string) error {
		return e.api.RemoveCustomization(ctx, token, id)
	})
}

// Cart returns a copy of the cart.
func (e *Engine) Cart() model.CartState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.State()
}

// Summary returns count, amount at live catalog prices, and lines.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Summary{
		Mode:   e.session.Mode(),
		Count:  e.cart.Count(),
		Amount: e.cart.Amount(e.catalog),
		Lines:  e.cart.Lines(),
	}
}

// afterCartChangeLocked persists the guest cart, or for a signed-in shopper
// queues call on the lane for key.
func (e *Engine) afterCartChangeLocked(key string, call func(ctx context.Context, token string) error) {
	token := e.session.Token()
	if token == "" {
		e.persistGuestCartLocked()
		return
	}
	e.syncer.Enqueue(key, func(ctx context.Context) error {
		return call(ctx, token)
	})
}

// pushDiffLocked queues the calls that bring the server cart to the merged
// state. Removals first, then updates, then adds.
func (e *Engine) pushDiffLocked(token string, diff *reconcile.CartDiff) {
	if diff.IsEmpty() {
		return
	}
	e.logger.Debug("pushing merged guest cart", "ops", diff.Count())

	for _, r := range diff.ToRemove {
		r := r
		e.syncer.Enqueue(itemKey(r.ProductID, r.Size), func(ctx context.Context) error {
			return e.api.RemoveItem(ctx, token, r.ProductID, r.Size)
		})
	}
	for _, id := range diff.CustomToRemove {
		id := id
		e.syncer.Enqueue(customKey(id), func(ctx context.Context) error {
			return e.api.RemoveCustomization(ctx, token, id)
		})
	}
	for _, u := range diff.ToUpdate {
		u := u
		e.syncer.Enqueue(itemKey(u.ProductID, u.Size), func(ctx context.Context) error {
			return e.api.UpdateItem(ctx, token, remote.ItemRequest{ProductID: u.ProductID, Size: u.Size, Quantity: u.NewQuantity})
		})
	}
	for _, u := range diff.CustomToUpdate {
		u := u
		e.syncer.Enqueue(customKey(u.CustomizationID), func(ctx context.Context) error {
			return e.api.UpdateCustomization(ctx, token, u.CustomizationID, u.NewQuantity)
		})
	}
	for _, a := range diff.ToAdd {
		a := a
		e.syncer.Enqueue(itemKey(a.ProductID, a.Size), func(ctx context.Context) error {
			return e.api.AddItem(ctx, token, remote.ItemRequest{ProductID: a.ProductID, Size: a.Size, Quantity: a.Quantity})
		})
	}
	for _, a := range diff.CustomToAdd {
		a := a
		e.syncer.Enqueue(customKey(a.CustomizationID), func(ctx context.Context) error {
			req := remote.CustomizationRequest{CustomizationID: a.CustomizationID, Price: a.Item.Price, Snapshot: a.Item.Snapshot}
			if err := e.api.AddCustomization(ctx, token, req); err != nil {
				return err
			}
			if a.Item.Quantity > 1 {
				return e.api.UpdateCustomization(ctx, token, a.CustomizationID, a.Item.Quantity)
			}
			return nil
		})
	}
}

func (e *Engine) persistGuestCartLocked() {
	if e.storage == nil || e.session.Token() != "" {
		return
	}
	e.storage.Persist(storage.KeyGuestCart, e.cart.State())
}

func (e *Engine) restoreGuestCart() {
	if e.storage == nil {
		return
	}
	var saved model.CartState
	ok, err := e.storage.Load(storage.KeyGuestCart, &saved)
	if err != nil {
		e.logger.Warn("discarding unreadable guest cart", "error", err)
		return
	}
	if ok {
		e.cart.Replace(saved)
	}
}

// Lane keys. A product size and a customization each get their own lane;
// whole-cart operations share one.
const keyCart = "cart"

func itemKey(productID, size string) string { return "item:" + productID + "/" + size }
func customKey(id string) string            { return "custom:" + id }

// === Wishlist ===

// ToggleWishlist flips membership and reports whether productID is now a
// member.
func (e *Engine) ToggleWishlist(ctx context.Context, productID string) (bool, error) {
	return e.wishlist.Toggle(ctx, productID)
}

// AddToWishlist adds productID explicitly.
func (e *Engine) AddToWishlist(ctx context.Context, productID string) (wishlist.Result, error) {
	return e.wishlist.Add(ctx, productID)
}

// RemoveFromWishlist removes productID explicitly.
func (e *Engine) RemoveFromWishlist(ctx context.Context, productID string) (wishlist.Result, error) {
	return e.wishlist.Remove(ctx, productID)
}

// Wishlist returns the member product ids.
func (e *Engine) Wishlist() []string {
	if ids := e.wishlist.Items(); ids != nil {
		return ids
	}
	return []string{}
}

// === Recently viewed ===

// ViewProduct records a product view. Unknown products are rejected.
func (e *Engine) ViewProduct(productID string) (model.RecentEntry, error) {
	p, ok := e.catalog.Lookup(productID)
	if !ok {
		return model.RecentEntry{}, model.NewNotFoundError("product")
	}
	now := e.now()
	e.recent.View(p, now)
	return model.NewRecentEntry(p, now), nil
}

// RecentlyViewed returns the list refreshed against the live catalog.
func (e *Engine) RecentlyViewed() []model.RecentEntry {
	return e.recent.List(e.catalog)
}
