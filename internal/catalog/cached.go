package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront/internal/model"
)

// Source lists the full product catalog. Implemented by remote.Client.
type Source interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// DefaultTTL is how long a fetched catalog is served before refreshing.
const DefaultTTL = 5 * time.Minute

// DefaultFetchTimeout bounds a refresh triggered from Lookup.
const DefaultFetchTimeout = 5 * time.Second

// CachedConfig configures a Cached catalog.
type CachedConfig struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Cached serves a catalog snapshot fetched from a Source.
// A stale snapshot is refreshed on the next Lookup; concurrent refreshes
// collapse into one fetch, and a failed refresh keeps serving the stale
// snapshot (best effort).
type Cached struct {
	source Source
	config CachedConfig
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time

	mu        sync.RWMutex
	snapshot  *Static
	expiresAt time.Time
}

// NewCached creates a catalog backed by source. Nothing is fetched until the
// first Lookup or Refresh.
func NewCached(source Source, config CachedConfig) *Cached {
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = DefaultFetchTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		source:   source,
		config:   config,
		logger:   logger,
		now:      time.Now,
		snapshot: NewStatic(),
	}
}

// Refresh fetches the catalog now, sharing the result with any refresh
// already in flight.
func (c *Cached) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("products", func() (interface{}, error) {
		products, err := c.source.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch catalog: %w", err)
		}

		c.mu.Lock()
		c.snapshot = NewStatic(products...)
		c.expiresAt = c.now().Add(c.config.TTL)
		c.mu.Unlock()

		c.logger.Debug("catalog refreshed", slog.Int("products", len(products)))
		return nil, nil
	})
	return err
}

// Lookup implements Catalog.
func (c *Cached) Lookup(productID string) (model.Product, bool) {
	if c.stale() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn("serving stale catalog", slog.String("error", err.Error()))
		}
		cancel()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Lookup(productID)
}

func (c *Cached) stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.expiresAt.After(c.now())
}

var _ Catalog = (*Cached)(nil)
