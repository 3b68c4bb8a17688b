// Package recent keeps the recently-viewed products list.
// The list lives in local storage only: it survives login and logout and is
// never sent to the storefront API.
package recent

import (
	"slices"
	"sync"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/storage"
)

// DefaultLimit is how many products the list keeps. It is also the ceiling:
// a smaller limit may be configured, never a larger one.
const DefaultLimit = 5

// Buffer is a most-recent-first list, unique by product id.
// Safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []model.RecentEntry
	limit   int
	store   *storage.Store // nil disables persistence
}

// New restores the buffer from store. A limit outside 1..DefaultLimit uses
// DefaultLimit. An unreadable document starts an empty list.
func New(store *storage.Store, limit int) *Buffer {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	b := &Buffer{entries: []model.RecentEntry{}, limit: limit, store: store}
	if store != nil {
		var saved []model.RecentEntry
		if ok, err := store.Load(storage.KeyRecentlyViewed, &saved); err == nil && ok {
			b.entries = normalize(saved, limit)
		}
	}
	return b
}

// View records that p was viewed at now. A product already in the list moves
// to the front with the new timestamp.
func (b *Buffer) View(p model.Product, now time.Time) {
	if p.ID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := slices.DeleteFunc(b.entries, func(e model.RecentEntry) bool {
		return e.ProductID == p.ID
	})
	entries = slices.Insert(entries, 0, model.NewRecentEntry(p, now))
	if len(entries) > b.limit {
		entries = entries[:b.limit]
	}
	b.entries = entries
	b.persistLocked()
}

// List returns the entries refreshed against cat: name, price and images come
// from the live catalog and products it no longer has are dropped. The
// refreshed list is written back when anything changed.
func (b *Buffer) List(cat catalog.Catalog) []model.RecentEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false
	out := make([]model.RecentEntry, 0, len(b.entries))
	for _, e := range b.entries {
		p, ok := cat.Lookup(e.ProductID)
		if !ok {
			changed = true
			continue
		}
		fresh := model.NewRecentEntry(p, e.ViewedAt)
		if !sameListing(e, fresh) {
			changed = true
		}
		out = append(out, fresh)
	}

	if changed {
		b.entries = out
		b.persistLocked()
	}
	return cloneEntries(out)
}

// Entries returns the stored entries without consulting a catalog.
func (b *Buffer) Entries() []model.RecentEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneEntries(b.entries)
}

func (b *Buffer) persistLocked() {
	if b.store != nil {
		b.store.Persist(storage.KeyRecentlyViewed, b.entries)
	}
}

func sameListing(a, b model.RecentEntry) bool {
	return a.Name == b.Name &&
		a.Price == b.Price &&
		a.Category == b.Category &&
		a.SubCategory == b.SubCategory &&
		slices.Equal(a.Images, b.Images)
}

// normalize repairs a restored list: drops blank and duplicate ids and
// enforces the cap.
func normalize(entries []model.RecentEntry, limit int) []model.RecentEntry {
	out := make([]model.RecentEntry, 0, limit)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ProductID == "" || seen[e.ProductID] {
			continue
		}
		seen[e.ProductID] = true
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out
}

func cloneEntries(entries []model.RecentEntry) []model.RecentEntry {
	out := make([]model.RecentEntry, len(entries))
	for i, e := range entries {
		e.Images = slices.Clone(e.Images)
		out[i] = e
	}
	return out
}
