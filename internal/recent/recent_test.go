package recent

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"

	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/storage"
)

func newStore(fs afero.Fs) *storage.Store {
	return storage.New(fs, "/data", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func product(id string, price int64) model.Product {
	return model.Product{ID: id, Name: "Product " + id, Price: price, Images: []string{id + ".jpg"}}
}

func ids(entries []model.RecentEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ProductID
	}
	return out
}

func TestViewCapsAndOrders(t *testing.T) {
	b := New(nil, 0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 7; i++ {
		b.View(product(fmt.Sprintf("P%d", i), 100), base.Add(time.Duration(i)*time.Minute))
	}

	got := ids(b.Entries())
	want := []string{"P7", "P6", "P5", "P4", "P3"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestLimitNeverExceedsDefault(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultLimit},
		{-1, DefaultLimit},
		{3, 3},
		{DefaultLimit, DefaultLimit},
		{10, DefaultLimit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit %d", tt.limit), func(t *testing.T) {
			b := New(nil, tt.limit)
			for i := 1; i <= 7; i++ {
				b.View(product(fmt.Sprintf("P%d", i), 100), base.Add(time.Duration(i)*time.Minute))
			}
			if got := len(b.Entries()); got != tt.want {
				t.Errorf("len = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReviewMovesToFrontWithNewTimestamp(t *testing.T) {
	b := New(nil, 0)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b.View(product("A", 100), t0)
	b.View(product("B", 100), t0.Add(time.Minute))
	b.View(product("A", 100), t0.Add(2*time.Minute))

	entries := b.Entries()
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2 (unique by product)", len(entries))
	}
	if entries[0].ProductID != "A" {
		t.Errorf("front = %s, want A", entries[0].ProductID)
	}
	if !entries[0].ViewedAt.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("ViewedAt = %v, want re-view time", entries[0].ViewedAt)
	}
}

func TestListRefreshesAndPrunes(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := New(newStore(fs), 0)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.View(product("GONE", 100), now)
	b.View(product("P1", 100), now)

	repriced := product("P1", 250)
	repriced.Name = "Renamed"
	cat := catalog.NewStatic(repriced)

	list := b.List(cat)
	if len(list) != 1 || list[0].ProductID != "P1" {
		t.Fatalf("List() = %+v, want only P1", list)
	}
	if list[0].Price != 250 || list[0].Name != "Renamed" {
		t.Errorf("entry not refreshed: %+v", list[0])
	}
	if !list[0].ViewedAt.Equal(now) {
		t.Error("refresh changed the view timestamp")
	}

	// The pruned list was written back.
	reloaded := New(newStore(fs), 0)
	if got := ids(reloaded.Entries()); len(got) != 1 || got[0] != "P1" {
		t.Errorf("persisted entries = %v", got)
	}
}

func TestPersistenceSurvivesRestart(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := New(newStore(fs), 0)
	b.View(product("P1", 100), time.Now())
	b.View(product("P2", 100), time.Now())

	restored := New(newStore(fs), 0)
	if got := ids(restored.Entries()); fmt.Sprint(got) != "[P2 P1]" {
		t.Errorf("restored = %v", got)
	}
}

func TestRestoredDocumentIsNormalized(t *testing.T) {
	fs := afero.NewMemMapFs()
	st := newStore(fs)
	st.Save(storage.KeyRecentlyViewed, []model.RecentEntry{
		{ProductID: "A"}, {ProductID: "A"}, {ProductID: ""},
		{ProductID: "B"}, {ProductID: "C"}, {ProductID: "D"}, {ProductID: "E"}, {ProductID: "F"},
	})

	b := New(st, 0)
	if got := ids(b.Entries()); fmt.Sprint(got) != "[A B C D E]" {
		t.Errorf("entries = %v", got)
	}
}

func TestWriteFailureKeepsMemory(t *testing.T) {
	b := New(newStore(afero.NewReadOnlyFs(afero.NewMemMapFs())), 0)
	b.View(product("P1", 100), time.Now())

	if got := ids(b.Entries()); len(got) != 1 {
		t.Errorf("entries = %v, want P1 kept in memory", got)
	}
}
