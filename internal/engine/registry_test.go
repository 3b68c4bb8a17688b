package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"storefront/internal/remote"
	"storefront/internal/storage"
)

func newTestRegistry(fs afero.Fs) *Registry {
	root := storage.New(fs, "/data", testLogger())
	return NewRegistry(func(id string) *Engine {
		return New(Config{
			API:     &remote.Mock{},
			Catalog: testCatalog(),
			Storage: root.Sub(id),
			Logger:  testLogger(),
		})
	}, func(id string) bool {
		return root.Sub(id).Exists()
	}, testLogger())
}

func TestRegistrySessionsAreIsolated(t *testing.T) {
	r := newTestRegistry(afero.NewMemMapFs())

	idA, a := r.Create()
	idB, b := r.Create()
	if idA == idB {
		t.Fatal("duplicate session ids")
	}
	if _, err := uuid.Parse(idA); err != nil {
		t.Errorf("session id %q is not a UUID", idA)
	}

	a.AddItem("P1", "M", 1)
	if !b.Cart().IsEmpty() {
		t.Error("mutation leaked across sessions")
	}
	if got, ok := r.Open(idA); !ok || got != a {
		t.Error("Open did not return the existing engine")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestRegistryReopensFromStorage(t *testing.T) {
	fs := afero.NewMemMapFs()
	id, e := newTestRegistry(fs).Create()
	e.AddItem("P1", "M", 2)

	// A fresh registry, as after a restart.
	reopened, ok := newTestRegistry(fs).Open(id)
	if !ok {
		t.Fatal("Open() of a known id failed")
	}
	if reopened.Cart().Items["P1"]["M"] != 2 {
		t.Errorf("reopened cart = %+v", reopened.Cart())
	}
}

func TestRegistryRejectsMalformedIDs(t *testing.T) {
	r := newTestRegistry(afero.NewMemMapFs())
	for _, id := range []string{"", "../etc", "not-a-uuid"} {
		if _, ok := r.Open(id); ok {
			t.Errorf("Open(%q) succeeded", id)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after rejected opens", r.Len())
	}
}

func TestRegistryClose(t *testing.T) {
	r := newTestRegistry(afero.NewMemMapFs())
	id, _ := r.Create()

	if !r.Close(id) {
		t.Error("Close() of a live session = false")
	}
	if r.Close(id) {
		t.Error("second Close() = true")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d", r.Len())
	}
}

func TestRegistryDoesNotOpenUnknownIDs(t *testing.T) {
	r := newTestRegistry(afero.NewMemMapFs())
	for i := 0; i < 3; i++ {
		if _, ok := r.Open(uuid.NewString()); ok {
			t.Error("Open() of a never-created id succeeded")
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after opens of unknown ids", r.Len())
	}
}

func TestRegistryWithoutPersistenceNeverReopens(t *testing.T) {
	r := NewRegistry(func(id string) *Engine {
		return New(Config{API: &remote.Mock{}, Catalog: testCatalog(), Logger: testLogger()})
	}, nil, testLogger())

	id, e := r.Create()
	if got, ok := r.Open(id); !ok || got != e {
		t.Error("Open() of a loaded session failed")
	}
	r.Close(id)
	if _, ok := r.Open(id); ok {
		t.Error("Open() reopened a closed session without persistence")
	}
}
