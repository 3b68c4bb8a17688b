package engine

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Factory builds the engine for a session id.
type Factory func(id string) *Engine

// Persisted reports whether a session left state in local storage.
type Persisted func(id string) bool

// Registry maps opaque session ids to isolated engines.
// Ids are random UUIDs. An id that is not loaded (for example after a daemon
// restart) is reopened through the factory only when persisted reports it
// left state behind; any other id is unknown. Clients cannot grow the map by
// inventing ids.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Engine
	factory   Factory
	persisted Persisted
	logger    *slog.Logger
}

// NewRegistry creates an empty registry. A nil persisted disables reopening.
func NewRegistry(factory Factory, persisted Persisted, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if persisted == nil {
		persisted = func(string) bool { return false }
	}
	return &Registry{
		sessions:  make(map[string]*Engine),
		factory:   factory,
		persisted: persisted,
		logger:    logger,
	}
}

// Create starts a new guest session.
func (r *Registry) Create() (string, *Engine) {
	id := uuid.NewString()
	e := r.factory(id)

	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	r.logger.Debug("session created", "session", id)
	return id, e
}

// Open returns the engine for id, reopening it when id is well formed, not
// loaded and persisted. Malformed and unknown ids return false.
func (r *Registry) Open(id string) (*Engine, bool) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return e, true
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	id = parsed.String()
	if !r.persisted(id) {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		return e, true
	}
	e = r.factory(id)
	r.sessions[id] = e
	r.logger.Debug("session reopened", "session", id)
	return e, true
}

// Close logs the session out, waits for its sync lanes and forgets it.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.Logout()
	e.Wait()
	return true
}

// Len returns the number of loaded sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Drain waits for every session's queued sync calls. Used at shutdown.
func (r *Registry) Drain() {
	r.mu.RLock()
	engines := make([]*Engine, 0, len(r.sessions))
	for _, e := range r.sessions {
		engines = append(engines, e)
	}
	r.mu.RUnlock()

	for _, e := range engines {
		e.Wait()
	}
}
