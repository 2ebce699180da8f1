package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Store persists sessions between processes.
type Store interface {
	// Load returns the saved session, or a new empty one when id is unknown.
	Load(ctx context.Context, id string) (*Context, error)
	Save(ctx context.Context, s *Context) error
	Reset(ctx context.Context, id string) error
}

// Registry is the host-owned map from session id to session. Work on one
// session is serialized through Do; different sessions proceed in parallel.
type Registry struct {
	mu       sync.Mutex
	config   Config
	store    Store
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session *Context
}

// NewRegistry creates a registry. A nil store keeps sessions in memory only.
func NewRegistry(config Config, store Store) *Registry {
	return &Registry{
		config:   config,
		store:    store,
		sessions: make(map[string]*entry),
	}
}

// Do runs fn with exclusive access to the session id, loading it from the
// store on first use and saving it afterwards when fn succeeds. When fn or
// the save fails the session is left as it was before the call.
func (r *Registry) Do(ctx context.Context, id string, fn func(*Context) error) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	e := r.entry(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		s, err := r.load(ctx, id)
		if err != nil {
			return err
		}
		e.session = s
	}

	// fn works on a copy that replaces the session only once it is saved.
	work := e.session.Clone()
	if err := fn(work); err != nil {
		return err
	}

	if r.store != nil {
		if err := r.store.Save(ctx, work); err != nil {
			return fmt.Errorf("saving session %s: %w", id, err)
		}
	}
	e.session = work
	return nil
}

// Reset clears the session both in memory and in the store.
func (r *Registry) Reset(ctx context.Context, id string) error {
	e := r.entry(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		e.session.Reset()
	}
	if r.store != nil {
		if err := r.store.Reset(ctx, id); err != nil {
			return fmt.Errorf("resetting session %s: %w", id, err)
		}
	}
	return nil
}

// Forget drops the in-memory copy of a session. The store is untouched.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// IDs returns the ids of sessions held in memory, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) entry(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{}
		r.sessions[id] = e
	}
	return e
}

func (r *Registry) load(ctx context.Context, id string) (*Context, error) {
	if r.store == nil {
		return New(id, r.config), nil
	}
	s, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	return s, nil
}
