package editor

import (
	"errors"
	"sync"
	"time"
)

// ErrEditorNotFound is returned for unknown or foreign editor ids.
var ErrEditorNotFound = errors.New("editor session not found")

// Registry keeps open editors per owner session. Re-opening the same article
// in the same session returns the existing editor, so double submits still
// hit its in-flight guard.
type Registry struct {
	mu      sync.Mutex
	editors map[string]*Editor
	keys    map[string]string
	idleTTL time.Duration
	now     func() time.Time
}

func NewRegistry(idleTTL time.Duration) *Registry {
	return &Registry{
		editors: make(map[string]*Editor),
		keys:    make(map[string]string),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

func registryKey(owner, articleID string) string {
	if articleID == "" {
		articleID = "new"
	}
	return owner + "|" + articleID
}

// Acquire returns the live editor for (owner, articleID) or registers the one
// built by create. The bool reports whether the editor is new.
func (r *Registry) Acquire(owner, articleID string, create func() *Editor) (*Editor, bool) {
	key := registryKey(owner, articleID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.keys[key]; ok {
		if existing, ok := r.editors[id]; ok && existing.State() != StateFatal {
			return existing, false
		}
		delete(r.editors, id)
		delete(r.keys, key)
	}

	e := create()
	r.editors[e.ID()] = e
	r.keys[key] = e.ID()
	return e, true
}

// Get returns the editor id if it belongs to owner.
func (r *Registry) Get(owner, id string) (*Editor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.editors[id]
	if !ok || e.Owner() != owner {
		return nil, ErrEditorNotFound
	}
	return e, nil
}

// Rekey moves a create-mode editor under its new article id after the first save.
func (r *Registry) Rekey(e *Editor, articleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	oldKey := registryKey(e.Owner(), "")
	if r.keys[oldKey] == e.ID() {
		delete(r.keys, oldKey)
	}
	r.keys[registryKey(e.Owner(), articleID)] = e.ID()
}

// Close drops one editor.
func (r *Registry) Close(owner, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.editors[id]
	if !ok || e.Owner() != owner {
		return
	}
	r.removeLocked(id)
}

// DropOwner closes every editor of a session (logout, 401).
func (r *Registry) DropOwner(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.editors {
		if e.Owner() == owner {
			r.removeLocked(id)
			n++
		}
	}
	return n
}

// Sweep closes editors idle for longer than the TTL, except those submitting.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.editors {
		if e.State() == StateSubmitting {
			continue
		}
		if e.LastActivity().Before(cutoff) {
			r.removeLocked(id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.editors)
}

func (r *Registry) removeLocked(id string) {
	delete(r.editors, id)
	for key, value := range r.keys {
		if value == id {
			delete(r.keys, key)
		}
	}
}
