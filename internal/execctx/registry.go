package execctx

import (
	"fmt"
	"sync"
)

// Registry holds execution contexts in registration order. Order matters:
// function lookup picks the first context that provides a name.
type Registry struct {
	mu       sync.RWMutex
	contexts []Context
}

// NewRegistry creates a registry holding the given contexts in order.
func NewRegistry(contexts ...Context) (*Registry, error) {
	r := &Registry{}
	for _, c := range contexts {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a context. Names must be unique.
func (r *Registry) Register(c Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.contexts {
		if existing.Name() == c.Name() {
			return fmt.Errorf("%w: %q", ErrContextExists, c.Name())
		}
	}
	r.contexts = append(r.contexts, c)
	return nil
}

// Remove drops the named context, reporting whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, c := range r.contexts {
		if c.Name() == name {
			r.contexts = append(r.contexts[:i], r.contexts[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the context registered under name.
func (r *Registry) Get(name string) (Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.contexts {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Lookup returns the first context, in registration order, that provides
// the function.
func (r *Registry) Lookup(function string) (Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.contexts {
		if c.HasFunction(function) {
			return c, true
		}
	}
	return nil, false
}

// Names lists the registered context names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.contexts))
	for i, c := range r.contexts {
		names[i] = c.Name()
	}
	return names
}
