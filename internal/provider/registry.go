package provider

import (
	"fmt"
	"sync"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// Registry holds the set of adapters a daemon instance has registered,
// keyed by provider name. The Agent Manager consults it to validate
// createAgent/resumeAgent's provider field and to look up the adapter to
// drive (spec §4.1: "Validates provider is registered").
type Registry struct {
	mu       sync.RWMutex
	adapters map[paseo.Provider]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[paseo.Provider]Adapter)}
}

// Register adds an adapter, replacing any previously registered under the
// same name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for p, or an error if none is registered.
func (r *Registry) Get(p paseo.Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", p)
	}
	return a, nil
}

// Providers lists every registered provider name.
func (r *Registry) Providers() []paseo.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]paseo.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
