package providers

import (
	"sort"
	"sync"

	"github.com/aristath/aggregator/internal/domain"
)

// Registry maps provider slugs to adapters. Populated once at startup and
// read-only afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds a slug to an adapter. Later registrations for the same slug
// win; startup wiring decides the final set.
func (r *Registry) Register(slug string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[slug] = adapter
}

// Get returns the adapter for a slug, failing with PROVIDER_NOT_FOUND when
// the slug is unknown.
func (r *Registry) Get(slug string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[slug]
	if !ok {
		return nil, domain.Ef(domain.CodeProviderNotFound, "unsupported provider %q", slug)
	}
	return adapter, nil
}

// Supports reports whether a slug has a registered adapter.
func (r *Registry) Supports(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[slug]
	return ok
}

// ListSupported returns all registered slugs, sorted.
func (r *Registry) ListSupported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slugs := make([]string, 0, len(r.adapters))
	for slug := range r.adapters {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
