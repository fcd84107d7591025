// Package evidence gathers reference data (quotes, capital flows, news,
// sector and macro standings) for analyst agents. Providers are looked up
// by key from agent evidence bindings; a provider failure degrades the
// bundle, it never blocks an analysis.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tickermind/tickermind/pkg/models"
)

// ErrProviderNotFound indicates an evidence binding references a key no
// provider registered under.
var ErrProviderNotFound = errors.New("evidence provider not found")

// Provider fetches one kind of reference data for a symbol.
type Provider interface {
	// Key is the stable identifier evidence bindings reference.
	Key() string

	// Label is the human-readable name used in prompts and events.
	Label() string

	// Fetch returns the evidence for one symbol. Implementations must
	// honour ctx and return quickly after cancellation.
	Fetch(ctx context.Context, symbol string) (models.EvidenceSource, error)
}

// Registry maps provider keys to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: map[string]Provider{}}
}

// Register installs a provider, replacing any previous one with the same key.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Key()] = p
}

// Get returns the provider registered under key.
func (r *Registry) Get(key string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, key)
	}
	return p, nil
}

// Keys returns all registered provider keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.providers))
	for key := range r.providers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
