// Package adapters builds tree roots from source definitions. A source
// definition is a JSON object whose "type" field selects a registered
// [treefs.RootProvider]; the rest of the object is that provider's options.
package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/brettbedarf/treefs"
	"github.com/brettbedarf/treefs/internal/util"
)

// ErrMissingType is returned for a source definition without a "type" field.
var ErrMissingType = errors.New("source definition has no type")

// Registry maps source types to root providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]treefs.RootProvider
}

func NewRegistry() *Registry {
	return &Registry{providers: map[string]treefs.RootProvider{}}
}

// Register ties a provider to a source type. The first registration of a type
// wins; later ones are ignored with a warning.
func (r *Registry) Register(sourceType string, provider treefs.RootProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[sourceType]; exists {
		logger := util.GetLogger("adapters")
		logger.Warn().Str("type", sourceType).Msg("Provider already registered, ignoring")
		return
	}
	r.providers[sourceType] = provider
}

// GetProvider returns the provider registered for sourceType.
func (r *Registry) GetProvider(sourceType string) (treefs.RootProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[sourceType]
	if !ok {
		return nil, fmt.Errorf("no provider for source type %q", sourceType)
	}
	return p, nil
}

// Types lists the registered source types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewRoot picks the provider from the "type" field of raw and builds a root with it.
func (r *Registry) NewRoot(raw []byte) (treefs.Node, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("invalid source definition: %w", err)
	}
	if meta.Type == "" {
		return nil, ErrMissingType
	}
	p, err := r.GetProvider(meta.Type)
	if err != nil {
		return nil, err
	}
	return p.NewRoot(raw)
}
