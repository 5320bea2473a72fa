package manifest

import (
	"sort"
	"sync"

	"github.com/jbadeau/forge-sub002/pkg/forgeerrors"
)

// Registry is a static, explicit plugin registry: plugins register by id at
// program start, addressed by id thereafter. No reflection, no service
// loading, no inter-plugin dependency graph — manifest plugins are
// independent pure functions, unlike the inter-plugin dependencies a
// stateful reconciliation plugin registry might need.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin to the registry. Re-registering the same id
// replaces the previous entry.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return forgeerrors.NewConfigurationError("plugins", "nil plugin registration", nil)
	}
	if p.ID() == "" {
		return forgeerrors.NewConfigurationError("plugins", "plugin registered with empty id", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.ID()] = p
	return nil
}

// Get retrieves a plugin by id.
func (r *Registry) Get(id string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[id]
	if !ok {
		return nil, forgeerrors.NewConfigurationError("plugins", "plugin \""+id+"\" is not registered", nil)
	}
	return p, nil
}

// List returns the registered plugin ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns the registered plugins in id-sorted order, the order the
// project graph builder invokes them in so merge warnings are deterministic.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	plugins := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		plugins = append(plugins, r.plugins[id])
	}
	return plugins
}

// Builtins returns a registry pre-populated with the compile-time inventory
// of built-in plugins (npm, maven, golang, docker).
func Builtins() *Registry {
	r := NewRegistry()
	for _, p := range []Plugin{
		NewNPMPlugin(),
		NewMavenPlugin(),
		NewGoPlugin(),
		NewDockerPlugin(),
	} {
		_ = r.Register(p)
	}
	return r
}
