package plugins

import (
	"fmt"
	"sort"
	"sync"

	"github.com/steveyegge/sieve/internal/types"
)

// Registry holds the plugins available to an executor, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
	}
}

// Register adds a plugin. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}

	r.plugins[name] = p
	return nil
}

// Get returns a registered plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.plugins[name]
	return p, exists
}

// List returns all registered plugin names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plugins returns all registered plugins sorted by name.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ForDomain returns the plugins reporting into d, sorted by name.
func (r *Registry) ForDomain(d types.Domain) []Plugin {
	var out []Plugin
	for _, p := range r.Plugins() {
		if p.Domain() == d {
			out = append(out, p)
		}
	}
	return out
}

// Available returns the names of plugins whose binary resolves on this host.
func (r *Registry) Available() []string {
	var names []string
	for _, p := range r.Plugins() {
		if _, err := p.EnsureBinary(); err == nil {
			names = append(names, p.Name())
		}
	}
	return names
}

// FindFixer returns the registered Fixer whose name or binary produced
// issues tagged with sourceTool.
func (r *Registry) FindFixer(sourceTool string) (Fixer, bool) {
	for _, p := range r.Plugins() {
		f, ok := p.(Fixer)
		if !ok {
			continue
		}
		if p.Name() == sourceTool {
			return f, true
		}
		if b, ok := p.(interface{ BinaryName() string }); ok && b.BinaryName() == sourceTool {
			return f, true
		}
	}
	return nil, false
}

// BinaryName returns the executable name the plugin resolves.
func (b *Base) BinaryName() string { return b.Binary }
