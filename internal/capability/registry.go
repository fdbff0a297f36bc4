// Package capability holds the registry of named state-transforming
// functions that graph nodes invoke. The runtime treats a capability as an
// opaque unit: it receives the current state bag and returns its full
// replacement.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Func is a registered capability. It must return a replacement state; the
// prior state is discarded in full, never merged.
type Func func(ctx context.Context, state map[string]any) (map[string]any, error)

// NotFoundError reports a node config naming an unregistered capability.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found in registry", e.Name)
}

// Module is implemented by packages that contribute capabilities to a
// registry instance.
type Module interface {
	Register(r *Registry)
}

// Registry maps capability names to their functions for a single application
// instance.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a capability under the given name. Registering the same name
// twice is a programmer error.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		panic(fmt.Sprintf("capability with name '%s' already registered", name))
	}
	slog.Debug("Registering capability.", "name", name)
	r.funcs[name] = fn
}

// Get returns the capability registered under name, or a NotFoundError.
func (r *Registry) Get(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return fn, nil
}

// List returns the registered capability names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
