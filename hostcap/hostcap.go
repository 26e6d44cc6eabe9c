// Package hostcap implements the host capabilities that can be exposed to
// sandboxed script code: mount-gated filesystem access, allow-listed HTTP,
// an in-memory key-value scratch store, and a registry for custom host
// functions. Whether any of these are visible to a script is decided by the
// sandbox policy of the owning execution context; nothing in this package
// is reachable from script code by default.
package hostcap

import (
	"context"
	"sort"
	"sync"
)

// Func is a host function callable from sandboxed code. Arguments arrive as
// a decoded map; the returned value must be representable in the value
// codec.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry holds named host functions exposed to scripts as host.<name>().
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds or replaces a host function.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

// Get returns the named function.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
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

// All returns a snapshot of the registered functions.
func (r *Registry) All() map[string]Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Func, len(r.funcs))
	for name, fn := range r.funcs {
		out[name] = fn
	}
	return out
}
