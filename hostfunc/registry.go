package hostfunc

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// Func is a host function callable from sandboxed code through __host.call.
// Args arrive as decoded JSON; the result is encoded back to JSON.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Registry holds the host functions visible to one or more runs.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

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
	return slices.Sorted(maps.Keys(r.funcs))
}

// Clone returns an independent registry with the same functions. Executors
// clone the base registry per run so per-run capabilities never leak into
// the shared one.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Registry{funcs: maps.Clone(r.funcs)}
}
