// Package hostfunc provides the host functions sandboxed component code can
// reach through __host.call.
//
// Component code has no implicit access to anything outside its document.
// The executor builds a fresh [Registry] per run and registers only the
// capabilities that run was configured with.
//
// # Registry
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("now_ms", func(ctx context.Context, args map[string]any) (any, error) {
//	    return time.Now().UnixMilli(), nil
//	})
//
// # Built-in Capabilities
//
// Storage: localStorage semantics via [Storage] over a [StorageStore].
// Handing the same store to several runs keeps data across them.
//
//	store := hostfunc.NewStorageStore()
//	hostfunc.NewStorage(store, hostfunc.WithMaxEntries(100)).Register(registry)
//
// HTTP: fetch backed by [HTTP], limited to [HTTPConfig.AllowedHosts].
//
//	hostfunc.NewHTTP(hostfunc.HTTPConfig{
//	    AllowedHosts: []string{"api.example.com"},
//	}).Register(registry)
//
// # Security Model
//
//   - HTTP requests are limited to explicitly allowed hosts
//   - Storage keys, values and entry counts are bounded
//   - Nothing is registered unless the run asks for it
package hostfunc
