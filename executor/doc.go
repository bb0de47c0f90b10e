// Package executor runs isolated execution documents headlessly and reports
// what they rendered.
//
// # Overview
//
// Every run gets a brand-new JavaScript context: a fresh goja runtime, or a
// fresh instance of a QuickJS WASI module on wazero. The document's guarded
// script runs on top of an embedded runtime that stands in for the browser
// and for React/ReactDOM, then the runtime drains timers and updates and
// reports the mount element's markup.
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	result := exec.Execute(ctx, document.New(script, nil))
//	if result.RuntimeError != "" {
//	    fmt.Println("component failed:", result.RuntimeError)
//	}
//	fmt.Println(result.Markup)
//
// # Engines
//
// goja is the default. The wasm engine needs a QuickJS WASI build:
//
//	exec, err := executor.New(registry,
//	    executor.WithEngine(executor.EngineWasm),
//	    executor.WithWasmModule(executor.DefaultWasmModulePath()),
//	    executor.WithDiskCache(),
//	    executor.WithMemoryLimit(executor.MemoryLimit64MB),
//	)
//
// # Capabilities
//
// By default a document has in-memory localStorage and no network. Enable
// host capabilities per run:
//
//	store := hostfunc.NewStorageStore()
//	exec.Execute(ctx, doc,
//	    executor.WithStorageStore(store),
//	    executor.WithAllowedHosts([]string{"api.example.com"}),
//	)
package executor
