package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/caffeineduck/jsxpad/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ErrNoWasmModule is returned when the wasm engine has no QuickJS module.
var ErrNoWasmModule = errors.New("no QuickJS wasm module configured (run 'jsxpad deps fetch' or pass --wasm-module)")

// wasmPrelude speaks the stderr/stdin protocol from inside QuickJS.
const wasmPrelude = `var __host = (function () {
  var CALL = "\x00JSXPAD:", RESULT = "\x00JSXPAD_RESULT:", END = "\x00";
  return {
    call: function (fn, args) {
      std.err.puts(CALL + JSON.stringify({ fn: fn, args: args === undefined ? {} : args }) + END);
      std.err.flush();
      var line = std.in.getline();
      if (line === null) throw new Error("host connection closed");
      var res = JSON.parse(line);
      if (res.error) throw new Error(res.error);
      return res.data === undefined ? null : res.data;
    },
    emit: function (json) {
      std.err.puts(RESULT + json + END);
      std.err.flush();
    }
  };
})();`

// wasmEngine runs documents in QuickJS compiled to WASI, one module
// instance per run. The compiled module is cached for the engine's lifetime.
type wasmEngine struct {
	runtime    wazero.Runtime
	cache      wazero.CompilationCache
	modulePath string
	compiled   wazero.CompiledModule
	mu         sync.RWMutex
	closed     bool
}

func newWasmEngine(cfg executorConfig) (*wasmEngine, error) {
	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = DefaultCompileCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	w := &wasmEngine{
		runtime:    rt,
		cache:      cache,
		modulePath: cfg.wasmModule,
	}

	if cfg.precompile {
		if _, err := w.getCompiled(ctx); err != nil {
			w.Close()
			return nil, fmt.Errorf("precompile: %w", err)
		}
	}

	return w, nil
}

func (w *wasmEngine) Name() string { return EngineWasm }

func (w *wasmEngine) Execute(ctx context.Context, prog *Program, registry *hostfunc.Registry) (*Output, error) {
	compiled, err := w.getCompiled(ctx)
	if err != nil {
		return nil, err
	}

	var stdout bytes.Buffer
	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(ctx, registry, stdinWriter)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(protocol).
		WithStdin(stdinReader).
		WithArgs("qjs", "--std", "-e", prog.Source(wasmPrelude)).
		WithName("")

	errCh := make(chan error, 1)
	go func() {
		mod, err := w.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		stdinWriter.Close()
		errCh <- err
	}()

	err = <-errCh
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	raw, ok := protocol.Result()
	if !ok {
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, protocol.Stderr())
		}
		if msg := protocol.Stderr(); msg != "" {
			return nil, fmt.Errorf("%w: %s", errNoResult, msg)
		}
		return nil, errNoResult
	}

	var out Output
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if s := stdout.String(); s != "" {
		out.Console = append(out.Console, s)
	}
	return &out, nil
}

// getCompiled returns the cached compiled module, compiling if necessary.
func (w *wasmEngine) getCompiled(ctx context.Context) (wazero.CompiledModule, error) {
	w.mu.RLock()
	if w.compiled != nil {
		defer w.mu.RUnlock()
		return w.compiled, nil
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.compiled != nil {
		return w.compiled, nil
	}
	if w.closed {
		return nil, errors.New("engine closed")
	}
	if w.modulePath == "" {
		return nil, ErrNoWasmModule
	}

	bin, err := os.ReadFile(w.modulePath)
	if err != nil {
		return nil, fmt.Errorf("read wasm module: %w", err)
	}

	compiled, err := w.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", filepath.Base(w.modulePath), err)
	}

	w.compiled = compiled
	return compiled, nil
}

// Close releases the wazero runtime and cache.
func (w *wasmEngine) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	ctx := context.Background()

	var errs []error
	if err := w.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if w.cache != nil {
		if err := w.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DefaultCacheDir is where the wasm compile cache and the fetched QuickJS
// module live unless configured otherwise.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "jsxpad")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "jsxpad")
	}
	return filepath.Join(os.TempDir(), "jsxpad-cache")
}

// DefaultCompileCacheDir holds wazero's compiled module cache.
func DefaultCompileCacheDir() string {
	return filepath.Join(DefaultCacheDir(), "compiled")
}

// DefaultWasmModulePath is where 'jsxpad deps fetch' stores the module.
func DefaultWasmModulePath() string {
	return filepath.Join(DefaultCacheDir(), "qjs-wasi.wasm")
}
