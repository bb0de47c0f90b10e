package executor

import (
	"time"

	"github.com/caffeineduck/jsxpad/hostfunc"
)

// Option configures a single run.
type Option func(*runConfig)

type runConfig struct {
	timeout        time.Duration
	storageEnabled bool
	storageStore   *hostfunc.StorageStore
	allowedHosts   []string
	maxSteps       int
	maxVirtualMS   int
	// Security limits
	storageOptions   []hostfunc.StorageOption
	httpMaxURLLength int
	httpMaxBodySize  int64
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 5 * time.Second,
	}
}

// WithTimeout sets the maximum wall-clock time for a run. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithStorage backs localStorage with host storage scoped to this run.
func WithStorage() Option {
	return func(c *runConfig) {
		c.storageEnabled = true
	}
}

// WithStorageStore backs localStorage with store, so data written by one
// run is visible to the next run given the same store.
func WithStorageStore(store *hostfunc.StorageStore) Option {
	return func(c *runConfig) {
		c.storageEnabled = true
		c.storageStore = store
	}
}

// WithAllowedHosts enables fetch for the listed hosts.
func WithAllowedHosts(hosts []string) Option {
	return func(c *runConfig) {
		c.allowedHosts = hosts
	}
}

// WithSettleBudget bounds how long the runtime keeps draining timers and
// updates after the script ran: at most steps hops and virtualMS of
// virtual timer time.
func WithSettleBudget(steps, virtualMS int) Option {
	return func(c *runConfig) {
		c.maxSteps = steps
		c.maxVirtualMS = virtualMS
	}
}

// Security limit options

// WithStorageMaxKeySize sets the maximum localStorage key size.
func WithStorageMaxKeySize(size int) Option {
	return func(c *runConfig) {
		c.storageOptions = append(c.storageOptions, hostfunc.WithMaxKeySize(size))
	}
}

// WithStorageMaxValueSize sets the maximum localStorage value size.
func WithStorageMaxValueSize(size int) Option {
	return func(c *runConfig) {
		c.storageOptions = append(c.storageOptions, hostfunc.WithMaxValueSize(size))
	}
}

// WithStorageMaxEntries sets the maximum number of localStorage entries.
func WithStorageMaxEntries(n int) Option {
	return func(c *runConfig) {
		c.storageOptions = append(c.storageOptions, hostfunc.WithMaxEntries(n))
	}
}

// WithHTTPMaxURLLength sets the maximum URL length for fetch.
func WithHTTPMaxURLLength(size int) Option {
	return func(c *runConfig) {
		c.httpMaxURLLength = size
	}
}

// WithHTTPMaxBodySize sets the maximum request and response body size for fetch.
func WithHTTPMaxBodySize(size int64) Option {
	return func(c *runConfig) {
		c.httpMaxBodySize = size
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	engine           string
	wasmModule       string
	diskCache        bool
	cacheDir         string
	precompile       bool
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
	maxCallStack     int
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		engine:       EngineGoja,
		maxCallStack: 10000,
	}
}

// WithEngine selects the engine by name: "goja" (default) or "wasm".
func WithEngine(name string) ExecutorOption {
	return func(c *executorConfig) {
		c.engine = name
	}
}

// WithWasmModule sets the QuickJS WASI module the wasm engine loads.
func WithWasmModule(path string) ExecutorOption {
	return func(c *executorConfig) {
		c.wasmModule = path
	}
}

// WithDiskCache enables the persistent wasm compilation cache.
// Optionally provide a custom directory; otherwise uses the compiled/
// directory under ~/.cache/jsxpad or XDG_CACHE_HOME/jsxpad.
//
// Examples:
//
//	executor.New(registry, executor.WithEngine("wasm"), executor.WithDiskCache())
//	executor.New(registry, executor.WithEngine("wasm"), executor.WithDiskCache("/tmp/cache"))
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the wasm module when the Executor is created
// instead of on the first run.
func WithPrecompile() ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = true
	}
}

// WithMemoryLimit sets the maximum memory available to the wasm engine.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB). The goja engine ignores it.
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// WithMaxCallStackSize bounds JavaScript recursion in the goja engine.
func WithMaxCallStackSize(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.maxCallStack = n
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)
