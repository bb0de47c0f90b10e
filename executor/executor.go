package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caffeineduck/jsxpad/document"
	"github.com/caffeineduck/jsxpad/hostfunc"
)

// Result is what one document run produced.
type Result struct {
	// Markup is the mount element's innerHTML once the run settled.
	Markup string
	// RuntimeError is the text the document's own guard reported, if any.
	RuntimeError string
	Console      []string
	Duration     time.Duration
	// Error is an infrastructure failure: missing engine, timeout, a
	// runtime that never reported back.
	Error error
}

// Failed reports whether the run showed an error in its document or failed
// outright.
func (r Result) Failed() bool {
	return r.RuntimeError != "" || r.Error != nil
}

// Executor loads documents into fresh engine instances.
type Executor struct {
	engine   Engine
	registry *hostfunc.Registry
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor. Functions in registry are visible to every run
// in addition to the per-run capabilities.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}

	if registry == nil {
		registry = hostfunc.NewRegistry()
	}

	return &Executor{
		engine:   engine,
		registry: registry,
	}, nil
}

// Engine returns the name of the engine in use.
func (e *Executor) Engine() string {
	return e.engine.Name()
}

// Load runs doc with default run options.
func (e *Executor) Load(ctx context.Context, doc *document.Document) Result {
	return e.Execute(ctx, doc)
}

// Run builds a document around a compiled script and runs it.
func (e *Executor) Run(ctx context.Context, script string, opts ...Option) Result {
	return e.Execute(ctx, document.New(script, nil), opts...)
}

// Execute runs doc in a new engine instance.
func (e *Executor) Execute(ctx context.Context, doc *document.Document, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if doc == nil {
		return Result{Error: errors.New("nil document"), Duration: time.Since(start)}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Result{Error: errors.New("executor closed"), Duration: time.Since(start)}
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	registry := e.registry.Clone()
	prog := NewProgram(doc)
	if cfg.maxSteps > 0 {
		prog.MaxSteps = cfg.maxSteps
	}
	if cfg.maxVirtualMS > 0 {
		prog.MaxVirtualMS = cfg.maxVirtualMS
	}

	if cfg.storageEnabled {
		hostfunc.NewStorage(cfg.storageStore, cfg.storageOptions...).Register(registry)
		prog.Storage = true
	}

	if len(cfg.allowedHosts) > 0 {
		hostfunc.NewHTTP(hostfunc.HTTPConfig{
			AllowedHosts: cfg.allowedHosts,
			MaxURLLength: cfg.httpMaxURLLength,
			MaxBodySize:  cfg.httpMaxBodySize,
		}).Register(registry)
		prog.HTTP = true
	}

	out, err := e.engine.Execute(ctx, prog, registry)

	result := Result{Duration: time.Since(start)}
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			result.Error = fmt.Errorf("timeout after %v", cfg.timeout)
			result.RuntimeError = result.Error.Error()
			result.Markup = document.ErrorMarkup(result.RuntimeError)
		case ctx.Err() != nil:
			result.Error = fmt.Errorf("execution canceled: %w", ctx.Err())
		default:
			result.Error = fmt.Errorf("execution failed: %w", err)
		}
		return result
	}

	result.Markup = out.Markup
	result.RuntimeError = out.Error
	result.Console = out.Console
	return result
}

// With returns a loader that runs documents on e with opts applied.
func (e *Executor) With(opts ...Option) *Runner {
	return &Runner{exec: e, opts: opts}
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.engine.Close()
}

// Runner is an Executor bound to a set of run options.
type Runner struct {
	exec *Executor
	opts []Option
}

// Load runs doc with the bound options.
func (r *Runner) Load(ctx context.Context, doc *document.Document) Result {
	return r.exec.Execute(ctx, doc, r.opts...)
}
