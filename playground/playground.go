// Package playground ties the pipeline together: it owns the editable
// source buffer and drives each run through transform, compile, document
// construction and loading.
//
// Runs are serialised per Playground. Each run snapshots the source when it
// starts, so a trigger that arrives while another run is in flight re-runs
// with whatever text is current by then.
package playground

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/document"
	"github.com/caffeineduck/jsxpad/internal/logging"
	"github.com/caffeineduck/jsxpad/transform"
)

// Hooks observe run lifecycle events. Nil fields are skipped.
type Hooks struct {
	OnRunStart func(ctx context.Context, generation uint64)
	OnCompile  func(ctx context.Context, d time.Duration, err error)
	OnRunDone  func(ctx context.Context, r Report)
}

// Option configures a Playground.
type Option func(*Playground)

// WithSeed sets the default source that Reset restores.
func WithSeed(seed string) Option {
	return func(p *Playground) {
		p.seed = seed
	}
}

// WithLoader sets where documents are loaded. The default is a FrameLoader.
func WithLoader(l Loader) Option {
	return func(p *Playground) {
		p.loader = l
	}
}

// WithMountID sets the mount element id used by the render call and the
// document.
func WithMountID(id string) Option {
	return func(p *Playground) {
		if id != "" {
			p.mountID = id
		}
	}
}

// WithLibraries overrides the runtime library references.
func WithLibraries(libs document.Libraries) Option {
	return func(p *Playground) {
		p.libs = libs
	}
}

// WithPipeline replaces the transform passes.
func WithPipeline(pipeline transform.Pipeline) Option {
	return func(p *Playground) {
		p.pipeline = pipeline
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Playground) {
		p.logger = logger
	}
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(p *Playground) {
		p.hooks = h
	}
}

// Playground is one editable component and its run state.
type Playground struct {
	compiler *compiler.Service
	loader   Loader
	pipeline transform.Pipeline
	mountID  string
	libs     document.Libraries
	logger   *slog.Logger
	hooks    Hooks
	seed     string

	runMu sync.Mutex

	mu     sync.Mutex
	source string
	state  State
	err    error
	gen    uint64
	frame  Frame
}

// New creates a Playground seeded with DefaultSeed unless WithSeed says
// otherwise. It compiles through svc.
func New(svc *compiler.Service, opts ...Option) *Playground {
	p := &Playground{
		compiler: svc,
		mountID:  transform.DefaultMountID,
		seed:     DefaultSeed,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.loader == nil {
		p.loader = &FrameLoader{}
	}
	if p.pipeline == nil {
		p.pipeline = transform.Default(p.mountID)
	}
	if p.logger == nil {
		p.logger = logging.NewNop()
	}
	p.source = p.seed
	return p
}

// Source returns the current source text.
func (p *Playground) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// SetSource replaces the source text. It does not run.
func (p *Playground) SetSource(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = text
}

// Seed returns the text Reset restores.
func (p *Playground) Seed() string {
	return p.seed
}

// State returns the lifecycle state.
func (p *Playground) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the current ErrorState, or nil.
func (p *Playground) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Frame returns the most recently published document.
func (p *Playground) Frame() Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

// Generation returns the number of runs started so far.
func (p *Playground) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Reset restores the seed and clears the error. It waits for an in-flight
// run and never executes anything.
func (p *Playground) Reset() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = p.seed
	p.err = nil
	p.state = Idle
	p.logger.Debug("playground reset")
}

// Run takes the current source through the pipeline once.
func (p *Playground) Run(ctx context.Context) Report {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()

	p.mu.Lock()
	p.err = nil
	p.state = Compiling
	p.gen++
	rep := Report{Source: p.source, Generation: p.gen}
	p.mu.Unlock()

	if p.hooks.OnRunStart != nil {
		p.hooks.OnRunStart(ctx, rep.Generation)
	}
	p.logger.Debug("run started", "generation", rep.Generation)

	handle, err := p.compiler.Handle()
	if err != nil {
		return p.fail(ctx, rep, err, start)
	}

	rep.Transformed = p.pipeline.Apply(rep.Source)

	compileStart := time.Now()
	rep.Compiled, err = handle.Compile(rep.Transformed)
	if p.hooks.OnCompile != nil {
		p.hooks.OnCompile(ctx, time.Since(compileStart), err)
	}
	if err != nil {
		return p.fail(ctx, rep, err, start)
	}

	rep.Document = document.New(rep.Compiled, p.libs, document.WithMountID(p.mountID))

	p.setState(Executing)
	p.logger.Debug("executing", "generation", rep.Generation, "digest", rep.Document.Digest())
	rep.Render = p.loader.Load(ctx, rep.Document)

	p.mu.Lock()
	if rep.Generation > p.frame.Generation {
		p.frame = Frame{
			Document:   rep.Document,
			Render:     rep.Render,
			Source:     rep.Source,
			Generation: rep.Generation,
		}
	}
	p.state = Idle
	p.mu.Unlock()

	rep.State = Idle
	rep.Duration = time.Since(start)

	switch {
	case rep.Render.Error != nil:
		p.logger.Info("execution context failed", "generation", rep.Generation, "error", rep.Render.Error)
	case rep.Render.RuntimeError != "":
		p.logger.Info("runtime error", "generation", rep.Generation, "message", rep.Render.RuntimeError)
	default:
		p.logger.Debug("run finished", "generation", rep.Generation, "duration", rep.Duration)
	}

	if p.hooks.OnRunDone != nil {
		p.hooks.OnRunDone(ctx, rep)
	}
	return rep
}

func (p *Playground) fail(ctx context.Context, rep Report, err error, start time.Time) Report {
	p.mu.Lock()
	p.err = err
	p.state = Errored
	p.mu.Unlock()

	rep.State = Errored
	rep.Err = err
	rep.Duration = time.Since(start)

	p.logger.Info("run failed", "generation", rep.Generation, "kind", Classify(err).String(), "error", err)
	if p.hooks.OnRunDone != nil {
		p.hooks.OnRunDone(ctx, rep)
	}
	return rep
}

func (p *Playground) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// AutoRun waits for the compiler to load and then runs once. It is the
// automatic first run.
func (p *Playground) AutoRun(ctx context.Context) (Report, error) {
	if _, err := p.compiler.EnsureLoaded(ctx); err != nil {
		p.logger.Info("compiler unavailable", "error", err)
		return Report{}, err
	}
	return p.Run(ctx), nil
}

// Start calls AutoRun in the background. The channel receives the report
// and is then closed; it is closed without a value if loading failed.
func (p *Playground) Start(ctx context.Context) <-chan Report {
	ch := make(chan Report, 1)
	go func() {
		defer close(ch)
		if rep, err := p.AutoRun(ctx); err == nil {
			ch <- rep
		}
	}()
	return ch
}
