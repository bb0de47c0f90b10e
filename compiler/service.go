package compiler

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotReady is returned while the compiler has not finished loading.
// It is not a problem with the user's source.
var ErrNotReady = errors.New("compiler not ready")

// probeSource is compiled once at load time to verify the presets.
const probeSource = `function Probe() { const [v] = React.useState(1); return <><b>{v}</b></>; }`

// Handle is the capability returned by a loaded Service.
type Handle struct {
	cfg Config
}

// NewHandle returns a handle for cfg without going through a Service.
func NewHandle(cfg Config) *Handle {
	return &Handle{cfg: cfg}
}

// Compile transforms text with the handle's fixed configuration.
func (h *Handle) Compile(text string) (string, error) {
	return Compile(text, h.cfg)
}

// Config returns the configuration the handle compiles with.
func (h *Handle) Config() Config {
	return h.cfg
}

// LoadFunc produces a Handle. It runs at most once per successful load.
type LoadFunc func(ctx context.Context) (*Handle, error)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithConfig sets the configuration used by the default loader.
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// WithLoader replaces the default loader.
func WithLoader(fn LoadFunc) ServiceOption {
	return func(s *Service) {
		s.load = fn
	}
}

type attempt struct {
	done chan struct{}
	err  error
}

// Service owns the process-wide compiler instance. Nothing is loaded until
// Load or EnsureLoaded is called; after a successful load the same Handle
// is shared by every caller.
type Service struct {
	cfg  Config
	load LoadFunc

	mu     sync.Mutex
	handle *Handle
	cur    *attempt
	ready  chan struct{}
}

// NewService creates an unloaded Service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		cfg:   DefaultConfig(),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.load == nil {
		s.load = probeLoader(s.cfg)
	}
	return s
}

func probeLoader(cfg Config) LoadFunc {
	return func(ctx context.Context) (*Handle, error) {
		h := NewHandle(cfg)
		if _, err := h.Compile(probeSource); err != nil {
			return nil, fmt.Errorf("probe compile: %w", err)
		}
		return h, nil
	}
}

// Load starts loading in the background and returns immediately. Calling it
// again while a load is in flight or after success is a no-op; a failed load
// is retried.
func (s *Service) Load(ctx context.Context) {
	s.start(ctx)
}

func (s *Service) start(ctx context.Context) *attempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a := s.cur; a != nil {
		select {
		case <-a.done:
			if a.err == nil {
				return a
			}
		default:
			return a
		}
	}

	a := &attempt{done: make(chan struct{})}
	s.cur = a
	loadCtx := context.WithoutCancel(ctx)

	go func() {
		h, err := s.load(loadCtx)
		if err == nil && h == nil {
			err = errors.New("loader returned no handle")
		}

		s.mu.Lock()
		a.err = err
		if err == nil {
			s.handle = h
			close(s.ready)
		}
		s.mu.Unlock()
		close(a.done)
	}()

	return a
}

// EnsureLoaded loads the compiler if needed and waits for it.
func (s *Service) EnsureLoaded(ctx context.Context) (*Handle, error) {
	a := s.start(ctx)
	select {
	case <-a.done:
		if a.err != nil {
			return nil, fmt.Errorf("load compiler: %w", a.err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.handle, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Handle returns the loaded handle without blocking, or ErrNotReady.
func (s *Service) Handle() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return s.handle, nil
	}
	if a := s.cur; a != nil {
		select {
		case <-a.done:
			return nil, fmt.Errorf("%w: %v", ErrNotReady, a.err)
		default:
		}
	}
	return nil, ErrNotReady
}

// Ready is closed once a load has succeeded.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Loaded reports whether a handle is available.
func (s *Service) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}
