// Package server exposes the jsxpad pipeline over HTTP: stateless compile
// and execute endpoints plus long-lived playground sessions whose current
// document can be embedded in a sandboxed iframe.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/internal/logging"
	"github.com/caffeineduck/jsxpad/internal/metrics"
	"github.com/caffeineduck/jsxpad/internal/store"
	"github.com/caffeineduck/jsxpad/playground"
	"github.com/caffeineduck/jsxpad/transform"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// FrameCSP is the Content-Security-Policy sent with session frames.
const FrameCSP = "sandbox allow-scripts"

// Config wires the server's collaborators.
type Config struct {
	Compiler *compiler.Service
	// Executor renders documents headlessly. When nil, sessions only keep
	// documents for the browser to run.
	Executor   *executor.Executor
	RunOptions []executor.Option
	// Timeout is the default per-run timeout for /execute and sessions.
	Timeout    time.Duration
	Store      store.Store
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	SessionTTL time.Duration
	// Seed is the default source for new sessions.
	Seed    string
	MountID string
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	sessions *sessionManager
	router   chi.Router
	logger   *slog.Logger
}

// New builds a Server. Compiler is required; everything else has a default.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.Seed == "" {
		cfg.Seed = playground.DefaultSeed
	}
	if cfg.MountID == "" {
		cfg.MountID = transform.DefaultMountID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	s.sessions = newSessionManager(cfg.SessionTTL, cfg.Store, s.newPlayground, cfg.Logger)
	if cfg.Metrics != nil {
		s.sessions.onOpen = cfg.Metrics.SessionOpened
		s.sessions.onClose = cfg.Metrics.SessionClosed
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	}

	r.Post("/compile", s.handleCompile)
	r.Post("/execute", s.handleExecute)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/source", s.handleSetSource)
			r.Post("/run", s.handleRun)
			r.Post("/reset", s.handleReset)
			r.Get("/frame", s.handleFrame)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run evicts idle sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.sessions.cleanup(ctx)
}

// Close drops every live session. Drafts stay in the store.
func (s *Server) Close() {
	s.sessions.closeAll()
}

func (s *Server) loader(timeout time.Duration) playground.Loader {
	if s.cfg.Executor == nil {
		return &playground.FrameLoader{}
	}
	opts := append([]executor.Option{executor.WithTimeout(timeout)}, s.cfg.RunOptions...)
	return s.cfg.Executor.With(opts...)
}

func (s *Server) newPlayground(seed string) *playground.Playground {
	if seed == "" {
		seed = s.cfg.Seed
	}
	opts := []playground.Option{
		playground.WithSeed(seed),
		playground.WithLoader(s.loader(s.cfg.Timeout)),
		playground.WithMountID(s.cfg.MountID),
		playground.WithLogger(s.logger),
	}
	if s.cfg.Metrics != nil {
		opts = append(opts, playground.WithHooks(s.cfg.Metrics.Hooks()))
	}
	return playground.New(s.cfg.Compiler, opts...)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
