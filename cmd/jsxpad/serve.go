package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/hostfunc"
	"github.com/caffeineduck/jsxpad/internal/config"
	"github.com/caffeineduck/jsxpad/internal/logging"
	"github.com/caffeineduck/jsxpad/internal/metrics"
	"github.com/caffeineduck/jsxpad/internal/server"
	"github.com/caffeineduck/jsxpad/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// draftTTL is how long an untouched draft survives in the store.
const draftTTL = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playground HTTP server",
	Long: `Start an HTTP server that compiles, renders and hosts playground sessions.

Endpoints:
  POST   /compile                 Compile a component, returns {"code":"..."}
  POST   /execute                 Compile and render (stateless)
  POST   /sessions                Create session, returns {"session_id":"..."}
  GET    /sessions/{id}           Source, state and last error
  PUT    /sessions/{id}/source    Replace the source buffer
  POST   /sessions/{id}/run       Run the pipeline
  POST   /sessions/{id}/reset     Restore the seed
  GET    /sessions/{id}/frame     Isolated document for a sandboxed iframe
  DELETE /sessions/{id}           Close session
  GET    /health                  Health check
  GET    /metrics                 Prometheus metrics

Settings come from --config (YAML) and are overridden by flags.`,
	Run: runServe,
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML config file")
	cmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	cmd.Flags().Duration("timeout", 5*time.Second, "Default execution timeout")
	cmd.Flags().Duration("session-ttl", 30*time.Minute, "Idle time before a session is evicted")
	cmd.Flags().StringSlice("allow-host", nil, "Allow fetch to host (repeatable)")
	cmd.Flags().String("seed-file", "", "Default seed source for new sessions")
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().String("storage", config.StorageMemory, "Draft storage: memory, redis")
	cmd.Flags().String("redis-addr", "localhost:6379", "Redis address for redis storage")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("redis-prefix", "jsxpad:", "Redis key prefix")
}

// loadServeConfig reads --config and applies every flag the user set.
func loadServeConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	persistent := cmd.Root().PersistentFlags()
	if flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("session-ttl") {
		cfg.SessionTTL, _ = flags.GetDuration("session-ttl")
	}
	if flags.Changed("allow-host") {
		cfg.AllowedHosts, _ = flags.GetStringSlice("allow-host")
	}
	if flags.Changed("seed-file") {
		cfg.SeedFile, _ = flags.GetString("seed-file")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("storage") {
		cfg.Storage, _ = flags.GetString("storage")
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("redis-password") {
		cfg.Redis.Password, _ = flags.GetString("redis-password")
	}
	if flags.Changed("redis-db") {
		cfg.Redis.DB, _ = flags.GetInt("redis-db")
	}
	if flags.Changed("redis-prefix") {
		cfg.Redis.Prefix, _ = flags.GetString("redis-prefix")
	}
	if persistent.Changed("engine") {
		cfg.Engine, _ = persistent.GetString("engine")
	}
	if persistent.Changed("wasm-module") {
		cfg.WasmModule, _ = persistent.GetString("wasm-module")
	}
	if persistent.Changed("memory") {
		memory, _ := persistent.GetString("memory")
		cfg.MemoryMB = int(parseMemoryLimit(memory) / 16)
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func executorFromConfig(cfg config.Config, noCache bool) (*executor.Executor, error) {
	opts := []executor.ExecutorOption{executor.WithEngine(cfg.Engine)}
	if cfg.Engine == executor.EngineWasm {
		module := cfg.WasmModule
		if module == "" {
			module = executor.DefaultWasmModulePath()
		}
		opts = append(opts, executor.WithWasmModule(module), executor.WithPrecompile())
		if !noCache {
			opts = append(opts, executor.WithDiskCache())
		}
		if pages := cfg.MemoryPages(); pages > 0 {
			opts = append(opts, executor.WithMemoryLimit(pages))
		}
	}
	return executor.New(hostfunc.NewRegistry(), opts...)
}

func draftStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.Storage != config.StorageRedis {
		return store.NewMemory(store.WithMemoryTTL(draftTTL)), nil
	}
	s := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		store.WithPrefix(cfg.Redis.Prefix),
		store.WithTTL(draftTTL),
	)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return s, nil
}

func runOptionsFromConfig(cfg config.Config) []executor.Option {
	if len(cfg.AllowedHosts) == 0 {
		return nil
	}
	return []executor.Option{executor.WithAllowedHosts(cfg.AllowedHosts)}
}

func runServe(cmd *cobra.Command, args []string) {
	if err := serve(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(level)

	seed, err := cfg.Seed()
	if err != nil {
		return err
	}

	noCache, _ := cmd.Root().PersistentFlags().GetBool("no-cache")
	exec, err := executorFromConfig(cfg, noCache)
	if err != nil {
		return err
	}
	defer exec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drafts, err := draftStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer drafts.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := compiler.NewService()
	svc.Load(ctx)

	srv := server.New(server.Config{
		Compiler:   svc,
		Executor:   exec,
		RunOptions: runOptionsFromConfig(cfg),
		Timeout:    cfg.Timeout,
		Store:      drafts,
		Metrics:    metrics.New(reg),
		Logger:     logger,
		SessionTTL: cfg.SessionTTL,
		Seed:       seed,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("jsxpad server listening", "addr", cfg.Addr, "engine", exec.Engine(), "storage", cfg.Storage)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		srv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
