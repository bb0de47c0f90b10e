package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caffeineduck/jsxpad/internal/config"
	"github.com/caffeineduck/jsxpad/internal/store"
	"github.com/spf13/cobra"
)

func newServeCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "serve", Run: func(*cobra.Command, []string) {}}
	addEngineFlags(cmd)
	addServeFlags(cmd)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestServeConfigDefaults(t *testing.T) {
	cfg, err := loadServeConfig(newServeCommand(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg, config.Default()) {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestServeConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.yaml")
	os.WriteFile(path, []byte("addr: \":9000\"\ntimeout: 2s\nsession_ttl: 10m\nredis:\n  prefix: \"file:\"\n"), 0644)

	cfg, err := loadServeConfig(newServeCommand(t,
		"--config", path,
		"--addr", ":9100",
		"--allow-host", "api.example.com",
		"--redis-db", "3",
		"--memory", "64mb",
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr != ":9100" {
		t.Errorf("addr = %q, flag should win", cfg.Addr)
	}
	if cfg.Timeout != 2*time.Second || cfg.SessionTTL != 10*time.Minute {
		t.Errorf("file durations not applied: %v %v", cfg.Timeout, cfg.SessionTTL)
	}
	if cfg.Redis.Prefix != "file:" || cfg.Redis.DB != 3 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if len(cfg.AllowedHosts) != 1 || cfg.AllowedHosts[0] != "api.example.com" {
		t.Errorf("allowed hosts = %v", cfg.AllowedHosts)
	}
	if cfg.MemoryMB != 64 {
		t.Errorf("memory = %d, want 64", cfg.MemoryMB)
	}
}

func TestServeConfigInvalid(t *testing.T) {
	_, err := loadServeConfig(newServeCommand(t, "--engine", "rhino", "--storage", "disk"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"engine", "storage"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}

	_, err = loadServeConfig(newServeCommand(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	if err == nil || !strings.Contains(err.Error(), "config.load") {
		t.Errorf("expected load error, got %v", err)
	}
}

func TestServeDraftStore(t *testing.T) {
	ctx := context.Background()

	s, err := draftStore(ctx, config.Default())
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := s.(*store.Memory); !ok {
		t.Errorf("expected memory store, got %T", s)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mr.Close()

	cfg := config.Default()
	cfg.Storage = config.StorageRedis
	cfg.Redis.Addr = mr.Addr()
	s, err = draftStore(ctx, cfg)
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	defer s.Close()
	if err := s.Save(ctx, &store.Draft{ID: "a", Source: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("jsxpad:draft:a") {
		t.Error("draft should be stored under the configured prefix")
	}
	if ttl := mr.TTL("jsxpad:draft:a"); ttl != draftTTL {
		t.Errorf("ttl = %v, want %v", ttl, draftTTL)
	}

	mr.Close()
	if _, err := draftStore(ctx, cfg); err == nil {
		t.Error("expected an error when redis is down")
	}
}

func TestServeExecutorFromConfig(t *testing.T) {
	exec, err := executorFromConfig(config.Default(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer exec.Close()
	if exec.Engine() != "goja" {
		t.Errorf("engine = %q", exec.Engine())
	}

	cfg := config.Default()
	cfg.Engine = "wasm"
	cfg.WasmModule = filepath.Join(t.TempDir(), "missing.wasm")
	if _, err := executorFromConfig(cfg, true); err == nil {
		t.Error("expected precompile to fail without a module")
	}
}

func TestServeRunOptions(t *testing.T) {
	if opts := runOptionsFromConfig(config.Default()); len(opts) != 0 {
		t.Errorf("expected no options, got %d", len(opts))
	}
	cfg := config.Default()
	cfg.AllowedHosts = []string{"a.example"}
	if opts := runOptionsFromConfig(cfg); len(opts) != 1 {
		t.Errorf("expected one option, got %d", len(opts))
	}
}
