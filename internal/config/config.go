// Package config loads the settings for jsxpad serve from an optional YAML
// file. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caffeineduck/jsxpad/internal/logging"
	"gopkg.in/yaml.v3"
)

// Storage backends for drafts.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config holds every serve setting.
type Config struct {
	Addr       string
	Engine     string
	WasmModule string
	Timeout    time.Duration
	// MemoryMB bounds wasm engine memory. Zero means no limit.
	MemoryMB     int
	LogLevel     string
	SessionTTL   time.Duration
	SeedFile     string
	Storage      string
	Redis        Redis
	AllowedHosts []string
}

// Redis configures the redis draft store.
type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Addr:       ":8080",
		Engine:     "goja",
		Timeout:    5 * time.Second,
		LogLevel:   "info",
		SessionTTL: 30 * time.Minute,
		Storage:    StorageMemory,
		Redis: Redis{
			Addr:   "localhost:6379",
			Prefix: "jsxpad:",
		},
	}
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return Config{}, &Error{Op: "config.load", Path: path, Err: err}
	}

	var dto YAMLConfig
	if err := yaml.Unmarshal(b, &dto); err != nil {
		return Config{}, &Error{Op: "config.load", Path: path, Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
	}

	if err := apply(&cfg, dto); err != nil {
		return Config{}, &Error{Op: "config.load", Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &Error{Op: "config.load", Path: path, Err: err}
	}
	return cfg, nil
}

func apply(cfg *Config, dto YAMLConfig) error {
	setString(&cfg.Addr, dto.Addr)
	setString(&cfg.Engine, dto.Engine)
	setString(&cfg.WasmModule, dto.WasmModule)
	setString(&cfg.LogLevel, dto.LogLevel)
	setString(&cfg.SeedFile, dto.SeedFile)
	setString(&cfg.Storage, dto.Storage)
	setString(&cfg.Redis.Addr, dto.Redis.Addr)
	setString(&cfg.Redis.Password, dto.Redis.Password)
	setString(&cfg.Redis.Prefix, dto.Redis.Prefix)

	if dto.Memory != nil {
		cfg.MemoryMB = *dto.Memory
	}
	if dto.Redis.DB != nil {
		cfg.Redis.DB = *dto.Redis.DB
	}
	if dto.AllowedHosts != nil {
		cfg.AllowedHosts = dto.AllowedHosts
	}

	if err := setDuration(&cfg.Timeout, "timeout", dto.Timeout); err != nil {
		return err
	}
	return setDuration(&cfg.SessionTTL, "session_ttl", dto.SessionTTL)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, field, err)
	}
	*dst = d
	return nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: addr is required", ErrInvalid))
	}
	switch c.Engine {
	case "goja", "wasm":
	default:
		errs = append(errs, fmt.Errorf("%w: engine must be goja or wasm, got %q", ErrInvalid, c.Engine))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout must be positive", ErrInvalid))
	}
	if c.MemoryMB < 0 {
		errs = append(errs, fmt.Errorf("%w: memory must not be negative", ErrInvalid))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("%w: session_ttl must be positive", ErrInvalid))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalid, err))
	}
	switch c.Storage {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("%w: redis.addr is required for redis storage", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: storage must be memory or redis, got %q", ErrInvalid, c.Storage))
	}
	return errors.Join(errs...)
}

// Seed returns the contents of SeedFile, or "" when none is set.
func (c Config) Seed() (string, error) {
	if c.SeedFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.SeedFile)
	if err != nil {
		return "", &Error{Op: "config.seed", Path: c.SeedFile, Err: err}
	}
	return string(b), nil
}

// MemoryPages converts MemoryMB to 64KB wasm pages.
func (c Config) MemoryPages() uint32 {
	if c.MemoryMB <= 0 {
		return 0
	}
	return uint32(c.MemoryMB) * 16
}
