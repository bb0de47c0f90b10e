package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
)

const (
	DefaultStorageMaxKeySize   = 1024
	DefaultStorageMaxValueSize = 64 * 1024
	DefaultStorageMaxEntries   = 1000
)

// StorageConfig bounds what sandboxed code may put into localStorage.
type StorageConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		MaxKeySize:   DefaultStorageMaxKeySize,
		MaxValueSize: DefaultStorageMaxValueSize,
		MaxEntries:   DefaultStorageMaxEntries,
	}
}

// StorageOption adjusts a StorageConfig.
type StorageOption func(*StorageConfig)

func WithMaxKeySize(n int) StorageOption {
	return func(c *StorageConfig) { c.MaxKeySize = n }
}

func WithMaxValueSize(n int) StorageOption {
	return func(c *StorageConfig) { c.MaxValueSize = n }
}

func WithMaxEntries(n int) StorageOption {
	return func(c *StorageConfig) { c.MaxEntries = n }
}

// StorageStore is the data behind localStorage. A caller that keeps one
// around and hands it to successive runs gets persistence across runs.
type StorageStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewStorageStore() *StorageStore {
	return &StorageStore{data: make(map[string]string)}
}

// NewStorageStoreFrom seeds a store with a copy of data.
func NewStorageStoreFrom(data map[string]string) *StorageStore {
	s := NewStorageStore()
	maps.Copy(s.data, data)
	return s
}

// Snapshot returns a copy of the stored entries.
func (s *StorageStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

func (s *StorageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Storage exposes a StorageStore as host functions with localStorage
// semantics: string keys, string values, missing keys read as null.
type Storage struct {
	cfg   StorageConfig
	store *StorageStore
}

// NewStorage returns handlers over store. A nil store gets a fresh one.
func NewStorage(store *StorageStore, opts ...StorageOption) *Storage {
	cfg := DefaultStorageConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if store == nil {
		store = NewStorageStore()
	}
	return &Storage{cfg: cfg, store: store}
}

// Store returns the backing store.
func (s *Storage) Store() *StorageStore {
	return s.store
}

// Register adds the storage_* functions to r.
func (s *Storage) Register(r *Registry) {
	r.Register("storage_get", s.Get)
	r.Register("storage_set", s.Set)
	r.Register("storage_remove", s.Remove)
	r.Register("storage_keys", s.Keys)
	r.Register("storage_clear", s.Clear)
}

func (s *Storage) Get(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	val, ok := s.store.data[key]
	s.store.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return val, nil
}

func (s *Storage) Set(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	raw, ok := args["value"]
	if !ok {
		return nil, errors.New("value required")
	}
	val := stringify(raw)
	if s.cfg.MaxValueSize > 0 && len(val) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("value exceeds max size (%d bytes)", s.cfg.MaxValueSize)
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, exists := s.store.data[key]; !exists && s.cfg.MaxEntries > 0 && len(s.store.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("storage quota exceeded (%d entries)", s.cfg.MaxEntries)
	}
	s.store.data[key] = val
	return "ok", nil
}

func (s *Storage) Remove(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.store.mu.Lock()
	delete(s.store.data, key)
	s.store.mu.Unlock()

	return "ok", nil
}

// Keys returns the stored keys in sorted order.
func (s *Storage) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.store.data)), nil
}

func (s *Storage) Clear(ctx context.Context, args map[string]any) (any, error) {
	s.store.mu.Lock()
	clear(s.store.data)
	s.store.mu.Unlock()
	return "ok", nil
}

func (s *Storage) key(args map[string]any) (string, error) {
	key, ok := args["key"].(string)
	if !ok {
		return "", errors.New("key required")
	}
	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return "", fmt.Errorf("key exceeds max size (%d bytes)", s.cfg.MaxKeySize)
	}
	return key, nil
}

// stringify coerces a value the way localStorage.setItem does.
func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
