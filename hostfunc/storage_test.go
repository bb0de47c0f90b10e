package hostfunc

import (
	"context"
	"slices"
	"sync"
	"testing"
)

func TestStorageSetGet(t *testing.T) {
	s := NewStorage(nil)
	ctx := context.Background()

	if _, err := s.Set(ctx, map[string]any{"key": "theme", "value": "dark"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := s.Get(ctx, map[string]any{"key": "theme"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "dark" {
		t.Errorf("expected dark, got %v", val)
	}
}

func TestStorageGetMissing(t *testing.T) {
	s := NewStorage(nil)

	val, err := s.Get(context.Background(), map[string]any{"key": "missing"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil, got %v", val)
	}
}

func TestStorageValuesAreStrings(t *testing.T) {
	s := NewStorage(nil)
	ctx := context.Background()

	tests := []struct {
		value any
		want  string
	}{
		{"hello", "hello"},
		{float64(42), "42"},
		{3.5, "3.5"},
		{true, "true"},
		{nil, "null"},
	}

	for _, tt := range tests {
		s.Set(ctx, map[string]any{"key": "k", "value": tt.value})
		got, _ := s.Get(ctx, map[string]any{"key": "k"})
		if got != tt.want {
			t.Errorf("Set(%v) then Get = %v, want %q", tt.value, got, tt.want)
		}
	}
}

func TestStorageRemoveAndClear(t *testing.T) {
	s := NewStorage(nil)
	ctx := context.Background()

	s.Set(ctx, map[string]any{"key": "a", "value": "1"})
	s.Set(ctx, map[string]any{"key": "b", "value": "2"})
	s.Remove(ctx, map[string]any{"key": "a"})

	if val, _ := s.Get(ctx, map[string]any{"key": "a"}); val != nil {
		t.Errorf("expected nil after remove, got %v", val)
	}
	if n := s.Store().Len(); n != 1 {
		t.Errorf("expected 1 entry, got %d", n)
	}

	s.Clear(ctx, nil)
	if n := s.Store().Len(); n != 0 {
		t.Errorf("expected empty store after clear, got %d", n)
	}
}

func TestStorageKeysSorted(t *testing.T) {
	s := NewStorage(nil)
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		s.Set(ctx, map[string]any{"key": k, "value": k})
	}

	result, err := s.Keys(ctx, nil)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if keys := result.([]string); !slices.Equal(keys, []string{"a", "b", "c"}) {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestStorageSharedStorePersists(t *testing.T) {
	store := NewStorageStore()
	ctx := context.Background()

	NewStorage(store).Set(ctx, map[string]any{"key": "count", "value": "1"})
	val, _ := NewStorage(store).Get(ctx, map[string]any{"key": "count"})
	if val != "1" {
		t.Errorf("expected value to survive across handlers, got %v", val)
	}

	seeded := NewStorageStoreFrom(store.Snapshot())
	if seeded.Len() != 1 {
		t.Errorf("expected seeded store to hold 1 entry, got %d", seeded.Len())
	}
}

func TestStorageMissingArgs(t *testing.T) {
	s := NewStorage(nil)
	ctx := context.Background()

	if _, err := s.Get(ctx, map[string]any{}); err == nil || err.Error() != "key required" {
		t.Errorf("expected 'key required', got %v", err)
	}
	if _, err := s.Set(ctx, map[string]any{"key": "k"}); err == nil || err.Error() != "value required" {
		t.Errorf("expected 'value required', got %v", err)
	}
}

// Security tests

func TestStorageKeyTooLarge(t *testing.T) {
	s := NewStorage(nil, WithMaxKeySize(10))

	_, err := s.Set(context.Background(), map[string]any{"key": "this-key-is-too-long", "value": "x"})
	if err == nil {
		t.Error("expected error for key too large")
	}
}

func TestStorageValueTooLarge(t *testing.T) {
	s := NewStorage(nil, WithMaxValueSize(10))

	_, err := s.Set(context.Background(), map[string]any{"key": "k", "value": "this-value-is-way-too-large"})
	if err == nil {
		t.Error("expected error for value too large")
	}
}

func TestStorageTooManyEntries(t *testing.T) {
	s := NewStorage(nil, WithMaxEntries(2))
	ctx := context.Background()

	s.Set(ctx, map[string]any{"key": "a", "value": "1"})
	s.Set(ctx, map[string]any{"key": "b", "value": "2"})

	if _, err := s.Set(ctx, map[string]any{"key": "c", "value": "3"}); err == nil {
		t.Error("expected error for too many entries")
	}
	if _, err := s.Set(ctx, map[string]any{"key": "a", "value": "updated"}); err != nil {
		t.Errorf("overwriting an existing key should not count against the quota: %v", err)
	}
}

func TestStorageRegister(t *testing.T) {
	r := NewRegistry()
	NewStorage(nil).Register(r)

	want := []string{"storage_clear", "storage_get", "storage_keys", "storage_remove", "storage_set"}
	if got := r.List(); !slices.Equal(got, want) {
		t.Errorf("registered %v, want %v", got, want)
	}
}

func TestStorageConcurrent(t *testing.T) {
	s := NewStorage(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + (n % 26)))
			s.Set(ctx, map[string]any{"key": key, "value": float64(n)})
			s.Get(ctx, map[string]any{"key": key})
		}(i)
	}
	wg.Wait()
}
