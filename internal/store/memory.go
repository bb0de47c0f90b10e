package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Drafts are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	drafts map[string]memoryEntry
	ttl    time.Duration
	now    func() time.Time
}

type memoryEntry struct {
	draft   Draft
	expires time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithMemoryTTL expires drafts ttl after their last save.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		m.ttl = ttl
	}
}

// NewMemory creates an empty Memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		drafts: make(map[string]memoryEntry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Save(ctx context.Context, d *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = m.now()
	}
	e := memoryEntry{draft: cp}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.drafts[d.ID] = e
	return nil
}

func (m *Memory) Load(ctx context.Context, id string) (*Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.drafts[id]
	if !ok || m.expired(e) {
		return nil, ErrNotFound
	}
	d := e.draft
	return &d, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

// List returns live draft ids in sorted order, dropping expired ones.
func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.drafts))
	for id, e := range m.drafts {
		if m.expired(e) {
			delete(m.drafts, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !m.now().Before(e.expires)
}
