package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/caffeineduck/jsxpad/internal/store"
	"github.com/caffeineduck/jsxpad/playground"
	"github.com/google/uuid"
)

var errSessionNotFound = errors.New("session not found")

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.RWMutex
	ttl      time.Duration

	newPlayground func(seed string) *playground.Playground
	drafts        store.Store
	logger        *slog.Logger
	onOpen        func()
	onClose       func()
}

type serverSession struct {
	pg       *playground.Playground
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration, drafts store.Store, newPlayground func(seed string) *playground.Playground, logger *slog.Logger) *sessionManager {
	return &sessionManager{
		sessions:      make(map[string]*serverSession),
		ttl:           ttl,
		newPlayground: newPlayground,
		drafts:        drafts,
		logger:        logger,
		onOpen:        func() {},
		onClose:       func() {},
	}
}

func (sm *sessionManager) create(ctx context.Context, seed string) (string, *playground.Playground, error) {
	pg := sm.newPlayground(seed)
	id := uuid.NewString()

	if err := sm.drafts.Save(ctx, &store.Draft{ID: id, Source: pg.Source(), Seed: pg.Seed()}); err != nil {
		return "", nil, err
	}

	sm.add(id, pg)
	sm.logger.Info("session created", "session_id", id)
	return id, pg, nil
}

func (sm *sessionManager) add(id string, pg *playground.Playground) {
	sm.mu.Lock()
	sm.sessions[id] = &serverSession{
		pg:       pg,
		lastUsed: time.Now(),
	}
	sm.mu.Unlock()
	sm.onOpen()
}

// get returns a live session, rebuilding it from its draft when it was
// evicted.
func (sm *sessionManager) get(ctx context.Context, id string) (*playground.Playground, error) {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	if ok {
		ss.lastUsed = time.Now()
	}
	sm.mu.Unlock()
	if ok {
		return ss.pg, nil
	}

	draft, err := sm.drafts.Load(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errSessionNotFound
		}
		return nil, err
	}

	pg := sm.newPlayground(draft.Seed)
	pg.SetSource(draft.Source)

	sm.mu.Lock()
	if existing, ok := sm.sessions[id]; ok {
		existing.lastUsed = time.Now()
		sm.mu.Unlock()
		return existing.pg, nil
	}
	sm.sessions[id] = &serverSession{pg: pg, lastUsed: time.Now()}
	sm.mu.Unlock()
	sm.onOpen()

	sm.logger.Info("session restored from draft", "session_id", id)
	return pg, nil
}

// save persists the session's current source.
func (sm *sessionManager) save(ctx context.Context, id string, pg *playground.Playground) error {
	return sm.drafts.Save(ctx, &store.Draft{ID: id, Source: pg.Source(), Seed: pg.Seed()})
}

func (sm *sessionManager) close(ctx context.Context, id string) bool {
	sm.mu.Lock()
	_, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	if ok {
		sm.onClose()
	}

	if _, err := sm.drafts.Load(ctx, id); err == nil {
		ok = true
	}
	if err := sm.drafts.Delete(ctx, id); err != nil {
		sm.logger.Warn("failed to delete draft", "session_id", id, "error", err)
	}
	if ok {
		sm.logger.Info("session closed", "session_id", id)
	}
	return ok
}

func (sm *sessionManager) len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// evict drops sessions idle for longer than the TTL. Their drafts stay in
// the store.
func (sm *sessionManager) evict(now time.Time) int {
	sm.mu.Lock()
	var n int
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			delete(sm.sessions, id)
			n++
			sm.logger.Debug("session evicted", "session_id", id)
		}
	}
	sm.mu.Unlock()
	for i := 0; i < n; i++ {
		sm.onClose()
	}
	return n
}

// cleanup evicts idle sessions until ctx is done.
func (sm *sessionManager) cleanup(ctx context.Context) {
	interval := time.Minute
	if sm.ttl/2 < interval {
		interval = max(sm.ttl/2, time.Second)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sm.evict(now)
		}
	}
}

func (sm *sessionManager) closeAll() {
	sm.mu.Lock()
	n := len(sm.sessions)
	for id := range sm.sessions {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	for i := 0; i < n; i++ {
		sm.onClose()
	}
}
