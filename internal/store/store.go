// Package store persists playground drafts so a session can be rebuilt
// after it was evicted. Persistence is best effort.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no draft exists for an id.
var ErrNotFound = errors.New("draft not found")

// Draft is the persisted state of one session's source buffer.
type Draft struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Seed      string    `json:"seed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store saves and loads drafts by session id.
type Store interface {
	Save(ctx context.Context, d *Draft) error
	Load(ctx context.Context, id string) (*Draft, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}
