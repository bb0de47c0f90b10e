// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/caffeineduck/jsxpad/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunContract exercises s against the Store contract.
func RunContract(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := "contract-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		d := &store.Draft{ID: id, Source: "function App() {}", Seed: "seed"}
		require.NoError(t, s.Save(ctx, d))

		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, loaded.ID)
		assert.Equal(t, "function App() {}", loaded.Source)
		assert.Equal(t, "seed", loaded.Seed)
		assert.False(t, loaded.UpdatedAt.IsZero())
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, &store.Draft{ID: id, Source: "v2"}))
		loaded, err := s.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "v2", loaded.Source)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := s.Load(ctx, "missing-"+id)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, &store.Draft{ID: id}))
		require.NoError(t, s.Delete(ctx, id))

		_, err := s.Load(ctx, id)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := id+"-1", id+"-2"
		_ = s.Save(ctx, &store.Draft{ID: id1})
		_ = s.Save(ctx, &store.Draft{ID: id2})
		defer func() {
			_ = s.Delete(ctx, id1)
			_ = s.Delete(ctx, id2)
		}()

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
