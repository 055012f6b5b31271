package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/value"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ankurah.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStorePutGetEventRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := value.EntityID{1}
	ent := entity.New(id, "tasks")
	ent.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("open"))
	ev, err := ent.Commit()
	require.NoError(t, err)
	require.NotNil(t, ev)

	require.NoError(t, s.PutEvent(ctx, "tasks", ev))

	got, ok, err := s.GetEvent(ctx, "tasks", ev.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ev.ID(), got.ID())
	require.Equal(t, ev.EntityID, got.EntityID)
}

func TestStoreSaveAndLoadState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := value.EntityID{2}
	ent := entity.New(id, "tasks")
	ent.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("open"))
	_, err := ent.Commit()
	require.NoError(t, err)

	state, err := ent.ToState()
	require.NoError(t, err)
	require.NoError(t, s.SaveState(ctx, "tasks", id, state, nil))

	loaded, ok, err := s.LoadState(ctx, "tasks", id)
	require.NoError(t, err)
	require.True(t, ok)

	v, ok := loaded.PathValue([]string{"status"})
	require.True(t, ok)
	str, _ := v.AsString()
	require.Equal(t, "open", str)
}
