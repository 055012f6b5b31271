package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankurah/ankurah/internal/value"
)

func TestEntityCommitAdvancesHead(t *testing.T) {
	e := New(value.EntityID{1}, "widgets")
	lww := e.Backend(BackendLWW).(*LWW)
	lww.Set("name", value.String("sprocket"))

	ev, err := e.Commit()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, 1, e.Head().Len())
	assert.True(t, e.Head().Contains(ev.ID()))

	// idempotent: nothing dirty, Commit returns nil
	ev2, err := e.Commit()
	require.NoError(t, err)
	assert.Nil(t, ev2)
}

func TestEntityPathValueID(t *testing.T) {
	id := value.EntityID{1, 2, 3}
	e := New(id, "widgets")
	v, ok := e.PathValue([]string{"id"})
	require.True(t, ok)
	got, _ := v.AsEntityID()
	assert.Equal(t, id, got)
}

func TestEntitySnapshotIsIndependent(t *testing.T) {
	e := New(value.EntityID{1}, "widgets")
	lww := e.Backend(BackendLWW).(*LWW)
	lww.Set("name", value.String("a"))
	_, err := e.Commit()
	require.NoError(t, err)

	snap := e.Snapshot()

	lww2 := e.Backend(BackendLWW).(*LWW)
	lww2.Set("name", value.String("b"))
	_, err = e.Commit()
	require.NoError(t, err)

	snapVal, ok := snap.PathValue([]string{"name"})
	require.True(t, ok)
	s, _ := snapVal.AsString()
	assert.Equal(t, "a", s, "snapshot must not observe later mutations")

	liveVal, ok := e.PathValue([]string{"name"})
	require.True(t, ok)
	s2, _ := liveVal.AsString()
	assert.Equal(t, "b", s2)
}

func TestEntityStateRoundTrip(t *testing.T) {
	e := New(value.EntityID{1}, "widgets")
	lww := e.Backend(BackendLWW).(*LWW)
	lww.Set("name", value.String("sprocket"))
	_, err := e.Commit()
	require.NoError(t, err)

	st, err := e.ToState()
	require.NoError(t, err)

	e2 := New(value.EntityID{1}, "widgets")
	require.NoError(t, e2.ApplyState(st))

	v, ok := e2.PathValue([]string{"name"})
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "sprocket", s)
	assert.True(t, e2.Head().Equal(e.Head()))
}
