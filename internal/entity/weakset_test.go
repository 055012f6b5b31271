package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankurah/ankurah/internal/value"
)

func TestWeakEntitySetGetOrCreateReturnsSameInstance(t *testing.T) {
	w := NewWeakEntitySet(time.Minute, 100)
	id := value.EntityID{1}
	now := time.Unix(0, 0)

	e1 := w.GetOrCreate(id, "widgets", now)
	e2 := w.GetOrCreate(id, "widgets", now)
	assert.Same(t, e1, e2, "at most one live entity per EntityId")
}

func TestWeakEntitySetEvictsIdleEntries(t *testing.T) {
	w := NewWeakEntitySet(time.Minute, 100)
	id := value.EntityID{1}
	start := time.Unix(0, 0)
	w.GetOrCreate(id, "widgets", start)

	_, ok := w.Get(id)
	require.True(t, ok)

	later := start.Add(2 * time.Minute)
	w.GetOrCreate(value.EntityID{2}, "widgets", later) // triggers eviction sweep

	_, ok = w.Get(id)
	assert.False(t, ok, "entry idle past evictAfter must be evicted")
}

func TestWeakEntitySetEvictsLRUWhenOverCapacity(t *testing.T) {
	w := NewWeakEntitySet(time.Hour, 2)
	now := time.Unix(0, 0)
	w.GetOrCreate(value.EntityID{1}, "widgets", now)
	w.GetOrCreate(value.EntityID{2}, "widgets", now.Add(time.Second))
	w.GetOrCreate(value.EntityID{3}, "widgets", now.Add(2*time.Second))

	assert.LessOrEqual(t, w.Len(), 2)
	_, ok := w.Get(value.EntityID{3})
	assert.True(t, ok, "most recently accessed entry must survive eviction")
}
