package eventdag

import (
	"testing"

	"github.com/ankurah/ankurah/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventIDIsStableForIdenticalInputs(t *testing.T) {
	id := value.EntityID{1, 2, 3}
	ops := []Operation{{Backend: "lww", Diff: []byte("a")}}
	parent := NewClock()

	e1 := NewEvent(id, "tasks", ops, parent)
	e2 := NewEvent(id, "tasks", ops, parent)

	assert.Equal(t, e1.ID(), e2.ID(), "identical inputs must hash to the same event id")
}

func TestNewEventIDExcludesCollection(t *testing.T) {
	id := value.EntityID{1, 2, 3}
	ops := []Operation{{Backend: "lww", Diff: []byte("a")}}
	parent := NewClock()

	inTasks := NewEvent(id, "tasks", ops, parent)
	inNotes := NewEvent(id, "notes", ops, parent)

	assert.Equal(t, inTasks.ID(), inNotes.ID(), "collection must not affect event identity, so moving an entity between collections preserves its event ids")
	assert.Equal(t, "tasks", inTasks.Collection)
	assert.Equal(t, "notes", inNotes.Collection)
}

func TestNewEventIDChangesWithOperationsOrParent(t *testing.T) {
	id := value.EntityID{1, 2, 3}
	base := NewEvent(id, "tasks", []Operation{{Backend: "lww", Diff: []byte("a")}}, NewClock())
	diffOps := NewEvent(id, "tasks", []Operation{{Backend: "lww", Diff: []byte("b")}}, NewClock())
	assert.NotEqual(t, base.ID(), diffOps.ID())

	var parentID EventID
	parentID[0] = 9
	diffParent := NewEvent(id, "tasks", []Operation{{Backend: "lww", Diff: []byte("a")}}, NewClock(parentID))
	assert.NotEqual(t, base.ID(), diffParent.ID())
}

func TestNewEventCanonicalizesOperationOrderByBackend(t *testing.T) {
	id := value.EntityID{1, 2, 3}
	parent := NewClock()
	a := NewEvent(id, "tasks", []Operation{
		{Backend: "z", Diff: []byte("1")},
		{Backend: "a", Diff: []byte("2")},
	}, parent)
	b := NewEvent(id, "tasks", []Operation{
		{Backend: "a", Diff: []byte("2")},
		{Backend: "z", Diff: []byte("1")},
	}, parent)

	require.Equal(t, a.ID(), b.ID(), "operations must be canonically ordered before hashing regardless of construction order")
	assert.Equal(t, "a", a.Operations[0].Backend)
	assert.Equal(t, "a", b.Operations[0].Backend)
}

func TestClockEqualAndContains(t *testing.T) {
	var idA, idB EventID
	idA[0], idB[0] = 1, 2

	c1 := NewClock(idA, idB)
	c2 := NewClock(idB, idA)
	assert.True(t, c1.Equal(c2))
	assert.True(t, c1.Contains(idA))
	assert.Equal(t, 2, c1.Len())

	c3 := NewClock(idA)
	assert.False(t, c1.Equal(c3))
}
