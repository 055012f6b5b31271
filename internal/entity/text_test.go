package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

func commitTextLocal(t *testing.T, txt *Text, entityID value.EntityID, parent eventdag.Clock) *eventdag.Event {
	t.Helper()
	diff, ok := txt.ToOperations()
	require.True(t, ok)
	ev := eventdag.NewEvent(entityID, "docs", []eventdag.Operation{{Backend: BackendYrs, Diff: diff}}, parent)
	txt.Stamp(ev.ID(), parent.Len()+1)
	return ev
}

// S4 — concurrent inserts at the same visible position both survive and are
// ordered deterministically regardless of delivery order.
func TestTextConcurrentInsertsBothSurvive(t *testing.T) {
	base := NewText()
	base.Insert(0, "ac")
	baseEv := commitTextLocal(t, base, value.EntityID{1}, eventdag.NewClock())

	// Two replicas fork from the committed base and insert "B" and "X"
	// respectively at position 1 (between 'a' and 'c'), concurrently.
	replicaA := base.Fork().(*Text)
	replicaA.Insert(1, "B")
	evA := commitTextLocal(t, replicaA, value.EntityID{1}, eventdag.NewClock(baseEv.ID()))

	replicaB := base.Fork().(*Text)
	replicaB.Insert(1, "X")
	evB := commitTextLocal(t, replicaB, value.EntityID{1}, eventdag.NewClock(baseEv.ID()))

	// Apply A-then-B on one merge target, B-then-A on another.
	mergeAB := base.Fork().(*Text)
	require.NoError(t, mergeAB.ApplyOperations(evA.Operations[0].Diff, ApplyContext{EventID: evA.ID()}))
	require.NoError(t, mergeAB.ApplyOperations(evB.Operations[0].Diff, ApplyContext{EventID: evB.ID()}))

	mergeBA := base.Fork().(*Text)
	require.NoError(t, mergeBA.ApplyOperations(evB.Operations[0].Diff, ApplyContext{EventID: evB.ID()}))
	require.NoError(t, mergeBA.ApplyOperations(evA.Operations[0].Diff, ApplyContext{EventID: evA.ID()}))

	assert.Equal(t, 4, len([]rune(mergeAB.String())), "both concurrent inserts must be retained")
	assert.Equal(t, mergeAB.String(), mergeBA.String(), "convergence: order of delivery must not affect final content")
}

func TestTextDeleteThenInsertConvergence(t *testing.T) {
	base := NewText()
	base.Insert(0, "hello")
	_ = commitTextLocal(t, base, value.EntityID{1}, eventdag.NewClock())

	del := base.Fork().(*Text)
	del.Delete(1, 1) // remove 'e'
	evDel := commitTextLocal(t, del, value.EntityID{1}, eventdag.NewClock())

	ins := base.Fork().(*Text)
	ins.Insert(5, "!")
	evIns := commitTextLocal(t, ins, value.EntityID{1}, eventdag.NewClock())

	merged := base.Fork().(*Text)
	require.NoError(t, merged.ApplyOperations(evDel.Operations[0].Diff, ApplyContext{EventID: evDel.ID()}))
	require.NoError(t, merged.ApplyOperations(evIns.Operations[0].Diff, ApplyContext{EventID: evIns.ID()}))

	assert.Equal(t, "hllo!", merged.String())
}

func TestTextIdempotentReapplication(t *testing.T) {
	base := NewText()
	base.Insert(0, "ab")
	ev := commitTextLocal(t, base, value.EntityID{1}, eventdag.NewClock())

	replica := NewText()
	require.NoError(t, replica.ApplyOperations(ev.Operations[0].Diff, ApplyContext{EventID: ev.ID()}))
	require.NoError(t, replica.ApplyOperations(ev.Operations[0].Diff, ApplyContext{EventID: ev.ID()}))

	assert.Equal(t, "ab", replica.String())
}

func TestTextStateRoundTrip(t *testing.T) {
	base := NewText()
	base.Insert(0, "hello")
	_ = commitTextLocal(t, base, value.EntityID{1}, eventdag.NewClock())

	buf, err := base.ToStateBuffer()
	require.NoError(t, err)

	loaded := NewText()
	require.NoError(t, loaded.LoadStateBuffer(buf))
	assert.Equal(t, "hello", loaded.String())
}
