package eventdag

import (
	"context"
	"errors"
	"testing"

	"github.com/ankurah/ankurah/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGetEvents answers Fetch from an in-memory map, charging 1 per id
// requested regardless of whether it was found, like LocalEventGetter.
type fakeGetEvents struct {
	events map[EventID]*Event
}

func newFakeGetEvents(evs ...*Event) *fakeGetEvents {
	g := &fakeGetEvents{events: map[EventID]*Event{}}
	for _, ev := range evs {
		g.events[ev.ID()] = ev
	}
	return g
}

func (g *fakeGetEvents) EstimateCost(n int) int { return n }

func (g *fakeGetEvents) Fetch(ctx context.Context, collection string, ids []EventID) (int, map[EventID]*Event, error) {
	out := make(map[EventID]*Event, len(ids))
	for _, id := range ids {
		if ev, ok := g.events[id]; ok {
			out[id] = ev
		}
	}
	return len(ids), out, nil
}

func op(b byte) []Operation { return []Operation{{Backend: "lww", Diff: []byte{b}}} }

func TestCompareLineageEqual(t *testing.T) {
	root := NewEvent(value.EntityID{1}, "tasks", op(0), NewClock())
	getter := newFakeGetEvents(root)
	rel, err := CompareLineage(context.Background(), "tasks", NewClock(root.ID()), NewClock(root.ID()), getter, 100)
	require.NoError(t, err)
	assert.Equal(t, RelationEqual, rel)
}

func TestCompareLineageDescendsAndDescendedBy(t *testing.T) {
	root := NewEvent(value.EntityID{1}, "tasks", op(0), NewClock())
	child := NewEvent(value.EntityID{1}, "tasks", op(1), NewClock(root.ID()))
	getter := newFakeGetEvents(root, child)

	rel, err := CompareLineage(context.Background(), "tasks", NewClock(child.ID()), NewClock(root.ID()), getter, 100)
	require.NoError(t, err)
	assert.Equal(t, RelationDescends, rel, "child must descend root")

	rel, err = CompareLineage(context.Background(), "tasks", NewClock(root.ID()), NewClock(child.ID()), getter, 100)
	require.NoError(t, err)
	assert.Equal(t, RelationDescendedBy, rel, "root must be descended-by child")
}

func TestCompareLineageConcurrentSiblings(t *testing.T) {
	root := NewEvent(value.EntityID{1}, "tasks", op(0), NewClock())
	childA := NewEvent(value.EntityID{1}, "tasks", op(1), NewClock(root.ID()))
	childB := NewEvent(value.EntityID{1}, "tasks", op(2), NewClock(root.ID()))
	getter := newFakeGetEvents(root, childA, childB)

	rel, err := CompareLineage(context.Background(), "tasks", NewClock(childA.ID()), NewClock(childB.ID()), getter, 100)
	require.NoError(t, err)
	assert.Equal(t, RelationConcurrent, rel, "siblings off a common root with no cross-descent are concurrent")
}

func TestCompareLineageDiverged(t *testing.T) {
	root := NewEvent(value.EntityID{1}, "tasks", op(0), NewClock())
	childA := NewEvent(value.EntityID{1}, "tasks", op(1), NewClock(root.ID()))
	childB := NewEvent(value.EntityID{1}, "tasks", op(2), NewClock(root.ID()))
	merge := NewEvent(value.EntityID{1}, "tasks", op(3), NewClock(childA.ID(), childB.ID()))
	sibling := NewEvent(value.EntityID{1}, "tasks", op(4), NewClock(childA.ID()))
	getter := newFakeGetEvents(root, childA, childB, merge, sibling)

	// merge descends both childA and childB; {sibling, childB} is a frontier
	// that shares childB with merge's ancestry but not sibling, so neither
	// side's ancestry wholly contains the other: diverged.
	rel, err := CompareLineage(context.Background(), "tasks", NewClock(merge.ID()), NewClock(sibling.ID(), childB.ID()), getter, 100)
	require.NoError(t, err)
	assert.Equal(t, RelationDiverged, rel)
}

func TestCompareLineageBudgetExceeded(t *testing.T) {
	root := NewEvent(value.EntityID{1}, "tasks", op(0), NewClock())
	childA := NewEvent(value.EntityID{1}, "tasks", op(1), NewClock(root.ID()))
	childB := NewEvent(value.EntityID{1}, "tasks", op(2), NewClock(root.ID()))
	getter := newFakeGetEvents(root, childA, childB)

	_, err := CompareLineage(context.Background(), "tasks", NewClock(childA.ID()), NewClock(childB.ID()), getter, 1)
	require.Error(t, err)
	var budgetErr *ErrBudgetExceeded
	require.True(t, errors.As(err, &budgetErr))
	assert.Equal(t, 1, budgetErr.Budget)
}
