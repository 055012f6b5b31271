package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memEventStore struct {
	events map[eventdag.EventID]*eventdag.Event
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: map[eventdag.EventID]*eventdag.Event{}}
}

func (s *memEventStore) GetEvent(ctx context.Context, collection string, id eventdag.EventID) (*eventdag.Event, bool, error) {
	ev, ok := s.events[id]
	return ev, ok, nil
}

func (s *memEventStore) PutEvent(ctx context.Context, collection string, ev *eventdag.Event) error {
	s.events[ev.ID()] = ev
	return nil
}

func (s *memEventStore) EstimateCost(n int) int { return n }

func (s *memEventStore) Fetch(ctx context.Context, collection string, ids []eventdag.EventID) (int, map[eventdag.EventID]*eventdag.Event, error) {
	out := map[eventdag.EventID]*eventdag.Event{}
	for _, id := range ids {
		if ev, ok := s.events[id]; ok {
			out[id] = ev
		}
	}
	return len(ids), out, nil
}

func testID(seed byte) value.EntityID {
	var id value.EntityID
	id[0] = seed
	return id
}

func TestUpdateApplierCreatesEntityFromFirstEvent(t *testing.T) {
	store := newMemEventStore()
	id := testID(1)

	origin := entity.New(id, "tasks")
	origin.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("open"))
	ev, err := origin.Commit()
	require.NoError(t, err)
	require.NotNil(t, ev)

	var gotOld, gotCurrent *entity.Entity
	applier := &UpdateApplier{
		Entities:  entity.NewWeakEntitySet(time.Minute, 100),
		Events:    store,
		GetEvents: store,
		OnChange: func(ctx context.Context, collection string, old, current *entity.Entity, events []eventdag.EventID) {
			gotOld, gotCurrent = old, current
		},
	}

	item := UpdateItem{
		EntityID:   id,
		Collection: "tasks",
		Content:    Content{Events: []*Attested[EventFragment]{{Payload: EventFragment{Event: ev}}}},
	}
	require.NoError(t, applier.Apply(context.Background(), item))

	assert.Nil(t, gotOld)
	require.NotNil(t, gotCurrent)
	v, ok := gotCurrent.PathValue([]string{"status"})
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "open", s)
}

func TestUpdateApplierAppliesEventsEvenWhenStateDoesNotDescend(t *testing.T) {
	store := newMemEventStore()
	id := testID(2)

	origin := entity.New(id, "tasks")
	origin.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("open"))
	ev1, err := origin.Commit()
	require.NoError(t, err)

	entities := entity.NewWeakEntitySet(time.Minute, 100)
	applier := &UpdateApplier{Entities: entities, Events: store, GetEvents: store}
	require.NoError(t, applier.Apply(context.Background(), UpdateItem{
		EntityID:   id,
		Collection: "tasks",
		Content:    Content{Events: []*Attested[EventFragment]{{Payload: EventFragment{Event: ev1}}}},
	}))

	origin.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("in_progress"))
	ev2, err := origin.Commit()
	require.NoError(t, err)
	require.NotNil(t, ev2)

	var diverged eventdag.EventID
	diverged[0] = 0xFF
	bogusState := &entity.State{StateBuffers: map[string][]byte{}, Head: eventdag.NewClock(diverged)}

	var changeCount int
	applier.OnChange = func(ctx context.Context, collection string, old, current *entity.Entity, events []eventdag.EventID) {
		changeCount++
	}
	err = applier.Apply(context.Background(), UpdateItem{
		EntityID:   id,
		Collection: "tasks",
		Content: Content{
			Events: []*Attested[EventFragment]{{Payload: EventFragment{Event: ev2}}},
			State:  &Attested[StateFragment]{Payload: StateFragment{State: bogusState}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, changeCount, "event application must still fire OnChange even though state reconciliation didn't adopt")

	ent, ok := entities.Get(id)
	require.True(t, ok)
	assert.True(t, ent.Head().Contains(ev2.ID()), "ev2 must be applied unconditionally regardless of state reconciliation outcome")
}
