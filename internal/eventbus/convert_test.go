package eventbus

import (
	"testing"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/subscription"
	"github.com/ankurah/ankurah/internal/value"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeEventRoundTrip(t *testing.T) {
	id := value.EntityID{9}
	ent := entity.New(id, "tasks")
	ent.Backend(entity.BackendLWW).(*entity.LWW).Set("status", value.String("open"))
	ev, err := ent.Commit()
	require.NoError(t, err)

	item := subscription.UpdateItem{
		EntityID:   id,
		Collection: "tasks",
		Content:    subscription.Content{Events: []*subscription.Attested[subscription.EventFragment]{{Payload: subscription.EventFragment{Event: ev}}}},
	}

	env, err := ToEnvelope(item)
	require.NoError(t, err)
	require.Equal(t, KindEvents, env.Kind)

	back, err := ToUpdateItem(env)
	require.NoError(t, err)
	require.Len(t, back.Content.Events, 1)
	require.Equal(t, ev.ID(), back.Content.Events[0].Payload.Event.ID())
}
