package eventbus

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/subscription"
	"github.com/ankurah/ankurah/internal/value"
)

// ToEnvelope converts an outbound subscription.UpdateItem into its wire
// Envelope, the inverse of ToUpdateItem.
func ToEnvelope(item subscription.UpdateItem) (*Envelope, error) {
	env := &Envelope{
		Collection: item.Collection,
		EntityID:   item.EntityID.String(),
	}

	if item.Content.State != nil {
		env.Kind = KindState
		s := item.Content.State.Payload.State
		headIDs := s.Head.IDs()
		headHex := make([]string, len(headIDs))
		for i, id := range headIDs {
			headHex[i] = id.String()
		}
		env.State = &WireState{Head: headHex, StateBuffers: s.StateBuffers}
		return env, nil
	}

	env.Kind = KindEvents
	for _, frag := range item.Content.Events {
		ev := frag.Payload.Event
		parentIDs := ev.Parent.IDs()
		parentHex := make([]string, len(parentIDs))
		for i, id := range parentIDs {
			parentHex[i] = id.String()
		}
		ops := make([]WireOperation, len(ev.Operations))
		for i, op := range ev.Operations {
			ops[i] = WireOperation{Backend: op.Backend, Diff: op.Diff}
		}
		env.Events = append(env.Events, WireEvent{
			EntityID:   ev.EntityID.String(),
			Collection: ev.Collection,
			ParentIDs:  parentHex,
			Operations: ops,
		})
	}
	return env, nil
}

// ToUpdateItem converts a received Envelope into a subscription.UpdateItem
// ready for UpdateApplier.Apply.
func ToUpdateItem(env *Envelope) (subscription.UpdateItem, error) {
	id, err := value.ParseEntityID(env.EntityID)
	if err != nil {
		return subscription.UpdateItem{}, fmt.Errorf("eventbus: bad entity id %q: %w", env.EntityID, err)
	}

	item := subscription.UpdateItem{EntityID: id, Collection: env.Collection}

	for _, we := range env.Events {
		parents := make([]eventdag.EventID, 0, len(we.ParentIDs))
		for _, hex := range we.ParentIDs {
			pid, err := decodeHexEventID(hex)
			if err != nil {
				return subscription.UpdateItem{}, err
			}
			parents = append(parents, pid)
		}
		ops := make([]eventdag.Operation, len(we.Operations))
		for i, op := range we.Operations {
			ops[i] = eventdag.Operation{Backend: op.Backend, Diff: op.Diff}
		}
		ev := eventdag.NewEvent(id, env.Collection, ops, eventdag.NewClock(parents...))
		item.Content.Events = append(item.Content.Events, &subscription.Attested[subscription.EventFragment]{
			Payload: subscription.EventFragment{Event: ev},
		})
	}

	if env.State != nil {
		headIDs := make([]eventdag.EventID, 0, len(env.State.Head))
		for _, hex := range env.State.Head {
			hid, err := decodeHexEventID(hex)
			if err != nil {
				return subscription.UpdateItem{}, err
			}
			headIDs = append(headIDs, hid)
		}
		item.Content.State = &subscription.Attested[subscription.StateFragment]{
			Payload: subscription.StateFragment{State: &entity.State{
				StateBuffers: env.State.StateBuffers,
				Head:         eventdag.NewClock(headIDs...),
			}},
		}
	}
	return item, nil
}

func decodeHexEventID(s string) (eventdag.EventID, error) {
	var id eventdag.EventID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("eventbus: malformed event id %q", s)
	}
	copy(id[:], b)
	return id, nil
}

// NewApplierHandler wraps a subscription.UpdateApplier as an eventbus
// Handler: every envelope received from a peer subject is converted and
// applied locally, which in turn fires the UpdateApplier's OnChange hook
// (normally a subscription.ReactorNotifier) for any local subscribers.
func NewApplierHandler(id string, applier *subscription.UpdateApplier) Handler {
	return HandlerFunc{Name: id, Fn: func(ctx context.Context, env *Envelope) error {
		item, err := ToUpdateItem(env)
		if err != nil {
			return err
		}
		return applier.Apply(ctx, item)
	}}
}
