package subscription

import (
	"context"
	"time"

	"github.com/ankurah/ankurah/internal/apperror"
	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// EventStore is the durable event log the applier reads and writes;
// concrete storage backends implement it. Embeds eventdag.EventStore so a
// DagCausalContext builder can read through the same interface.
type EventStore interface {
	eventdag.EventStore
	PutEvent(ctx context.Context, collection string, ev *eventdag.Event) error
}

// EntitySaver persists a reprojected, re-attested entity state, per
// spec.md §4.6 step 3.
type EntitySaver interface {
	SaveState(ctx context.Context, collection string, id value.EntityID, state *entity.State, attestations []AuthData) error
}

// ChangeHandler is notified once per applied update item whose entity
// actually changed; current is the post-apply entity, old is nil if the
// entity didn't previously exist. This is the hook the reactor attaches to
// via Reactor.ApplyChange.
type ChangeHandler func(ctx context.Context, collection string, old, current *entity.Entity, events []eventdag.EventID)

// UpdateApplier is the inbound half of the subscription pipeline: it turns
// peer UpdateItems into local entity mutations, in the order spec.md §4.6
// mandates (events before state, unconditionally retained even when state
// reconciliation doesn't adopt the peer's state). Grounded on
// _examples/original_source/core/src/connector.rs and
// core/src/reactor/subscription_state.rs's notify path.
type UpdateApplier struct {
	Entities  *entity.WeakEntitySet
	Events    EventStore
	Saver     EntitySaver
	Verifier  AttestationVerifier
	GetEvents eventdag.GetEvents // used to fetch missing ancestors while resolving descends/depth
	Budget    int                // retrieval budget per update item; 0 means DefaultBudget

	OnChange ChangeHandler
}

const DefaultBudget = 256

// Apply processes one inbound UpdateItem per spec.md §4.6's four steps.
// Errors are always a *apperror.Error member of the taxonomy; nothing is
// ever silent.
func (a *UpdateApplier) Apply(ctx context.Context, item UpdateItem) error {
	collection := item.Collection
	id := item.EntityID

	ent := a.Entities.GetOrCreate(id, collection, time.Now())
	existedBefore := ent.Head().Len() > 0
	var before *entity.Entity
	if existedBefore {
		before = ent.Snapshot()
	}

	appliedEvents, err := a.applyEvents(ctx, collection, ent, item.Content.Events)
	if err != nil {
		return err
	}

	stateAdopted := false
	if item.Content.State != nil {
		adopted, err := a.reconcileState(ctx, collection, ent, item.Content.State)
		if err != nil {
			return err
		}
		stateAdopted = adopted
	}

	changed := len(appliedEvents) > 0 || stateAdopted || !existedBefore
	if changed {
		if err := a.reprojectAndReattest(ctx, collection, ent); err != nil {
			return err
		}
	}

	if changed && a.OnChange != nil {
		a.OnChange(ctx, collection, before, ent, appliedEvents)
	}
	return nil
}

func (a *UpdateApplier) applyEvents(ctx context.Context, collection string, ent *entity.Entity, fragments []*Attested[EventFragment]) ([]eventdag.EventID, error) {
	var applied []eventdag.EventID
	for _, frag := range fragments {
		ev := frag.Payload.Event
		if a.Verifier != nil {
			if err := a.Verifier.VerifyEvent(collection, ev, frag.Attestations); err != nil {
				return applied, apperror.New(apperror.Rejected, ev.ID().String(), err)
			}
		}
		if existing, ok, err := a.Events.GetEvent(ctx, collection, ev.ID()); err != nil {
			return applied, apperror.New(apperror.Failure, ev.ID().String(), err)
		} else if !ok || existing == nil {
			if err := a.Events.PutEvent(ctx, collection, ev); err != nil {
				return applied, apperror.New(apperror.Failure, ev.ID().String(), err)
			}
		}
		descends, depth, err := a.buildCausal(ctx, collection, ev)
		if err != nil {
			return applied, err
		}
		// applied unconditionally, whatever state reconciliation below
		// decides — events are never gated on it.
		if err := ent.ApplyEvent(ev, descends, depth); err != nil {
			return applied, apperror.New(apperror.Failure, ev.ID().String(), err)
		}
		applied = append(applied, ev.ID())
	}
	return applied, nil
}

// reconcileState decides whether the incoming state descends the entity's
// current head by asking eventdag.CompareLineage for the relation between
// the two clocks directly, rather than accumulating a causal fragment one
// event at a time: reconciliation only ever needs one answer about two whole
// clocks, so the budget-bounded BFS in CompareLineage is the right tool
// (buildCausal's per-event DagCausalContext exists for entity.ApplyEvent's
// arbitrary pairwise descends/depth queries, a different shape of question).
func (a *UpdateApplier) reconcileState(ctx context.Context, collection string, ent *entity.Entity, frag *Attested[StateFragment]) (bool, error) {
	state := frag.Payload.State
	if a.Verifier != nil {
		if err := a.Verifier.VerifyState(collection, ent.ID(), state, frag.Attestations); err != nil {
			return false, apperror.New(apperror.Rejected, ent.ID().String(), err)
		}
	}

	head := ent.Head()
	descends := func(eventdag.EventID, eventdag.EventID) *bool { return nil }
	if head.Len() > 0 {
		budget := a.Budget
		if budget <= 0 {
			budget = DefaultBudget
		}
		getter := a.GetEvents
		if getter == nil {
			getter = &eventdag.LocalEventGetter{Store: a.Events}
		}
		rel, err := eventdag.CompareLineage(ctx, collection, state.Head, head, getter, budget)
		if err != nil {
			return false, apperror.Wrap(collection, err)
		}
		adopts := rel == eventdag.RelationDescends || rel == eventdag.RelationEqual
		descends = func(eventdag.EventID, eventdag.EventID) *bool { return &adopts }
	}

	_, adopted, err := ent.ReconcileState(state, descends)
	if err != nil {
		return false, apperror.New(apperror.Failure, ent.ID().String(), err)
	}
	return adopted, nil
}

func (a *UpdateApplier) reprojectAndReattest(ctx context.Context, collection string, ent *entity.Entity) error {
	if a.Saver == nil {
		return nil
	}
	state, err := ent.ToState()
	if err != nil {
		return apperror.New(apperror.Failure, ent.ID().String(), err)
	}
	var atts []AuthData
	if a.Verifier != nil {
		atts, err = a.Verifier.AttestState(collection, ent.ID(), state)
		if err != nil {
			return apperror.New(apperror.Failure, ent.ID().String(), err)
		}
	}
	if err := a.Saver.SaveState(ctx, collection, ent.ID(), state, atts); err != nil {
		return apperror.New(apperror.Failure, ent.ID().String(), err)
	}
	return nil
}

// buildCausal accumulates a DagCausalContext by walking ev's parent chain
// backward through a.GetEvents until no unfetched parents remain, then
// exposes it as the Descends/Depth functions entity.ApplyEvent needs; if the
// budget runs out first it returns a BudgetExceeded error. Grounded on
// eventdag.CompareLineage's frontier-BFS-with-budget shape.
func (a *UpdateApplier) buildCausal(ctx context.Context, collection string, ev *eventdag.Event) (func(eventdag.EventID, eventdag.EventID) *bool, func(eventdag.EventID) int, error) {
	dag := eventdag.NewDagCausalContext()
	dag.Add(ev.ID(), ev.Parent.IDs())
	return a.walkBack(ctx, collection, dag, ev.Parent.IDs())
}

func (a *UpdateApplier) walkBack(ctx context.Context, collection string, dag *eventdag.DagCausalContext, frontier []eventdag.EventID) (func(eventdag.EventID, eventdag.EventID) *bool, func(eventdag.EventID) int, error) {
	budget := a.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	spent := 0
	for len(frontier) > 0 {
		if spent >= budget {
			return nil, nil, apperror.FromBudgetExceeded(collection, &eventdag.ErrBudgetExceeded{Budget: budget})
		}
		cost, events, err := a.GetEvents.Fetch(ctx, collection, frontier)
		if err != nil {
			return nil, nil, apperror.New(apperror.Failure, collection, err)
		}
		spent += cost
		var next []eventdag.EventID
		for _, id := range frontier {
			got, ok := events[id]
			if !ok || dag.Contains(id) {
				continue
			}
			dag.Add(got.ID(), got.Parent.IDs())
			next = append(next, got.Parent.IDs()...)
		}
		frontier = next
	}
	return dag.IsDescendant, dag.Depth, nil
}
