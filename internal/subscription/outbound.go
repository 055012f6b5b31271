package subscription

import (
	"context"
	"sync"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// PeerRegistry tracks the peers subscribed to a collection and hands back
// the PredicateRelevance (query ids, as that peer knows them) a changed
// entity matches for each. The reactor keeps the authoritative predicate
// index locally; a PeerRegistry is the analogous bookkeeping for what a
// remote peer's subscriptions care about.
type PeerRegistry interface {
	// InterestedPeers returns, for a changed entity, the peers that should
	// receive an update and which of their query ids matched.
	InterestedPeers(collection string, ent *entity.Entity) map[string][]uint64
	Sender(peerID string) (PeerSender, bool)
}

// Broadcaster fans a local commit out to every interested peer, per
// spec.md §4.6's outbound description. Grounded on the teacher's
// internal/eventbus dispatch-to-subscribers pattern, generalized from a
// single in-process bus to per-peer queues.
type Broadcaster struct {
	Registry PeerRegistry
	Verifier AttestationVerifier

	mu      sync.Mutex
	fullSub map[string]bool // peer ids owed a StateFragment on their next update (new subscription bootstrap)
}

func NewBroadcaster(registry PeerRegistry, verifier AttestationVerifier) *Broadcaster {
	return &Broadcaster{Registry: registry, Verifier: verifier, fullSub: map[string]bool{}}
}

// RequireFullState marks peerID as needing a StateFragment (rather than an
// incremental EventFragment) the next time one of its subscriptions is
// touched — used right after a peer's Subscribe so its first update item is
// a complete snapshot instead of an event it has no ancestor for.
func (b *Broadcaster) RequireFullState(peerID string) {
	b.mu.Lock()
	b.fullSub[peerID] = true
	b.mu.Unlock()
}

// Publish sends item content derived from a local commit to every peer
// whose subscriptions the changed entity matches. ev is the event the
// commit just produced; ent is the entity's state after the commit.
func (b *Broadcaster) Publish(ctx context.Context, collection string, ent *entity.Entity, ev *eventdag.Event) error {
	peers := b.Registry.InterestedPeers(collection, ent)
	for peerID, queryIDs := range peers {
		sender, ok := b.Registry.Sender(peerID)
		if !ok {
			continue
		}
		item := UpdateItem{
			EntityID:           ent.ID(),
			Collection:         collection,
			PredicateRelevance: queryIDs,
			EntitySubscribed:   true,
		}
		if b.owesFullState(peerID) {
			state, err := ent.ToState()
			if err != nil {
				return errorf("to_state for peer %s: %w", peerID, err)
			}
			atts, err := b.attestState(collection, ent.ID(), state)
			if err != nil {
				return err
			}
			item.Content.State = &Attested[StateFragment]{Payload: StateFragment{State: state}, Attestations: atts}
			b.clearFullState(peerID)
		} else if ev != nil {
			atts, err := b.attestEvent(collection, ev)
			if err != nil {
				return err
			}
			item.Content.Events = []*Attested[EventFragment]{{Payload: EventFragment{Event: ev}, Attestations: atts}}
		}
		// ordering within a peer is the sender's responsibility (a bounded,
		// in-order queue per spec.md §5's backpressure rule); Publish just
		// hands items to it in commit order.
		if err := sender.Send(ctx, item); err != nil {
			return errorf("send to peer %s: %w", peerID, err)
		}
	}
	return nil
}

func (b *Broadcaster) owesFullState(peerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fullSub[peerID]
}

func (b *Broadcaster) clearFullState(peerID string) {
	b.mu.Lock()
	delete(b.fullSub, peerID)
	b.mu.Unlock()
}

func (b *Broadcaster) attestState(collection string, id value.EntityID, state *entity.State) ([]AuthData, error) {
	if b.Verifier == nil {
		return nil, nil
	}
	atts, err := b.Verifier.AttestState(collection, id, state)
	if err != nil {
		return nil, errorf("attest state for %s/%s: %w", collection, id, err)
	}
	return atts, nil
}

func (b *Broadcaster) attestEvent(collection string, ev *eventdag.Event) ([]AuthData, error) {
	if b.Verifier == nil {
		return nil, nil
	}
	atts, err := b.Verifier.AttestEvent(collection, ev)
	if err != nil {
		return nil, errorf("attest event %s: %w", ev.ID(), err)
	}
	return atts, nil
}
