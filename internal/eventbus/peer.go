package eventbus

import (
	"context"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/subscription"
)

// broadcastPeerID is the single logical peer a BusPeerRegistry reports.
// JetStream fans a publish out to every node subscribed to the collection's
// subject, so there is no per-remote-peer queue to address individually
// here the way spec.md's PeerRegistry describes for a point-to-point
// transport. Each receiving node re-evaluates the change against its own
// Reactor once UpdateApplier.Apply runs it through ReconcileState, so
// relevance hints computed at publish time would be redundant; this
// registry always reports the single broadcast sender with no hint.
const broadcastPeerID = "jetstream"

// BusPeerRegistry implements subscription.PeerRegistry over a Bus: a commit
// is published once to the collection's JetStream subject instead of once
// per remote peer. Grounded on bus.go's subject-per-collection fan-out.
type BusPeerRegistry struct {
	Bus *Bus
}

func (r *BusPeerRegistry) InterestedPeers(collection string, ent *entity.Entity) map[string][]uint64 {
	return map[string][]uint64{broadcastPeerID: nil}
}

func (r *BusPeerRegistry) Sender(peerID string) (subscription.PeerSender, bool) {
	if peerID != broadcastPeerID {
		return nil, false
	}
	return &busPeerSender{bus: r.Bus}, true
}

// busPeerSender adapts Bus.Publish to subscription.PeerSender.
type busPeerSender struct{ bus *Bus }

func (s *busPeerSender) PeerID() string { return broadcastPeerID }

func (s *busPeerSender) Send(ctx context.Context, item subscription.UpdateItem) error {
	env, err := ToEnvelope(item)
	if err != nil {
		return err
	}
	return s.bus.Publish(env)
}
