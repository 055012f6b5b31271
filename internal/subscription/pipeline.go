// Package subscription implements Ankurah's subscription pipeline: the
// outbound fan-out that turns a local commit into per-peer update items, and
// the inbound UpdateApplier that reconciles a peer's update items into local
// entity state and hands the resulting changes to the reactor.
//
// Grounded on _examples/original_source/core/src/{connector,comparison_index,
// policy}.rs and core/src/reactor/subscription_state.rs; the daemon-side
// fan-out shape follows the teacher's internal/eventbus dispatcher.
package subscription

import (
	"context"
	"fmt"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// AuthData is the opaque attestation payload a policy agent produces and
// verifies; the core never interprets its bytes.
type AuthData []byte

// Attested pairs a payload with the attestations covering it.
type Attested[T any] struct {
	Payload      T
	Attestations []AuthData
}

// StateFragment is an attested full entity state.
type StateFragment struct {
	State *entity.State
}

// EventFragment is a single attested event.
type EventFragment struct {
	Event *eventdag.Event
}

// Content is the outbound/inbound payload choice: either a full state or one
// or more events, per spec.md §4.6.
type Content struct {
	State  *Attested[StateFragment]
	Events []*Attested[EventFragment]
}

// UpdateItem is the wire unit of the subscription pipeline, grounded on
// spec.md §6's SubscriptionUpdateItem.
type UpdateItem struct {
	EntityID           value.EntityID
	Collection         string
	Content            Content
	PredicateRelevance []uint64 // QueryIDs (as seen by the sending peer) this item matches
	EntitySubscribed   bool
}

// PeerSender delivers update items to one peer, preserving send order.
type PeerSender interface {
	PeerID() string
	Send(ctx context.Context, item UpdateItem) error
}

// AttestationVerifier checks an attestation against a payload. The policy
// agent is the only component that understands AuthData's bytes; the
// pipeline just asks yes/no.
type AttestationVerifier interface {
	VerifyState(collection string, id value.EntityID, state *entity.State, att []AuthData) error
	VerifyEvent(collection string, ev *eventdag.Event, att []AuthData) error
	AttestState(collection string, id value.EntityID, state *entity.State) ([]AuthData, error)
	AttestEvent(collection string, ev *eventdag.Event) ([]AuthData, error)
}

func errorf(format string, args ...any) error { return fmt.Errorf("subscription: "+format, args...) }
