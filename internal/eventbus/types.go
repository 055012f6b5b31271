package eventbus

import "encoding/json"

// EnvelopeKind distinguishes the two payload shapes a peer broadcast
// carries, mirroring subscription.Content's State/Events split.
type EnvelopeKind string

const (
	KindEvents EnvelopeKind = "events"
	KindState  EnvelopeKind = "state"
)

// WireOperation is eventdag.Operation's wire encoding.
type WireOperation struct {
	Backend string `json:"backend"`
	Diff    []byte `json:"diff"`
}

// WireEvent is eventdag.Event's wire encoding. The event id is not carried:
// it is a content hash recomputed on decode from EntityID+Operations+ParentIDs.
type WireEvent struct {
	EntityID   string          `json:"entity_id"`
	Collection string          `json:"collection"`
	ParentIDs  []string        `json:"parent_ids"`
	Operations []WireOperation `json:"operations"`
}

// WireState is entity.State's wire encoding.
type WireState struct {
	Head         []string          `json:"head"`
	StateBuffers map[string][]byte `json:"state_buffers"`
}

// Envelope is the message published to an Ankurah peer subject: it carries
// one entity's worth of one broadcast, matching subscription.UpdateItem's
// Content shape so a received Envelope translates directly into a
// subscription.UpdateItem for UpdateApplier.Apply.
type Envelope struct {
	Kind         EnvelopeKind    `json:"kind"`
	Collection   string          `json:"collection"`
	EntityID     string          `json:"entity_id"`
	Events       []WireEvent     `json:"events,omitempty"`
	State        *WireState      `json:"state,omitempty"`
	Attestations json.RawMessage `json:"attestations,omitempty"`
}
