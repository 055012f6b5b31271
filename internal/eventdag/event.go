// Package eventdag implements Ankurah's content-addressed event DAG: event
// identity, clocks (frontiers), and budget-bounded lineage comparison.
//
// Grounded on _examples/original_source/core/src/entity.rs (Event shape),
// core/src/event_dag/causal_context.rs (CausalContext / DagCausalContext),
// and core/src/lineage/getevents.rs (GetEvents, budget accounting).
package eventdag

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/ankurah/ankurah/internal/value"
)

// EventID is a 32-byte content hash.
type EventID [32]byte

func (id EventID) String() string { return fmt.Sprintf("%x", id[:]) }

// Less gives EventIDs the total lexicographic order the LWW tiebreak and
// diamond-merge tests depend on ("greatest EventId wins").
func (id EventID) Less(other EventID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// Clock is a frontier: an unordered set of EventIDs. Typically size 1; may
// grow when concurrent events coexist for the same entity.
type Clock map[EventID]struct{}

func NewClock(ids ...EventID) Clock {
	c := make(Clock, len(ids))
	for _, id := range ids {
		c[id] = struct{}{}
	}
	return c
}

func (c Clock) IDs() []EventID {
	out := make([]EventID, 0, len(c))
	for id := range c {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (c Clock) Contains(id EventID) bool { _, ok := c[id]; return ok }
func (c Clock) Len() int                 { return len(c) }

func (c Clock) Equal(other Clock) bool {
	if len(c) != len(other) {
		return false
	}
	for id := range c {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for id := range c {
		out[id] = struct{}{}
	}
	return out
}

// Operation is one backend's opaque operation diff. The operations carried
// by an Event are grouped by backend name; within a backend, insertion order
// of diffs is preserved and is part of the canonical encoding.
type Operation struct {
	Backend string
	Diff    []byte
}

// Event is immutable: its id is a hash of (entityID, operations, parent).
// Collection is deliberately excluded from the hash so that moving an entity
// between collections never changes its identity.
type Event struct {
	id         EventID
	EntityID   value.EntityID
	Collection string
	Operations []Operation // grouped by backend, canonical order enforced at construction
	Parent     Clock
}

// NewEvent constructs an Event and computes its content-addressed id. ops is
// sorted by backend name (stable within a backend) before hashing, per the
// canonical encoding rule in spec.md §4.4.
func NewEvent(entityID value.EntityID, collection string, ops []Operation, parent Clock) *Event {
	canon := make([]Operation, len(ops))
	copy(canon, ops)
	sort.SliceStable(canon, func(i, j int) bool { return canon[i].Backend < canon[j].Backend })

	e := &Event{
		EntityID:   entityID,
		Collection: collection,
		Operations: canon,
		Parent:     parent.Clone(),
	}
	e.id = computeEventID(entityID, canon, parent)
	return e
}

func (e *Event) ID() EventID { return e.id }

// computeEventID is SHA-256(entity_id || canonical(operations) || canonical(parent)).
func computeEventID(entityID value.EntityID, ops []Operation, parent Clock) EventID {
	h := sha256.New()
	h.Write(entityID[:])
	for _, op := range ops {
		lenPrefix(h, []byte(op.Backend))
		lenPrefix(h, op.Diff)
	}
	for _, id := range parent.IDs() {
		h.Write(id[:])
	}
	var out EventID
	copy(out[:], h.Sum(nil))
	return out
}

func lenPrefix(h interface{ Write([]byte) (int, error) }, b []byte) {
	var lb [8]byte
	n := len(b)
	for i := 7; i >= 0; i-- {
		lb[i] = byte(n)
		n >>= 8
	}
	h.Write(lb[:])
	h.Write(b)
}
