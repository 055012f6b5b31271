// Package entity implements Ankurah's per-entity CRDT state: the three
// backends (lww, json, yrs) a property can live in, the Entity type that
// owns a set of backends plus a causal head, and the WeakEntitySet that
// guarantees at most one live Entity per EntityId.
//
// Grounded on _examples/original_source/core/src/entity.rs (Entity,
// WeakEntitySet), core/src/property/backend/yrs.rs (text backend shape),
// core/src/property/value/json.rs (JSON-as-LWW-register), and
// core/src/lineage/getevents.rs (the CausalContext threaded into LWW
// conflict resolution).
//
// No Go port of yrs (the Rust/C CRDT library the teacher vendors for text)
// exists in the example corpus, so the text backend here is a from-scratch
// RGA-style sequence CRDT; lww and json likewise have no third-party analog
// in the corpus and are hand-rolled. This is the stdlib exception recorded
// in DESIGN.md for this package.
package entity

import (
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// ApplyContext is threaded into Backend.ApplyOperations so LWW-family
// backends can resolve conflicts without doing their own I/O. Descends and
// Depth are backed by a eventdag.CausalContext fragment the caller has
// already accumulated; Descends returns nil when the fragment on hand can't
// answer (caller should treat that as "assume concurrent").
type ApplyContext struct {
	EventID  eventdag.EventID
	Parent   eventdag.Clock
	Descends func(descendant, ancestor eventdag.EventID) *bool
	Depth    func(id eventdag.EventID) int
}

// Backend is the CRDT contract implemented by lww, json, and yrs (text).
// Grounded on spec.md §4.3's "Backend contract".
type Backend interface {
	Name() string

	// ToStateBuffer/LoadStateBuffer are a symmetric full-snapshot pair.
	ToStateBuffer() ([]byte, error)
	LoadStateBuffer([]byte) error

	// ToOperations returns the diff accumulated since the last call (commit
	// or stamp), or ok=false if nothing changed.
	ToOperations() (diff []byte, ok bool)

	// Stamp finalizes a local commit: operations returned by the most recent
	// ToOperations() become attributed to eventID at depth, and the dirty
	// set is cleared. Called only for commits originated locally.
	Stamp(eventID eventdag.EventID, depth int)

	// ApplyOperations applies a remote (or replayed) diff under ctx.
	ApplyOperations(diff []byte, ctx ApplyContext) error

	PropertyValue(name string) (value.Value, bool)
	PropertyValues() map[string]value.Value

	// Fork deep-copies the backend for Entity.snapshot.
	Fork() Backend
}

// Backend name constants, used as map keys in Event.Operations and as the
// backend registry key on Entity.
const (
	BackendLWW  = "lww"
	BackendJSON = "json"
	BackendYrs  = "yrs"
)
