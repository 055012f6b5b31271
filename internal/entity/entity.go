package entity

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// Entity is spec.md §3's mutable, multi-backend CRDT record: a set of named
// backends, a causal head, and the commit/apply/snapshot operations that
// keep them consistent. Grounded on
// _examples/original_source/core/src/entity.rs.
type Entity struct {
	id         value.EntityID
	collection string

	mu       sync.Mutex
	backends map[string]Backend
	head     eventdag.Clock
}

// New constructs an entity with empty backends and an empty head, per
// spec.md §4.3's create(collection).
func New(id value.EntityID, collection string) *Entity {
	return &Entity{
		id:         id,
		collection: collection,
		backends:   map[string]Backend{},
		head:       eventdag.NewClock(),
	}
}

func (e *Entity) ID() value.EntityID { return e.id }
func (e *Entity) Collection() string { return e.collection }

func (e *Entity) Head() eventdag.Clock {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.head.Clone()
}

// Backend returns the named backend, creating it (empty) on first access.
// Mirrors the teacher pattern of lazily registering a field's backend the
// first time a property in it is touched.
func (e *Entity) Backend(name string) Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backendLocked(name)
}

func (e *Entity) backendLocked(name string) Backend {
	if b, ok := e.backends[name]; ok {
		return b
	}
	var b Backend
	switch name {
	case BackendLWW:
		b = NewLWW()
	case BackendJSON:
		b = NewJSONDoc()
	case BackendYrs:
		b = NewText()
	default:
		panic(fmt.Sprintf("entity: unknown backend %q", name))
	}
	e.backends[name] = b
	return b
}

// PathValue implements ast.Filterable: "id" is special-cased to the
// EntityId; a simple path is looked up across every backend (first match
// wins); a compound path is routed to the json backend's GetPath.
func (e *Entity) PathValue(steps []string) (value.Value, bool) {
	if len(steps) == 1 && steps[0] == "id" {
		return value.EntityIDValue(e.id), true
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(steps) > 1 {
		if j, ok := e.backends[BackendJSON].(*JSONDoc); ok {
			return j.GetPath(steps)
		}
		return value.Value{}, false
	}
	name := steps[0]
	for _, b := range e.backends {
		if v, ok := b.PropertyValue(name); ok {
			return v, true
		}
	}
	return value.Value{}, false
}

func (e *Entity) PropertyValues() map[string]value.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]value.Value{}
	for _, b := range e.backends {
		for k, v := range b.PropertyValues() {
			if k != "" {
				out[k] = v
			}
		}
	}
	return out
}

// Commit collects operations accumulated across every backend since the
// last commit and, if any backend produced a diff, constructs and returns
// the resulting Event, advancing head to {event.ID()}. Returns nil if no
// backend produced operations (idempotent commit), per spec.md §4.3.
func (e *Entity) Commit() (*eventdag.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.backends))
	for name := range e.backends {
		names = append(names, name)
	}
	// map order, so unsorted here; NewEvent sorts the operations by backend name
	var ops []eventdag.Operation
	type pendingStamp struct {
		name string
	}
	var toStamp []pendingStamp
	for _, name := range names {
		diff, ok := e.backends[name].ToOperations()
		if !ok {
			continue
		}
		ops = append(ops, eventdag.Operation{Backend: name, Diff: diff})
		toStamp = append(toStamp, pendingStamp{name: name})
	}
	if len(ops) == 0 {
		return nil, nil
	}

	ev := eventdag.NewEvent(e.id, e.collection, ops, e.head)
	depth := depthOfParent(e.head) + 1
	for _, ps := range toStamp {
		e.backends[ps.name].Stamp(ev.ID(), depth)
	}
	e.head = eventdag.NewClock(ev.ID())
	return ev, nil
}

// depthOfParent is a placeholder used only to seed Commit's own local depth
// bookkeeping; the reactor/causal layer recomputes depth from the DAG for
// cross-replica comparisons via ApplyContext.Depth. A purely local,
// sequential commit always strictly descends its own parent, so any
// monotonically increasing value here is sufficient to make our own writes
// win over anything we've already applied.
func depthOfParent(parent eventdag.Clock) int { return parent.Len() }

// ApplyEvent pushes operations into each referenced backend and updates
// head per spec.md §4.4's apply policy. descends/depth are backed by a
// CausalContext the caller has accumulated (possibly via network fetches);
// when descends can't answer (nil), the event is treated as concurrent so no
// write is ever silently dropped.
func (e *Entity) ApplyEvent(ev *eventdag.Event, descends func(a, b eventdag.EventID) *bool, depth func(eventdag.EventID) int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := ApplyContext{EventID: ev.ID(), Parent: ev.Parent, Descends: descends, Depth: depth}
	for _, op := range ev.Operations {
		b := e.backendLocked(op.Backend)
		if err := b.ApplyOperations(op.Diff, ctx); err != nil {
			return fmt.Errorf("entity: apply event %s backend %s: %w", ev.ID(), op.Backend, err)
		}
	}

	switch {
	case desc(descends, ev.Parent, e.head):
		e.head = eventdag.NewClock(ev.ID())
	case desc(descends, e.head, ev.Parent):
		// current head descends the event's parent already: historical event,
		// store but don't move head (handled by caller's event store; here we
		// only touch in-memory head).
	default:
		// concurrent (or unknown): widen the frontier
		next := e.head.Clone()
		next[ev.ID()] = struct{}{}
		e.head = next
	}
	return nil
}

// desc reports whether every id in b is known to descend from (or equal) a
// corresponding ancestor relationship anchored at a — used only to decide
// head transitions, so an "unknown" answer is treated conservatively as
// false (caller then falls through to widening the frontier).
func desc(descends func(a, b eventdag.EventID) *bool, a, b eventdag.Clock) bool {
	if a.Equal(b) {
		return true
	}
	for bid := range b {
		found := false
		for aid := range a {
			if aid == bid {
				found = true
				break
			}
			if d := descends(aid, bid); d != nil && *d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// State is the wire/storage representation of an entity snapshot: a
// per-backend state buffer plus the head it was taken at, per spec.md §3.
type State struct {
	StateBuffers map[string][]byte
	Head         eventdag.Clock
}

// ToState serializes every backend's full snapshot.
func (e *Entity) ToState() (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	buffers := make(map[string][]byte, len(e.backends))
	for name, b := range e.backends {
		buf, err := b.ToStateBuffer()
		if err != nil {
			return nil, fmt.Errorf("entity: to_state backend %s: %w", name, err)
		}
		buffers[name] = buf
	}
	return &State{StateBuffers: buffers, Head: e.head.Clone()}, nil
}

// ApplyState replaces backend state buffers wholesale and sets head from the
// state, per spec.md §4.3's apply_state.
func (e *Entity) ApplyState(s *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, buf := range s.StateBuffers {
		b := e.backendLocked(name)
		if err := b.LoadStateBuffer(buf); err != nil {
			return fmt.Errorf("entity: apply_state backend %s: %w", name, err)
		}
	}
	e.head = s.Head.Clone()
	return nil
}

// ReconcileState is the three-outcome state merge the subscription pipeline
// uses for inbound StateFragments, per spec.md §4.6:
//   - existed=false: e had no prior head; the state is adopted unconditionally.
//   - existed=true, adopted=true: s.Head strictly descends e's current head;
//     adopted.
//   - existed=true, adopted=false: s.Head diverged from or didn't descend
//     e's head; e's own state is kept. Callers must still apply any
//     accompanying EventFragments regardless of this outcome (the
//     "events always win" rule events-before-state processing requires).
func (e *Entity) ReconcileState(s *State, descends func(a, b eventdag.EventID) *bool) (existed, adopted bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existed = e.head.Len() > 0
	if existed && !desc(descends, s.Head, e.head) {
		return existed, false, nil
	}
	for name, buf := range s.StateBuffers {
		b := e.backendLocked(name)
		if loadErr := b.LoadStateBuffer(buf); loadErr != nil {
			return existed, false, fmt.Errorf("entity: reconcile_state backend %s: %w", name, loadErr)
		}
	}
	e.head = s.Head.Clone()
	return existed, true, nil
}

// Snapshot deep-forks every backend so the result diverges independently of
// e, per spec.md §3's View detachment.
func (e *Entity) Snapshot() *Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	backends := make(map[string]Backend, len(e.backends))
	for name, b := range e.backends {
		backends[name] = b.Fork()
	}
	return &Entity{id: e.id, collection: e.collection, backends: backends, head: e.head.Clone()}
}

func (e *Entity) String() string {
	return fmt.Sprintf("Entity(%s/%s)=%s", e.collection, e.id, strings.Join(headStrings(e.Head()), ","))
}

func headStrings(c eventdag.Clock) []string {
	ids := c.IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
