package reactor

import (
	"sync"

	"github.com/ankurah/ankurah/internal/ast"
	"github.com/ankurah/ankurah/internal/value"
)

// Member is the minimal entity-shaped value a ResultSet holds: anything
// satisfying ast.Filterable plus an EntityId accessor and its top-level
// property values. internal/entity's *Entity implements this directly.
type Member interface {
	ast.Filterable
	ID() value.EntityID
	PropertyValues() map[string]value.Value
}

// ResultSet is an order-preserving set of entities with a parallel
// id->position index, maintained incrementally so ORDER BY position survives
// single-entity insert/remove without a full re-sort. Every mutation emits a
// single broadcast tick to registered listeners. Grounded on
// original_source/core/src/resultset.rs's EntityResultSet.
type ResultSet struct {
	mu        sync.Mutex
	order     []Member
	index     map[value.EntityID]int
	loaded    bool
	listeners []func()
}

func NewResultSet() *ResultSet {
	return &ResultSet{index: map[value.EntityID]int{}}
}

func (r *ResultSet) Listen(f func()) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, f)
	idx := len(r.listeners) - 1
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < len(r.listeners) {
			r.listeners[idx] = nil
		}
	}
}

// broadcast clones the listener set out from under the lock before invoking
// it, per spec.md §4.5's re-entrancy requirement (a listener that subscribes
// or unsubscribes during the callback must not deadlock or corrupt state).
func (r *ResultSet) broadcast() {
	r.mu.Lock()
	listeners := make([]func(), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()
	for _, l := range listeners {
		if l != nil {
			l()
		}
	}
}

func (r *ResultSet) SetLoaded(loaded bool) {
	r.mu.Lock()
	r.loaded = loaded
	r.mu.Unlock()
	r.broadcast()
}

func (r *ResultSet) IsLoaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

func (r *ResultSet) ReplaceAll(entities []Member) {
	r.mu.Lock()
	r.order = append([]Member(nil), entities...)
	r.index = make(map[value.EntityID]int, len(entities))
	for i, e := range r.order {
		r.index[e.ID()] = i
	}
	r.mu.Unlock()
	r.broadcast()
}

// Push appends entity to the end; returns false if already present.
func (r *ResultSet) Push(e Member) bool {
	r.mu.Lock()
	if _, ok := r.index[e.ID()]; ok {
		r.mu.Unlock()
		return false
	}
	r.index[e.ID()] = len(r.order)
	r.order = append(r.order, e)
	r.mu.Unlock()
	r.broadcast()
	return true
}

// InsertAfter inserts entity immediately after afterID's position; if
// afterID isn't present, appends to the end. Returns false if entity is
// already present.
func (r *ResultSet) InsertAfter(afterID value.EntityID, e Member) bool {
	r.mu.Lock()
	if _, ok := r.index[e.ID()]; ok {
		r.mu.Unlock()
		return false
	}
	pos := len(r.order)
	if i, ok := r.index[afterID]; ok {
		pos = i + 1
	}
	r.order = append(r.order, nil)
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = e
	r.fixFrom(pos)
	r.mu.Unlock()
	r.broadcast()
	return true
}

func (r *ResultSet) fixFrom(start int) {
	for i := start; i < len(r.order); i++ {
		r.index[r.order[i].ID()] = i
	}
}

// Remove removes entity by id; returns true if removed.
func (r *ResultSet) Remove(id value.EntityID) bool {
	r.mu.Lock()
	idx, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.index, id)
	r.order = append(r.order[:idx], r.order[idx+1:]...)
	r.fixFrom(idx)
	r.mu.Unlock()
	r.broadcast()
	return true
}

func (r *ResultSet) ContainsKey(id value.EntityID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[id]
	return ok
}

func (r *ResultSet) ByID(id value.EntityID) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return r.order[i], true
}

func (r *ResultSet) Keys() []value.EntityID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]value.EntityID, len(r.order))
	for i, e := range r.order {
		out[i] = e.ID()
	}
	return out
}

func (r *ResultSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Last returns the last entity in order, or nil if empty.
func (r *ResultSet) Last() Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	return r.order[len(r.order)-1]
}

// Snapshot returns a defensive copy of the current order, for code that
// needs a stable view outside the lock (e.g. re-evaluating membership).
func (r *ResultSet) Snapshot() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Member(nil), r.order...)
}
