package entity

import (
	"sync"
	"time"

	"github.com/ankurah/ankurah/internal/value"
)

// WeakEntitySet guarantees at most one live *Entity per EntityId within a
// process, so two transactions editing the same entity concurrently observe
// and mutate the same backends rather than silently forking state. Grounded
// on _examples/original_source/core/src/entity.rs's WeakEntitySet, which
// relies on Rust's Weak<Entity> to let entries drop once nothing references
// them. Go has no analogous weak pointer, so this is a generation-counted
// strong cache instead: an entry is evicted once it has gone unaccessed for
// longer than evictAfter, or least-recently-accessed first when the set is
// full (the generation count records accesses but does not decide eviction)
// — the stdlib exception recorded in DESIGN.md for this file.
type WeakEntitySet struct {
	mu         sync.Mutex
	entries    map[value.EntityID]*weakEntry
	evictAfter time.Duration
	maxEntries int
}

type weakEntry struct {
	entity     *Entity
	lastAccess time.Time
	generation uint64
}

func NewWeakEntitySet(evictAfter time.Duration, maxEntries int) *WeakEntitySet {
	if evictAfter <= 0 {
		evictAfter = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &WeakEntitySet{
		entries:    make(map[value.EntityID]*weakEntry),
		evictAfter: evictAfter,
		maxEntries: maxEntries,
	}
}

// GetOrCreate returns the resident entity for id, creating an empty one with
// New if absent. now is passed in (rather than time.Now()) so callers in the
// reactor's deterministic test harness can drive eviction explicitly.
func (w *WeakEntitySet) GetOrCreate(id value.EntityID, collection string, now time.Time) *Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[id]; ok {
		e.lastAccess = now
		e.generation++
		return e.entity
	}
	w.evictLocked(now)
	ent := New(id, collection)
	w.entries[id] = &weakEntry{entity: ent, lastAccess: now}
	return ent
}

// Get returns the resident entity for id without creating one.
func (w *WeakEntitySet) Get(id value.EntityID) (*Entity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[id]
	if !ok {
		return nil, false
	}
	return e.entity, true
}

// Insert installs an already-constructed entity (e.g. one loaded from
// storage) as the resident instance for its id.
func (w *WeakEntitySet) Insert(ent *Entity, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
	w.entries[ent.ID()] = &weakEntry{entity: ent, lastAccess: now}
}

// Remove drops the resident entry for id, if any.
func (w *WeakEntitySet) Remove(id value.EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, id)
}

// Len reports the number of resident entities, mainly for tests and metrics.
func (w *WeakEntitySet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// evictLocked drops entries idle longer than evictAfter, then, if still at or
// over maxEntries, drops the least-recently-accessed entries until below it,
// leaving room for one new entry.
// Must be called with w.mu held.
func (w *WeakEntitySet) evictLocked(now time.Time) {
	for id, e := range w.entries {
		if now.Sub(e.lastAccess) > w.evictAfter {
			delete(w.entries, id)
		}
	}
	if len(w.entries) < w.maxEntries {
		return
	}
	type idAccess struct {
		id   value.EntityID
		last time.Time
	}
	all := make([]idAccess, 0, len(w.entries))
	for id, e := range w.entries {
		all = append(all, idAccess{id, e.lastAccess})
	}
	for len(w.entries) >= w.maxEntries {
		oldest := 0
		for i := range all {
			if all[i].last.Before(all[oldest].last) {
				oldest = i
			}
		}
		delete(w.entries, all[oldest].id)
		all = append(all[:oldest], all[oldest+1:]...)
		if len(all) == 0 {
			break
		}
	}
}
