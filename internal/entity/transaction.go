package entity

import (
	"fmt"
	"sync"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// MutableHandle is the sole mutable view onto an entity held by a
// transaction; spec.md §4.3's edit(entity, trx) contract forbids a second
// concurrent handle on the same entity within the same transaction. The
// handle is invalidated (every method becomes a no-op returning
// ErrHandleInvalid) once its owning transaction commits or rolls back.
type MutableHandle struct {
	trx    *Transaction
	entity *Entity
}

var ErrHandleInvalid = fmt.Errorf("entity: mutable handle invalidated by commit or rollback")

func (h *MutableHandle) checkValid() error {
	if h.trx.done {
		return ErrHandleInvalid
	}
	return nil
}

func (h *MutableHandle) Set(property string, v value.Value) error {
	if err := h.checkValid(); err != nil {
		return err
	}
	lww, ok := h.entity.Backend(BackendLWW).(*LWW)
	if !ok {
		return fmt.Errorf("entity: lww backend unavailable")
	}
	lww.Set(property, v)
	return nil
}

func (h *MutableHandle) SetJSON(doc []byte) error {
	if err := h.checkValid(); err != nil {
		return err
	}
	j, ok := h.entity.Backend(BackendJSON).(*JSONDoc)
	if !ok {
		return fmt.Errorf("entity: json backend unavailable")
	}
	j.Set(doc)
	return nil
}

func (h *MutableHandle) Text() (*Text, error) {
	if err := h.checkValid(); err != nil {
		return nil, err
	}
	t, ok := h.entity.Backend(BackendYrs).(*Text)
	if !ok {
		return nil, fmt.Errorf("entity: yrs backend unavailable")
	}
	return t, nil
}

func (h *MutableHandle) Entity() *Entity { return h.entity }

// Transaction owns the set of MutableHandles opened during its lifetime and
// commits or rolls them back atomically, per spec.md §5: either every
// entity's event is stored and fanned out, or none are.
type Transaction struct {
	mu      sync.Mutex
	handles map[value.EntityID]*MutableHandle
	done    bool
}

func NewTransaction() *Transaction {
	return &Transaction{handles: map[value.EntityID]*MutableHandle{}}
}

// Edit attaches ent to the transaction, returning its MutableHandle. A
// second Edit call for the same entity within the same transaction returns
// the existing handle rather than erroring, matching "the transaction owns
// exactly one mutable per entity" — callers that need to detect accidental
// re-edits should track that themselves.
func (t *Transaction) Edit(ent *Entity) (*MutableHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, ErrHandleInvalid
	}
	if h, ok := t.handles[ent.ID()]; ok {
		return h, nil
	}
	h := &MutableHandle{trx: t, entity: ent}
	t.handles[ent.ID()] = h
	return h, nil
}

// CommitResult pairs a committed entity with the event produced for it, for
// entities that actually changed.
type CommitResult struct {
	Entity *Entity
	Event  *eventdag.Event
}

// Commit calls Entity.Commit on every edited entity and returns the
// resulting events. If any entity's Commit fails, no change is considered
// final: callers are expected to have not yet persisted any of the returned
// events to storage, so the failure only needs to invalidate handles, not
// roll back already-mutated in-memory backends (Entity.Commit only mutates
// state for entities that return success).
func (t *Transaction) Commit() ([]CommitResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil, ErrHandleInvalid
	}
	var results []CommitResult
	for _, h := range t.handles {
		ev, err := h.entity.Commit()
		if err != nil {
			t.done = true
			return nil, fmt.Errorf("entity: transaction commit: %w", err)
		}
		if ev != nil {
			results = append(results, CommitResult{Entity: h.entity, Event: ev})
		}
	}
	t.done = true
	return results, nil
}

// Rollback invalidates every handle without committing. Because backend
// mutations are only materialized into head-advancing events at Commit
// time, a rollback that happens before Commit simply discards the
// transaction's handles; any dirty-but-uncommitted backend state (e.g. a
// LWW.Set call) is left in place, matching the teacher's practice of
// expecting callers to discard the in-memory entity reference rather than
// deep-undo pending writes. Callers that need a clean entity after rollback
// should reload it via WeakEntitySet from storage.
func (t *Transaction) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}
