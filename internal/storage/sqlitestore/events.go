package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

// wireOperation is Operation's JSON encoding; Diff travels as base64 via
// encoding/json's []byte handling.
type wireOperation struct {
	Backend string `json:"backend"`
	Diff    []byte `json:"diff"`
}

// GetEvent implements eventdag.EventStore and subscription.EventStore's
// embedded half.
func (s *Store) GetEvent(ctx context.Context, collection string, id eventdag.EventID) (*eventdag.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT entity_id, parent_ids, operations FROM events WHERE collection = ? AND event_id = ?`,
		collection, id.String())

	var entityIDHex, parentIDsJSON string
	var opsBlob []byte
	if err := row.Scan(&entityIDHex, &parentIDsJSON, &opsBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlitestore: get event %s: %w", id, err)
	}

	ev, err := decodeEvent(collection, entityIDHex, parentIDsJSON, opsBlob)
	if err != nil {
		return nil, false, err
	}
	return ev, true, nil
}

// PutEvent implements subscription.EventStore's write half. Idempotent:
// events are content-addressed, so re-inserting the same id is a no-op.
func (s *Store) PutEvent(ctx context.Context, collection string, ev *eventdag.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentIDs := ev.Parent.IDs()
	parentHex := make([]string, len(parentIDs))
	for i, id := range parentIDs {
		parentHex[i] = id.String()
	}
	parentJSON, err := json.Marshal(parentHex)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal parents for %s: %w", ev.ID(), err)
	}

	wireOps := make([]wireOperation, len(ev.Operations))
	for i, op := range ev.Operations {
		wireOps[i] = wireOperation{Backend: op.Backend, Diff: op.Diff}
	}
	opsBlob, err := json.Marshal(wireOps)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal operations for %s: %w", ev.ID(), err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (collection, event_id, entity_id, parent_ids, operations) VALUES (?, ?, ?, ?, ?)`,
		collection, ev.ID().String(), ev.EntityID.String(), string(parentJSON), opsBlob)
	if err != nil {
		return fmt.Errorf("sqlitestore: put event %s: %w", ev.ID(), err)
	}
	return nil
}

// EstimateCost implements eventdag.GetEvents: local reads cost 1 each.
func (s *Store) EstimateCost(n int) int { return n }

// Fetch implements eventdag.GetEvents with one GetEvent query per id; the
// reported cost is the number of ids read.
func (s *Store) Fetch(ctx context.Context, collection string, ids []eventdag.EventID) (int, map[eventdag.EventID]*eventdag.Event, error) {
	out := make(map[eventdag.EventID]*eventdag.Event, len(ids))
	cost := 0
	for _, id := range ids {
		ev, ok, err := s.GetEvent(ctx, collection, id)
		if err != nil {
			return cost, out, err
		}
		cost++
		if ok {
			out[id] = ev
		}
	}
	return cost, out, nil
}

func decodeEvent(collection, entityIDHex, parentIDsJSON string, opsBlob []byte) (*eventdag.Event, error) {
	entityID, err := value.ParseEntityID(entityIDHex)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: decode entity id %q: %w", entityIDHex, err)
	}

	var parentHex []string
	if err := json.Unmarshal([]byte(parentIDsJSON), &parentHex); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode parent ids: %w", err)
	}
	parents := make([]eventdag.EventID, 0, len(parentHex))
	for _, hex := range parentHex {
		id, err := parseEventID(hex)
		if err != nil {
			return nil, err
		}
		parents = append(parents, id)
	}

	var wireOps []wireOperation
	if err := json.Unmarshal(opsBlob, &wireOps); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode operations: %w", err)
	}
	ops := make([]eventdag.Operation, len(wireOps))
	for i, op := range wireOps {
		ops[i] = eventdag.Operation{Backend: op.Backend, Diff: op.Diff}
	}

	return eventdag.NewEvent(entityID, collection, ops, eventdag.NewClock(parents...)), nil
}

func parseEventID(s string) (eventdag.EventID, error) {
	var id eventdag.EventID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("sqlitestore: malformed event id %q", s)
	}
	copy(id[:], b)
	return id, nil
}
