package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/subscription"
	"github.com/ankurah/ankurah/internal/value"
)

// SaveState implements subscription.EntitySaver, persisting a reprojected,
// re-attested entity snapshot after every applied update.
func (s *Store) SaveState(ctx context.Context, collection string, id value.EntityID, state *entity.State, attestations []subscription.AuthData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	headIDs := state.Head.IDs()
	headHex := make([]string, len(headIDs))
	for i, hid := range headIDs {
		headHex[i] = hid.String()
	}
	headJSON, err := json.Marshal(headHex)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal head for %s: %w", id, err)
	}

	buffers, err := json.Marshal(state.StateBuffers)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal state buffers for %s: %w", id, err)
	}

	var attBlob []byte
	if len(attestations) > 0 {
		attBlob, err = json.Marshal(attestations)
		if err != nil {
			return fmt.Errorf("sqlitestore: marshal attestations for %s: %w", id, err)
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entity_states (collection, entity_id, head, state_buffers, attestations, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection, entity_id) DO UPDATE SET
		   head = excluded.head, state_buffers = excluded.state_buffers,
		   attestations = excluded.attestations, updated_at = excluded.updated_at`,
		collection, id.String(), string(headJSON), buffers, attBlob, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("sqlitestore: save state for %s: %w", id, err)
	}
	return nil
}

// LoadState reads back the most recent snapshot for an entity, used by
// daemon startup to rehydrate the WeakEntitySet from durable storage
// before replaying any events a peer catches it up on.
func (s *Store) LoadState(ctx context.Context, collection string, id value.EntityID) (*entity.Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT head, state_buffers FROM entity_states WHERE collection = ? AND entity_id = ?`,
		collection, id.String())

	var headJSON string
	var buffers []byte
	if err := row.Scan(&headJSON, &buffers); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlitestore: load state for %s: %w", id, err)
	}

	var headHex []string
	if err := json.Unmarshal([]byte(headJSON), &headHex); err != nil {
		return nil, false, fmt.Errorf("sqlitestore: decode head for %s: %w", id, err)
	}
	headIDs := make([]eventdag.EventID, 0, len(headHex))
	for _, h := range headHex {
		eid, err := parseEventID(h)
		if err != nil {
			return nil, false, err
		}
		headIDs = append(headIDs, eid)
	}

	var stateBuffers map[string][]byte
	if err := json.Unmarshal(buffers, &stateBuffers); err != nil {
		return nil, false, fmt.Errorf("sqlitestore: decode state buffers for %s: %w", id, err)
	}

	ent := entity.New(id, collection)
	if err := ent.ApplyState(&entity.State{StateBuffers: stateBuffers, Head: eventdag.NewClock(headIDs...)}); err != nil {
		return nil, false, fmt.Errorf("sqlitestore: apply loaded state for %s: %w", id, err)
	}
	return ent, true, nil
}

// ListEntityIDs returns every entity ID with a saved state in collection,
// for daemon-startup rehydration and the CLI's one-shot table-scan query
// path (a full predicate evaluation still runs against each via
// ast.Evaluate; this just enumerates candidates).
func (s *Store) ListEntityIDs(ctx context.Context, collection string) ([]value.EntityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id FROM entity_states WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list entity ids for %s: %w", collection, err)
	}
	defer rows.Close()

	var ids []value.EntityID
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan entity id for %s: %w", collection, err)
		}
		id, err := value.ParseEntityID(hex)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: parse entity id %q: %w", hex, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
