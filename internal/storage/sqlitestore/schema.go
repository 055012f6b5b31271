package sqlitestore

// schema defines the SQLite-compatible database schema for the durable
// event log and entity state snapshots.
const schema = `
-- Every event ever committed, keyed by its content-addressed id.
-- parent_ids is the JSON array of the event's parent Clock, operations is
-- the canonical-order operation list (backend, diff) encoded as JSON.
CREATE TABLE IF NOT EXISTS events (
    collection TEXT NOT NULL,
    event_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    parent_ids TEXT NOT NULL DEFAULT '[]',
    operations BLOB NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (collection, event_id)
);

CREATE INDEX IF NOT EXISTS idx_events_entity ON events(collection, entity_id);

-- The latest reprojected, re-attested snapshot of each entity. head is the
-- JSON-encoded Clock the state_buffers reflect; attestations is the
-- opaque signature bundle produced by whatever AttestationVerifier
-- signed the snapshot (nil for unsigned local stores).
CREATE TABLE IF NOT EXISTS entity_states (
    collection TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    head TEXT NOT NULL,
    state_buffers BLOB NOT NULL,
    attestations BLOB,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, entity_id)
);

CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
