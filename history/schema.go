package history

// Schema is the DDL for the reading history tables. Open applies it; embed
// the constant instead when the caller manages its own schema.
const Schema = `
CREATE TABLE IF NOT EXISTS reading_events (
    id         TEXT PRIMARY KEY,
    doc_id     TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    event      TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reading_events_doc
    ON reading_events(doc_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reading_events_created
    ON reading_events(created_at);
`
