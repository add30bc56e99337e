package bookmark

// Schema contains the complete DDL for the bookmark tables.
const Schema = `
-- Bookmarks: saved positions inside a document
CREATE TABLE IF NOT EXISTS bookmarks (
    id          TEXT PRIMARY KEY,
    doc_id      TEXT NOT NULL,
    locator     TEXT NOT NULL,
    progress    REAL NOT NULL DEFAULT 0.0,
    page        INTEGER NOT NULL DEFAULT 0,
    label       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bookmarks_doc ON bookmarks(doc_id);
CREATE INDEX IF NOT EXISTS idx_bookmarks_created ON bookmarks(created_at DESC);

-- Positions: last known reading position per document, one row per doc
CREATE TABLE IF NOT EXISTS positions (
    doc_id      TEXT PRIMARY KEY,
    locator     TEXT NOT NULL,
    progress    REAL NOT NULL DEFAULT 0.0,
    page        INTEGER NOT NULL DEFAULT 0,
    updated_at  INTEGER NOT NULL
);
`
