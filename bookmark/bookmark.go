// CLAUDE:SUMMARY SQLite persistence for bookmarks and per-document reading positions.
// Package bookmark provides the SQLite persistence layer for saved reading
// positions. Bookmarks are explicit user marks; positions track the last
// known location per document and are upserted on every relocation.
package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/liseuse/dbopen"
	"github.com/hazyhaar/liseuse/idgen"
)

// Bookmark is a saved position inside a document.
type Bookmark struct {
	ID        string  `json:"id"`
	DocID     string  `json:"doc_id"`
	Locator   string  `json:"locator"`
	Progress  float64 `json:"progress"`
	Page      int     `json:"page"`
	Label     string  `json:"label,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// Position is the last known reading position of a document.
type Position struct {
	DocID     string  `json:"doc_id"`
	Locator   string  `json:"locator"`
	Progress  float64 `json:"progress"`
	Page      int     `json:"page"`
	UpdatedAt int64   `json:"updated_at"`
}

// Store is the bookmark database handle.
type Store struct {
	DB  *sql.DB
	gen idgen.Generator
}

// StoreOption customises Open.
type StoreOption func(*Store)

// WithIDGen overrides the bookmark ID generator. Default: "bmk_"-prefixed UUIDv7.
func WithIDGen(g idgen.Generator) StoreOption {
	return func(s *Store) { s.gen = g }
}

// Open opens (or creates) the bookmark SQLite database at path and applies
// the schema.
func Open(path string, opts ...StoreOption) (*Store, error) {
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db, gen: idgen.Prefixed("bmk_", idgen.UUIDv7())}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// OpenDB wraps an already-open database, applying the schema. Used by tests
// and callers that share one database across stores.
func OpenDB(db *sql.DB, opts ...StoreOption) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}
	s := &Store{DB: db, gen: idgen.Prefixed("bmk_", idgen.UUIDv7())}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Add inserts a bookmark. A zero ID is filled from the store's generator;
// a zero CreatedAt is filled with the current time.
func (s *Store) Add(ctx context.Context, b *Bookmark) error {
	if b.ID == "" {
		b.ID = s.gen()
	}
	if b.CreatedAt == 0 {
		b.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO bookmarks (id, doc_id, locator, progress, page, label, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.DocID, b.Locator, b.Progress, b.Page, b.Label, b.CreatedAt,
	)
	return err
}

// Get retrieves a bookmark by ID. Returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id string) (*Bookmark, error) {
	b := &Bookmark{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, doc_id, locator, progress, page, label, created_at
		FROM bookmarks WHERE id = ?`, id).Scan(
		&b.ID, &b.DocID, &b.Locator, &b.Progress, &b.Page, &b.Label, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListByDoc returns a document's bookmarks, newest first.
func (s *Store) ListByDoc(ctx context.Context, docID string, limit int) ([]*Bookmark, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, doc_id, locator, progress, page, label, created_at
		FROM bookmarks WHERE doc_id = ?
		ORDER BY created_at DESC LIMIT ?`, docID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Bookmark
	for rows.Next() {
		b := &Bookmark{}
		if err := rows.Scan(&b.ID, &b.DocID, &b.Locator, &b.Progress, &b.Page, &b.Label, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Delete removes a bookmark. Deleting an absent ID is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = ?`, id)
	return err
}

// SavePosition upserts the last known reading position of a document.
func (s *Store) SavePosition(ctx context.Context, p *Position) error {
	p.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO positions (doc_id, locator, progress, page, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(doc_id) DO UPDATE SET
			locator = excluded.locator,
			progress = excluded.progress,
			page = excluded.page,
			updated_at = excluded.updated_at`,
		p.DocID, p.Locator, p.Progress, p.Page, p.UpdatedAt,
	)
	return err
}

// LastPosition retrieves the last known position. Returns (nil, nil) when
// the document has never been read.
func (s *Store) LastPosition(ctx context.Context, docID string) (*Position, error) {
	p := &Position{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT doc_id, locator, progress, page, updated_at
		FROM positions WHERE doc_id = ?`, docID).Scan(
		&p.DocID, &p.Locator, &p.Progress, &p.Page, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
