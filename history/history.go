// CLAUDE:SUMMARY Reading history: buffered async SQLite recorder for session events, with retention cleanup.
// Package history records what happens during reading sessions: documents
// opened and closed, position changes, searches, failures. Persistence is
// async and non-blocking — a failing history store never blocks a page turn.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/liseuse/dbopen"
	"github.com/hazyhaar/liseuse/idgen"
)

// Event types written by the reader service.
const (
	EventOpened   = "opened"
	EventClosed   = "closed"
	EventRelocate = "relocate"
	EventSearch   = "search"
	EventError    = "error"
)

// Event is one row of reading history.
type Event struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	SessionID string    `json:"session_id,omitempty"`
	Event     string    `json:"event"`
	Detail    string    `json:"detail,omitempty"` // optional JSON
	At        time.Time `json:"at"`
}

// Recorder buffers events and flushes them to SQLite in batches. Record is
// non-blocking; a full buffer forces a synchronous flush rather than
// dropping events, since reading history is low-volume.
type Recorder struct {
	db            *sql.DB
	gen           idgen.Generator
	logger        *slog.Logger
	bufferSize    int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []*Event
	stop   chan struct{}
	done   chan struct{}
}

type Option func(*Recorder)

// WithIDGen overrides the event ID generator.
func WithIDGen(g idgen.Generator) Option {
	return func(r *Recorder) { r.gen = g }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithFlushInterval overrides the background flush cadence.
func WithFlushInterval(d time.Duration) Option {
	return func(r *Recorder) { r.flushInterval = d }
}

// Open opens (creating if needed) a history database at path.
func Open(path string, opts ...Option) (*Recorder, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	return OpenDB(db, opts...)
}

// OpenDB wraps an existing database, applying the schema. The caller keeps
// ownership of db; Close stops the flush loop without closing it.
func OpenDB(db *sql.DB, opts ...Option) (*Recorder, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	r := &Recorder{
		db:            db,
		gen:           idgen.Prefixed("evt_", idgen.Default),
		logger:        slog.Default(),
		bufferSize:    100,
		flushInterval: 5 * time.Second,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.buffer = make([]*Event, 0, r.bufferSize)
	go r.flushLoop()
	return r, nil
}

// Record queues an event. The ID and timestamp are filled when absent.
func (r *Recorder) Record(e *Event) {
	if e.ID == "" {
		e.ID = r.gen()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.mu.Lock()
	r.buffer = append(r.buffer, e)
	if len(r.buffer) >= r.bufferSize {
		r.flushLocked()
	}
	r.mu.Unlock()
}

// Flush writes any buffered events immediately.
func (r *Recorder) Flush() {
	r.mu.Lock()
	r.flushLocked()
	r.mu.Unlock()
}

// ListByDoc returns a document's history, newest first. limit <= 0 means 100.
func (r *Recorder) ListByDoc(ctx context.Context, docID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, doc_id, session_id, event, detail, created_at
		FROM reading_events WHERE doc_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, docID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list %s: %w", docID, err)
	}
	return scanEvents(rows)
}

// Recent returns the latest events across all documents.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, doc_id, session_id, event, detail, created_at
		FROM reading_events
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return scanEvents(rows)
}

// Cleanup deletes events older than retentionDays and reports the count.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM reading_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes remaining events and stops the background goroutine. The
// underlying database stays open when the Recorder came from OpenDB.
func (r *Recorder) Close() error {
	close(r.stop)
	<-r.done
	return nil
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			r.Flush()
			return
		case <-ticker.C:
			r.Flush()
		}
	}
}

// flushLocked writes the buffer in one transaction, retrying on lock
// contention. Errors are logged, not propagated: history must never take a
// session down with it.
func (r *Recorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}
	batch := r.buffer
	r.buffer = make([]*Event, 0, r.bufferSize)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := dbopen.RunTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, e := range batch {
			if _, err := tx.Exec(`
				INSERT INTO reading_events (id, doc_id, session_id, event, detail, created_at)
				VALUES (?,?,?,?,?,?)`,
				e.ID, e.DocID, e.SessionID, e.Event, e.Detail, e.At.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("history flush", "error", err, "dropped", len(batch))
	}
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.ID, &e.DocID, &e.SessionID, &e.Event, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.At = time.Unix(ts, 0)
		out = append(out, &e)
	}
	return out, rows.Err()
}
