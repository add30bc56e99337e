package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/liseuse/bookmark"
	"github.com/hazyhaar/liseuse/engine"
	"github.com/hazyhaar/liseuse/history"
	"github.com/hazyhaar/liseuse/idgen"
	"github.com/hazyhaar/liseuse/reader"
	"github.com/hazyhaar/liseuse/surface"
)

// entry is one live reading session: its own orchestrator, its own surface.
type entry struct {
	ID     string
	Doc    reader.Document
	Reader *reader.Reader
	Surf   *surface.Node

	mu    sync.Mutex
	ready *reader.ReadyInfo
}

func (e *entry) setReady(info reader.ReadyInfo) {
	e.mu.Lock()
	e.ready = &info
	e.mu.Unlock()
}

func (e *entry) Ready() *reader.ReadyInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

type sessionManager struct {
	cfg     reader.Config
	factory reader.EngineFactory
	marks   *bookmark.Store
	rec     *history.Recorder
	logger  *slog.Logger
	newID   idgen.Generator

	mu       sync.Mutex
	sessions map[string]*entry
}

func newSessionManager(cfg reader.Config, factory reader.EngineFactory, marks *bookmark.Store, rec *history.Recorder, logger *slog.Logger) *sessionManager {
	return &sessionManager{
		cfg:      cfg,
		factory:  factory,
		marks:    marks,
		rec:      rec,
		logger:   logger,
		newID:    idgen.Prefixed("sess_", idgen.Default),
		sessions: make(map[string]*entry),
	}
}

func (m *sessionManager) record(e *entry, event, detail string) {
	if m.rec == nil {
		return
	}
	m.rec.Record(&history.Event{
		DocID:     e.Doc.ID,
		SessionID: e.ID,
		Event:     event,
		Detail:    detail,
	})
}

// Open creates a session and blocks until the document is readable or the
// open fails. A failed open leaves nothing behind.
func (m *sessionManager) Open(ctx context.Context, doc reader.Document) (*entry, error) {
	if doc.URL == "" {
		return nil, fmt.Errorf("document url is required")
	}
	if doc.ID == "" {
		doc.ID = doc.URL
	}

	e := &entry{
		ID:   m.newID(),
		Doc:  doc,
		Surf: surface.NewNode("liseused-" + doc.ID),
	}
	e.Surf.SetSize(800, 1100)

	opts := []reader.Option{reader.WithLogger(m.logger)}
	if m.factory != nil {
		opts = append(opts, reader.WithEngineFactory(m.factory))
	}
	if m.marks != nil {
		opts = append(opts, reader.WithBookmarkStore(m.marks))
	}
	e.Reader = reader.New(m.cfg, opts...)
	e.Reader.On(reader.EventReady, func(data any) {
		if info, ok := data.(reader.ReadyInfo); ok {
			e.setReady(info)
		}
	})
	e.Reader.On(reader.EventRelocate, func(data any) {
		if loc, ok := data.(engine.Location); ok {
			m.record(e, history.EventRelocate,
				fmt.Sprintf(`{"page":%d,"progress":%.2f}`, loc.CurrentPage, loc.Progress))
		}
	})
	e.Reader.On(reader.EventError, func(data any) {
		if err, ok := data.(error); ok {
			m.record(e, history.EventError, fmt.Sprintf("%q", err.Error()))
		}
	})

	if err := e.Reader.Initialize(ctx, doc, e.Surf); err != nil {
		return nil, err
	}
	if ready := e.Ready(); ready != nil {
		m.record(e, history.EventOpened,
			fmt.Sprintf(`{"format":%q,"kind":%q}`, ready.Format, ready.Kind))
	} else {
		m.record(e, history.EventOpened, "")
	}

	m.restorePosition(ctx, e)

	m.mu.Lock()
	m.sessions[e.ID] = e
	m.mu.Unlock()
	return e, nil
}

// restorePosition moves a fresh session to the last saved position for its
// document. Best effort: a failed restore leaves the session on page one.
func (m *sessionManager) restorePosition(ctx context.Context, e *entry) {
	if m.marks == nil {
		return
	}
	pos, err := m.marks.LastPosition(ctx, e.Doc.ID)
	if err != nil || pos == nil || pos.Locator == "" {
		return
	}
	if err := e.Reader.Navigate(ctx, pos.Locator); err != nil {
		m.logger.Warn("restore position", "doc", e.Doc.ID, "locator", pos.Locator, "error", err)
	}
}

func (m *sessionManager) Get(id string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	return e, ok
}

func (m *sessionManager) List() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e)
	}
	return out
}

// Close tears a session down, saving its reading position first.
func (m *sessionManager) Close(ctx context.Context, id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.savePosition(ctx, e)
	m.record(e, history.EventClosed, "")
	e.Reader.Destroy()
	return true
}

// CloseAll is the shutdown path.
func (m *sessionManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		all = append(all, e)
	}
	m.sessions = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range all {
		m.savePosition(ctx, e)
		m.record(e, history.EventClosed, "")
		e.Reader.Destroy()
	}
}

func (m *sessionManager) savePosition(ctx context.Context, e *entry) {
	if m.marks == nil {
		return
	}
	loc, err := e.Reader.Location(ctx)
	if err != nil {
		return
	}
	pos := &bookmark.Position{
		DocID:    e.Doc.ID,
		Locator:  loc.Locator,
		Progress: loc.Progress,
		Page:     loc.CurrentPage,
	}
	if err := m.marks.SavePosition(ctx, pos); err != nil {
		m.logger.Warn("save position", "doc", e.Doc.ID, "error", err)
	}
}
