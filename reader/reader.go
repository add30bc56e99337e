// CLAUDE:SUMMARY Reader orchestrator — session lifecycle, generation-guarded initialize, navigation, settings, bookmarks.
// Package reader orchestrates a reading session end to end: it guards the
// target surface, routes the document to the rich engine or the fallback
// pipeline, drives the load protocol to a single verdict, and exposes
// navigation, settings, search, and bookmarking over whichever pipeline won.
//
// Usage:
//
//	r := reader.New(cfg, reader.WithEngineFactory(factory))
//	r.On(reader.EventReady, func(any) { ... })
//	err := r.Initialize(ctx, doc, surf)
//	defer r.Destroy()
package reader

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazyhaar/liseuse/bookmark"
	"github.com/hazyhaar/liseuse/bus"
	"github.com/hazyhaar/liseuse/engine"
	"github.com/hazyhaar/liseuse/fallback"
	"github.com/hazyhaar/liseuse/route"
	"github.com/hazyhaar/liseuse/settings"
	"github.com/hazyhaar/liseuse/surface"
)

// Canonical session events published on the reader's bus.
const (
	EventReady    = "ready"
	EventRelocate = engine.EventRelocate
	EventError    = engine.EventError
)

// Document identifies what to read.
type Document struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	MIME string `json:"mime,omitempty"`
}

// ReadyInfo is the payload of EventReady.
type ReadyInfo struct {
	Doc    Document     `json:"doc"`
	Format route.Format `json:"format"`
	Kind   route.Kind   `json:"kind"`
}

// EngineFactory builds a rich engine bound to a surface. Called once per
// Initialize that routes rich; the reader owns the returned engine's
// lifecycle from then on.
type EngineFactory func(ctx context.Context, doc Document, surf surface.Surface, s settings.Settings) (engine.Engine, error)

type session struct {
	doc    Document
	surf   surface.Surface
	pipe   pipeline
	format route.Format
	kind   route.Kind
	cancel context.CancelFunc
}

// Reader is the top-level session orchestrator. All methods are safe for
// concurrent use; at most one session is live at a time, and a later
// Initialize or Destroy supersedes any load still in flight.
type Reader struct {
	cfg     Config
	bus     *bus.Bus
	store   *settings.Store
	guard   *surface.Guard
	fb      *fallback.Pipeline
	factory EngineFactory
	marks   *bookmark.Store
	logger  *slog.Logger

	// option staging, consumed by New
	guardOpts []surface.GuardOption
	client    *http.Client

	mu   sync.Mutex
	gen  int
	sess *session
}

// Option customises the Reader.
type Option func(*Reader)

// WithEngineFactory installs the rich-engine constructor. Without it every
// rich-routed document fails with ErrNoEngineFactory.
func WithEngineFactory(f EngineFactory) Option {
	return func(r *Reader) { r.factory = f }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// WithResolver lets the surface guard recover a detached surface by ID,
// falling back to fallbackID when the original is gone.
func WithResolver(res surface.Resolver, fallbackID string) Option {
	return func(r *Reader) { r.guardOpts = append(r.guardOpts, surface.WithResolver(res, fallbackID)) }
}

// WithHTTPClient overrides the fallback pipeline's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Reader) { r.client = c }
}

// WithBookmarkStore enables bookmark persistence. Without it AddBookmark
// still returns the constructed bookmark but nothing is saved.
func WithBookmarkStore(s *bookmark.Store) Option {
	return func(r *Reader) { r.marks = s }
}

// New builds a Reader. The zero Config is usable.
func New(cfg Config, opts ...Option) *Reader {
	cfg.defaults()
	r := &Reader{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}

	r.bus = bus.New(bus.WithLogger(r.logger))
	r.store = settings.NewStore(cfg.Settings, settings.WithLogger(r.logger))

	guardOpts := append([]surface.GuardOption{
		surface.WithMaxAttempts(cfg.GuardAttempts),
		surface.WithBaseDelay(cfg.GuardBaseDelay),
		surface.WithMinHeight(cfg.MinHeight),
		surface.WithGuardLogger(r.logger),
	}, r.guardOpts...)
	r.guard = surface.NewGuard(guardOpts...)

	fbOpts := []fallback.Option{
		fallback.WithUserAgent(cfg.UserAgent),
		fallback.WithFrameDelay(cfg.FrameDelay),
		fallback.WithLogger(r.logger),
	}
	if r.client != nil {
		fbOpts = append(fbOpts, fallback.WithClient(r.client))
	} else {
		fbOpts = append(fbOpts, fallback.WithClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	}
	r.fb = fallback.New(fbOpts...)

	return r
}

// On subscribes to a session event. Listeners survive session teardown; they
// belong to the caller, not to any one document.
func (r *Reader) On(event string, fn bus.Callback) { r.bus.On(event, fn) }

// Off removes a previously registered listener by identity.
func (r *Reader) Off(event string, fn bus.Callback) { r.bus.Off(event, fn) }

// Settings returns the current effective settings.
func (r *Reader) Settings() settings.Settings { return r.store.Snapshot() }

// Initialize opens doc on surf, tearing down any prior session first.
// Calling it again with the same document and surface while that session is
// live is a no-op. The returned error is also published as EventError, so
// event-driven callers need not check both.
func (r *Reader) Initialize(ctx context.Context, doc Document, surf surface.Surface) error {
	r.mu.Lock()
	if s := r.sess; s != nil && s.doc.URL == doc.URL && s.surf == surf {
		r.mu.Unlock()
		r.logger.Debug("initialize: session already live", "url", doc.URL)
		return nil
	}
	r.teardownLocked()
	r.gen++
	myGen := r.gen
	loadCtx, cancel := context.WithCancel(ctx)
	r.sess = &session{doc: doc, surf: surf, cancel: cancel}
	r.mu.Unlock()

	surf, err := r.guard.Ensure(loadCtx, surf)
	if err != nil {
		return r.fail(myGen, err)
	}
	// Ghost content from an earlier document must not survive into the new
	// session, even if the load below fails.
	surf.Clear()

	format, kind := route.Route(doc.URL, doc.MIME)
	r.logger.Info("initialize", "url", doc.URL, "format", format, "pipeline", kind)

	var pipe pipeline
	switch kind {
	case route.KindRich:
		pipe, err = r.openRich(loadCtx, doc, surf)
	default:
		pipe, err = r.openFallback(loadCtx, doc, surf, format)
	}
	if err != nil {
		return r.fail(myGen, err)
	}

	// The engine may have torn the surface off during load.
	if !surf.Attached() {
		pipe.destroy()
		return r.fail(myGen, &surface.ErrSurfaceDetached{ID: surf.ID()})
	}

	r.mu.Lock()
	if r.gen != myGen {
		r.mu.Unlock()
		pipe.destroy()
		return &ErrSuperseded{}
	}
	r.sess.surf = surf
	r.sess.pipe = pipe
	r.sess.format = format
	r.sess.kind = kind
	r.store.Attach(pipeApplier{pipe})
	r.mu.Unlock()

	r.bus.Emit(EventReady, ReadyInfo{Doc: doc, Format: format, Kind: kind})
	return nil
}

func (r *Reader) openRich(ctx context.Context, doc Document, surf surface.Surface) (pipeline, error) {
	if r.factory == nil {
		return nil, &ErrNoEngineFactory{URL: doc.URL}
	}
	eng, err := r.factory(ctx, doc, surf, r.store.Snapshot())
	if err != nil {
		return nil, &ErrEngine{Cause: err}
	}
	br, err := engine.NewBridge(eng)
	if err != nil {
		eng.Destroy()
		return nil, err
	}
	if err := runLoadProtocol(ctx, br, doc.URL, r.cfg.LoadTimeout, r.cfg.GraceDelay, r.logger); err != nil {
		br.Unwire()
		eng.Destroy()
		return nil, err
	}
	return newRichPipeline(br, r.bus, r.logger), nil
}

func (r *Reader) openFallback(ctx context.Context, doc Document, surf surface.Surface, format route.Format) (pipeline, error) {
	sess, err := r.fb.Open(ctx, doc.URL, format, surf)
	if err != nil {
		return nil, err
	}
	return newFallbackPipeline(sess, r.bus), nil
}

// fail tears down the failed session and publishes a single EventError —
// unless a later Initialize or Destroy already took over, in which case the
// error belongs to nobody and is suppressed.
func (r *Reader) fail(myGen int, err error) error {
	r.mu.Lock()
	if r.gen != myGen {
		r.mu.Unlock()
		return &ErrSuperseded{}
	}
	r.teardownLocked()
	r.mu.Unlock()

	r.logger.Warn("session failed", "error", err)
	r.bus.Emit(EventError, err)
	return err
}

// teardownLocked dismantles the current session. Caller holds r.mu.
func (r *Reader) teardownLocked() {
	s := r.sess
	if s == nil {
		return
	}
	r.sess = nil
	r.store.Detach()
	if s.cancel != nil {
		s.cancel()
	}
	if s.pipe != nil {
		s.pipe.destroy()
		s.surf.Clear()
	}
}

// Destroy tears down the active session, if any. Event listeners registered
// with On stay registered. Safe to call repeatedly.
func (r *Reader) Destroy() {
	r.mu.Lock()
	r.gen++
	r.teardownLocked()
	r.mu.Unlock()
}

func (r *Reader) pipeline() (pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sess == nil || r.sess.pipe == nil {
		return nil, &ErrNoSession{}
	}
	return r.sess.pipe, nil
}

// Navigate jumps to a locator: an engine-native position for rich sessions,
// "px:N" or a 0..1 fraction for fallback sessions. Mutating operations
// (Navigate, Next, Prev, AddBookmark) report *ErrNoSession when nothing is
// loaded; queries degrade to zero values instead.
func (r *Reader) Navigate(ctx context.Context, locator string) error {
	p, err := r.pipeline()
	if err != nil {
		return err
	}
	return p.goTo(ctx, locator)
}

// Next advances one page or screen.
func (r *Reader) Next(ctx context.Context) error {
	p, err := r.pipeline()
	if err != nil {
		return err
	}
	return p.next(ctx)
}

// Prev goes back one page or screen.
func (r *Reader) Prev(ctx context.Context) error {
	p, err := r.pipeline()
	if err != nil {
		return err
	}
	return p.prev(ctx)
}

// Location reports the current position. Queries are best-effort: with no
// active session the zero Location is returned, not an error.
func (r *Reader) Location(ctx context.Context) (engine.Location, error) {
	p, err := r.pipeline()
	if err != nil {
		return engine.Location{}, nil
	}
	return p.location(ctx)
}

// Progress reports the 0..1 reading fraction; 0 with no active session.
func (r *Reader) Progress(ctx context.Context) (float64, error) {
	loc, err := r.Location(ctx)
	if err != nil {
		return 0, err
	}
	return loc.Progress, nil
}

// Search finds query in the loaded document. Sessions without search
// capability, and readers without a session at all, return no matches
// rather than an error.
func (r *Reader) Search(ctx context.Context, query string) ([]engine.Match, error) {
	p, err := r.pipeline()
	if err != nil {
		return nil, nil
	}
	return p.search(ctx, query)
}

// SetFontSize updates the font size. Before a session is live the value is
// recorded and pushed to the pipeline when one attaches.
func (r *Reader) SetFontSize(px int) {
	r.store.Update(settings.Partial{FontSize: &px})
}

// UpdateSettings merges a partial change and returns the effective result.
// Changed values reach the live pipeline immediately.
func (r *Reader) UpdateSettings(p settings.Partial) settings.Settings {
	return r.store.Update(p)
}

// AddBookmark records the current position. With a bookmark store configured
// the mark is persisted; without one it is only returned.
func (r *Reader) AddBookmark(ctx context.Context, label string) (*bookmark.Bookmark, error) {
	r.mu.Lock()
	s := r.sess
	r.mu.Unlock()
	if s == nil || s.pipe == nil {
		return nil, &ErrNoSession{}
	}

	loc, err := s.pipe.location(ctx)
	if err != nil {
		return nil, err
	}
	b := &bookmark.Bookmark{
		DocID:    s.doc.ID,
		Locator:  loc.Locator,
		Progress: loc.Progress,
		Page:     loc.CurrentPage,
		Label:    label,
	}
	if r.marks != nil {
		if err := r.marks.Add(ctx, b); err != nil {
			return nil, err
		}
	} else {
		b.CreatedAt = time.Now().UnixMilli()
	}
	return b, nil
}

// pipeApplier adapts a pipeline to the settings push interface.
type pipeApplier struct{ p pipeline }

func (a pipeApplier) ApplySetting(key string, value any) error {
	return a.p.applySetting(key, value)
}
