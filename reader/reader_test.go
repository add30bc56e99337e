package reader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/liseuse/bookmark"
	"github.com/hazyhaar/liseuse/dbopen"
	"github.com/hazyhaar/liseuse/engine"
	"github.com/hazyhaar/liseuse/engine/enginetest"
	"github.com/hazyhaar/liseuse/reader"
	"github.com/hazyhaar/liseuse/route"
	"github.com/hazyhaar/liseuse/settings"
	"github.com/hazyhaar/liseuse/surface"
)

func testConfig() reader.Config {
	return reader.Config{
		LoadTimeout:    500 * time.Millisecond,
		GraceDelay:     10 * time.Millisecond,
		GuardAttempts:  2,
		GuardBaseDelay: time.Millisecond,
		FrameDelay:     time.Millisecond,
	}
}

func testSurface() *surface.Node {
	n := surface.NewNode("reader-view")
	n.SetSize(800, 600)
	return n
}

func fakeFactory(fake engine.Engine) reader.EngineFactory {
	return func(context.Context, reader.Document, surface.Surface, settings.Settings) (engine.Engine, error) {
		return fake, nil
	}
}

// eventLog captures bus events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []string
	data   []any
}

func (l *eventLog) record(event string) func(any) {
	return func(data any) {
		l.mu.Lock()
		l.events = append(l.events, event)
		l.data = append(l.data, data)
		l.mu.Unlock()
	}
}

func (l *eventLog) count(event string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestInitialize_Rich(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	var log eventLog
	r.On(reader.EventReady, log.record(reader.EventReady))

	surf := testSurface()
	err := r.Initialize(context.Background(), reader.Document{ID: "d1", URL: "http://books.local/moby.epub"}, surf)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if got := log.count(reader.EventReady); got != 1 {
		t.Fatalf("ready events = %d, want 1", got)
	}
	info, ok := log.data[0].(reader.ReadyInfo)
	if !ok {
		t.Fatalf("ready payload = %T, want ReadyInfo", log.data[0])
	}
	if info.Kind != route.KindRich || info.Format != route.FormatEPUB {
		t.Fatalf("ready info = %+v, want rich/epub", info)
	}

	// Temporary load bindings are gone; the permanent relocate and error
	// relays remain.
	if n := fake.ListenerCount(engine.EventBookReady); n != 0 {
		t.Fatalf("bookready listeners = %d, want 0", n)
	}
	if n := fake.ListenerCount(engine.EventRelocate); n != 1 {
		t.Fatalf("relocate listeners = %d, want 1", n)
	}
}

func TestInitialize_SameDocIsNoop(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))
	surf := testSurface()
	doc := reader.Document{ID: "d1", URL: "http://books.local/moby.epub"}

	if err := r.Initialize(context.Background(), doc, surf); err != nil {
		t.Fatal(err)
	}
	if err := r.Initialize(context.Background(), doc, surf); err != nil {
		t.Fatal(err)
	}
	if got := len(fake.LoadCalls); got != 1 {
		t.Fatalf("Load calls = %d, want 1 (second initialize is a no-op)", got)
	}
}

func TestInitialize_Timeout(t *testing.T) {
	fake := enginetest.NewFake()
	fake.LoadFunc = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	cfg := testConfig()
	cfg.LoadTimeout = 30 * time.Millisecond
	r := reader.New(cfg, reader.WithEngineFactory(fakeFactory(fake)))

	var log eventLog
	r.On(reader.EventError, log.record(reader.EventError))

	err := r.Initialize(context.Background(), reader.Document{URL: "http://books.local/slow.epub"}, testSurface())
	var et *reader.ErrLoadTimeout
	if !errors.As(err, &et) {
		t.Fatalf("error = %v, want *ErrLoadTimeout", err)
	}
	if got := log.count(reader.EventError); got != 1 {
		t.Fatalf("error events = %d, want exactly 1", got)
	}
	if !fake.Destroyed {
		t.Fatal("engine not destroyed after timeout")
	}
	if n := fake.ListenerCount(engine.EventBookReady); n != 0 {
		t.Fatalf("bookready listeners after failure = %d, want 0", n)
	}
}

func TestInitialize_NoFactory(t *testing.T) {
	r := reader.New(testConfig())

	err := r.Initialize(context.Background(), reader.Document{URL: "http://books.local/moby.epub"}, testSurface())
	var enf *reader.ErrNoEngineFactory
	if !errors.As(err, &enf) {
		t.Fatalf("error = %v, want *ErrNoEngineFactory", err)
	}
}

func TestInitialize_FallbackText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Call me Ishmael."))
	}))
	defer srv.Close()

	r := reader.New(testConfig())
	var log eventLog
	r.On(reader.EventReady, log.record(reader.EventReady))

	surf := testSurface()
	err := r.Initialize(context.Background(), reader.Document{URL: srv.URL + "/moby.txt"}, surf)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	info := log.data[0].(reader.ReadyInfo)
	if info.Kind != route.KindFallback {
		t.Fatalf("kind = %v, want fallback", info.Kind)
	}
	if surf.Content() == "" {
		t.Fatal("surface has no content after fallback load")
	}
}

func TestInitialize_FallbackFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := reader.New(testConfig())
	var log eventLog
	r.On(reader.EventError, log.record(reader.EventError))

	surf := testSurface()
	err := r.Initialize(context.Background(), reader.Document{URL: srv.URL + "/gone.txt"}, surf)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if got := log.count(reader.EventError); got != 1 {
		t.Fatalf("error events = %d, want exactly 1", got)
	}
	if surf.Content() != "" {
		t.Fatal("failed load must not leave content on the surface")
	}
}

func TestSetFontSize_BeforeInitialize(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	r.SetFontSize(22)

	if err := r.Initialize(context.Background(), reader.Document{URL: "http://books.local/moby.epub"}, testSurface()); err != nil {
		t.Fatal(err)
	}
	if got := fake.Setting("fontSize"); got != 22 {
		t.Fatalf("fontSize = %v, want 22 (set before initialize must survive)", got)
	}
}

func TestUpdateSettings_Live(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	if err := r.Initialize(context.Background(), reader.Document{URL: "http://books.local/moby.epub"}, testSurface()); err != nil {
		t.Fatal(err)
	}

	theme := settings.ThemeDark
	got := r.UpdateSettings(settings.Partial{Theme: &theme})
	if got.Theme != settings.ThemeDark {
		t.Fatalf("theme = %v, want dark", got.Theme)
	}
	if fake.Setting("theme") != string(settings.ThemeDark) {
		t.Fatalf("engine theme = %v, want dark pushed immediately", fake.Setting("theme"))
	}
}

func TestNavigation_RelaysRelocate(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	var log eventLog
	r.On(reader.EventRelocate, log.record(reader.EventRelocate))

	ctx := context.Background()
	if err := r.Initialize(ctx, reader.Document{URL: "http://books.local/moby.epub"}, testSurface()); err != nil {
		t.Fatal(err)
	}
	if err := r.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := log.count(reader.EventRelocate); got != 1 {
		t.Fatalf("relocate events = %d, want 1", got)
	}

	loc, err := r.Location(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if loc.CurrentPage != 2 {
		t.Fatalf("page = %d, want 2", loc.CurrentPage)
	}

	p, err := r.Progress(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p != 0.2 {
		t.Fatalf("progress = %v, want 0.2", p)
	}
}

func TestSearch(t *testing.T) {
	fake := enginetest.NewSearchableFake(engine.Match{Locator: "p3", Excerpt: "white whale", Page: 3})
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	ctx := context.Background()
	if err := r.Initialize(ctx, reader.Document{URL: "http://books.local/moby.epub"}, testSurface()); err != nil {
		t.Fatal(err)
	}

	matches, err := r.Search(ctx, "whale")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Page != 3 {
		t.Fatalf("matches = %+v, want one hit on page 3", matches)
	}
}

func TestSearch_WithoutCapability(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	ctx := context.Background()
	if err := r.Initialize(ctx, reader.Document{URL: "http://books.local/moby.epub"}, testSurface()); err != nil {
		t.Fatal(err)
	}

	matches, err := r.Search(ctx, "whale")
	if err != nil {
		t.Fatalf("Search without capability must not error: %v", err)
	}
	if matches != nil {
		t.Fatalf("matches = %+v, want none", matches)
	}
}

func TestQueries_NoSessionDegrade(t *testing.T) {
	r := reader.New(testConfig())
	ctx := context.Background()

	loc, err := r.Location(ctx)
	if err != nil {
		t.Fatalf("Location without session must not error: %v", err)
	}
	if loc != (engine.Location{}) {
		t.Fatalf("location = %+v, want zero value", loc)
	}

	p, err := r.Progress(ctx)
	if err != nil {
		t.Fatalf("Progress without session must not error: %v", err)
	}
	if p != 0 {
		t.Fatalf("progress = %v, want 0", p)
	}

	matches, err := r.Search(ctx, "whale")
	if err != nil {
		t.Fatalf("Search without session must not error: %v", err)
	}
	if matches != nil {
		t.Fatalf("matches = %+v, want none", matches)
	}
}

func TestDestroy(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	surf := testSurface()
	ctx := context.Background()
	if err := r.Initialize(ctx, reader.Document{URL: "http://books.local/moby.epub"}, surf); err != nil {
		t.Fatal(err)
	}

	r.Destroy()
	r.Destroy() // idempotent

	if !fake.Destroyed {
		t.Fatal("engine not destroyed")
	}
	if surf.Content() != "" {
		t.Fatal("surface not cleared")
	}
	if err := r.Next(ctx); err == nil {
		t.Fatal("Next after Destroy must fail")
	}
}

func TestDestroy_ListenersSurvive(t *testing.T) {
	fake := enginetest.NewFake()
	r := reader.New(testConfig(), reader.WithEngineFactory(fakeFactory(fake)))

	var log eventLog
	r.On(reader.EventReady, log.record(reader.EventReady))

	ctx := context.Background()
	doc := reader.Document{URL: "http://books.local/moby.epub"}
	if err := r.Initialize(ctx, doc, testSurface()); err != nil {
		t.Fatal(err)
	}
	r.Destroy()

	if err := r.Initialize(ctx, doc, testSurface()); err != nil {
		t.Fatal(err)
	}
	if got := log.count(reader.EventReady); got != 2 {
		t.Fatalf("ready events = %d, want 2 (listener survives teardown)", got)
	}
}

func TestInitialize_Superseded(t *testing.T) {
	started := make(chan struct{})
	fake1 := enginetest.NewFake()
	fake1.LoadFunc = func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	fake2 := enginetest.NewFake()

	calls := 0
	factory := func(context.Context, reader.Document, surface.Surface, settings.Settings) (engine.Engine, error) {
		calls++
		if calls == 1 {
			return fake1, nil
		}
		return fake2, nil
	}

	cfg := testConfig()
	cfg.LoadTimeout = 5 * time.Second
	r := reader.New(cfg, reader.WithEngineFactory(factory))

	var log eventLog
	r.On(reader.EventError, log.record(reader.EventError))

	surf := testSurface()
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- r.Initialize(ctx, reader.Document{URL: "http://books.local/first.epub"}, surf)
	}()
	<-started

	if err := r.Initialize(ctx, reader.Document{URL: "http://books.local/second.epub"}, surf); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}

	var es *reader.ErrSuperseded
	if err := <-firstErr; !errors.As(err, &es) {
		t.Fatalf("first Initialize error = %v, want *ErrSuperseded", err)
	}
	// The superseded load must not publish an error event.
	if got := log.count(reader.EventError); got != 0 {
		t.Fatalf("error events = %d, want 0", got)
	}
	if !fake1.Destroyed {
		t.Fatal("superseded engine not destroyed")
	}
}

func TestAddBookmark(t *testing.T) {
	db := dbopen.OpenMemory(t)
	marks, err := bookmark.OpenDB(db)
	if err != nil {
		t.Fatal(err)
	}

	fake := enginetest.NewFake()
	r := reader.New(testConfig(),
		reader.WithEngineFactory(fakeFactory(fake)),
		reader.WithBookmarkStore(marks))

	ctx := context.Background()
	if err := r.Initialize(ctx, reader.Document{ID: "moby", URL: "http://books.local/moby.epub"}, testSurface()); err != nil {
		t.Fatal(err)
	}

	b, err := r.AddBookmark(ctx, "start")
	if err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	if b.DocID != "moby" || b.Locator != "page-1" {
		t.Fatalf("bookmark = %+v, want doc moby at page-1", b)
	}

	saved, err := marks.ListByDoc(ctx, "moby", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0].Label != "start" {
		t.Fatalf("saved = %+v, want one labelled mark", saved)
	}
}

func TestAddBookmark_NoSession(t *testing.T) {
	r := reader.New(testConfig())

	_, err := r.AddBookmark(context.Background(), "")
	var ns *reader.ErrNoSession
	if !errors.As(err, &ns) {
		t.Fatalf("error = %v, want *ErrNoSession", err)
	}
}
