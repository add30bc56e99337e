// Package enginetest provides fake engines for testing the orchestrator and
// load protocol. The fakes are scriptable per scenario: Load can resolve
// immediately, fail, block until cancelled, or panic, and native events are
// fired explicitly from the test.
package enginetest

import (
	"context"
	"reflect"
	"sync"

	"github.com/hazyhaar/liseuse/engine"
)

type handler struct {
	id uintptr
	fn func(data any)
}

// Fake implements engine.Engine with the Notifier event surface.
type Fake struct {
	mu        sync.Mutex
	listeners map[string][]handler
	loc       engine.Location
	settings  map[string]any

	// LoadFunc scripts Load. Nil means "resolve immediately without
	// painting" — the case the grace delay exists for.
	LoadFunc func(ctx context.Context, url string) error

	LoadCalls []string
	Destroyed bool
}

// NewFake creates a Fake positioned at page 1 of 10.
func NewFake() *Fake {
	return &Fake{
		listeners: make(map[string][]handler),
		settings:  make(map[string]any),
		loc:       engine.Location{CurrentPage: 1, TotalPages: 10, Progress: 0.1, Locator: "page-1"},
	}
}

// On implements engine.Notifier.
func (f *Fake) On(event string, fn func(data any)) {
	f.mu.Lock()
	f.listeners[event] = append(f.listeners[event], handler{id: reflect.ValueOf(fn).Pointer(), fn: fn})
	f.mu.Unlock()
}

// Off implements engine.Notifier.
func (f *Fake) Off(event string, fn func(data any)) {
	id := reflect.ValueOf(fn).Pointer()
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.listeners[event]
	for i, h := range list {
		if h.id == id {
			f.listeners[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit fires a native event to current listeners.
func (f *Fake) Emit(event string, data any) {
	f.mu.Lock()
	list := make([]handler, len(f.listeners[event]))
	copy(list, f.listeners[event])
	f.mu.Unlock()
	for _, h := range list {
		h.fn(data)
	}
}

// ListenerCount reports registered handlers for event — used to assert
// cleanup after the load race settles.
func (f *Fake) ListenerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[event])
}

// Load implements engine.Engine.
func (f *Fake) Load(ctx context.Context, url string) error {
	f.mu.Lock()
	f.LoadCalls = append(f.LoadCalls, url)
	fn := f.LoadFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, url)
	}
	return nil
}

// GoTo implements engine.Engine.
func (f *Fake) GoTo(_ context.Context, locator string) error {
	f.mu.Lock()
	f.loc.Locator = locator
	loc := f.loc
	f.mu.Unlock()
	f.Emit(engine.EventRelocate, loc)
	return nil
}

// Next implements engine.Engine.
func (f *Fake) Next(_ context.Context) error {
	f.mu.Lock()
	if f.loc.CurrentPage < f.loc.TotalPages {
		f.loc.CurrentPage++
	}
	f.recalcLocked()
	loc := f.loc
	f.mu.Unlock()
	f.Emit(engine.EventRelocate, loc)
	return nil
}

// Prev implements engine.Engine.
func (f *Fake) Prev(_ context.Context) error {
	f.mu.Lock()
	if f.loc.CurrentPage > 1 {
		f.loc.CurrentPage--
	}
	f.recalcLocked()
	loc := f.loc
	f.mu.Unlock()
	f.Emit(engine.EventRelocate, loc)
	return nil
}

// Location implements engine.Engine.
func (f *Fake) Location(context.Context) (engine.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loc, nil
}

// SetLocation scripts the reported position.
func (f *Fake) SetLocation(loc engine.Location) {
	f.mu.Lock()
	f.loc = loc
	f.mu.Unlock()
}

// SetSetting implements engine.Engine.
func (f *Fake) SetSetting(key string, value any) error {
	f.mu.Lock()
	f.settings[key] = value
	f.mu.Unlock()
	return nil
}

// Setting returns a recorded setting value.
func (f *Fake) Setting(key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings[key]
}

// Destroy implements engine.Engine.
func (f *Fake) Destroy() error {
	f.mu.Lock()
	f.Destroyed = true
	f.listeners = make(map[string][]handler)
	f.mu.Unlock()
	return nil
}

func (f *Fake) recalcLocked() {
	if f.loc.TotalPages > 0 {
		f.loc.Progress = float64(f.loc.CurrentPage) / float64(f.loc.TotalPages)
	}
}

// SearchableFake is a Fake that also implements engine.Searcher.
type SearchableFake struct {
	*Fake
	Matches []engine.Match
}

// NewSearchableFake creates a SearchableFake returning the given matches.
func NewSearchableFake(matches ...engine.Match) *SearchableFake {
	return &SearchableFake{Fake: NewFake(), Matches: matches}
}

// Search implements engine.Searcher.
func (f *SearchableFake) Search(context.Context, string) ([]engine.Match, error) {
	return f.Matches, nil
}

// TargetFake implements engine.Engine with the EventTarget surface: handlers
// receive engine.Event envelopes with the payload under Detail.
type TargetFake struct {
	core *Fake

	mu        sync.Mutex
	listeners map[string][]targetHandler
}

type targetHandler struct {
	id uintptr
	fn func(engine.Event)
}

// NewTargetFake creates an EventTarget-style fake.
func NewTargetFake() *TargetFake {
	return &TargetFake{
		core:      NewFake(),
		listeners: make(map[string][]targetHandler),
	}
}

// Core exposes the underlying Fake for scripting (LoadFunc, SetLocation).
func (f *TargetFake) Core() *Fake { return f.core }

// AddEventListener implements engine.EventTarget.
func (f *TargetFake) AddEventListener(event string, fn func(engine.Event)) {
	f.mu.Lock()
	f.listeners[event] = append(f.listeners[event],
		targetHandler{id: reflect.ValueOf(fn).Pointer(), fn: fn})
	f.mu.Unlock()
}

// RemoveEventListener implements engine.EventTarget.
func (f *TargetFake) RemoveEventListener(event string, fn func(engine.Event)) {
	id := reflect.ValueOf(fn).Pointer()
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.listeners[event]
	for i, h := range list {
		if h.id == id {
			f.listeners[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Dispatch fires a native event with the payload wrapped under Detail.
func (f *TargetFake) Dispatch(event string, detail any) {
	f.mu.Lock()
	list := make([]targetHandler, len(f.listeners[event]))
	copy(list, f.listeners[event])
	f.mu.Unlock()
	for _, h := range list {
		h.fn(engine.Event{Type: event, Detail: detail})
	}
}

// ListenerCount reports registered handlers for event.
func (f *TargetFake) ListenerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[event])
}

// Load implements engine.Engine.
func (f *TargetFake) Load(ctx context.Context, url string) error { return f.core.Load(ctx, url) }

// GoTo implements engine.Engine. Relocation is dispatched target-style.
func (f *TargetFake) GoTo(_ context.Context, locator string) error {
	f.core.mu.Lock()
	f.core.loc.Locator = locator
	loc := f.core.loc
	f.core.mu.Unlock()
	f.Dispatch(engine.EventRelocate, loc)
	return nil
}

// Next implements engine.Engine.
func (f *TargetFake) Next(context.Context) error {
	f.core.mu.Lock()
	if f.core.loc.CurrentPage < f.core.loc.TotalPages {
		f.core.loc.CurrentPage++
	}
	f.core.recalcLocked()
	loc := f.core.loc
	f.core.mu.Unlock()
	f.Dispatch(engine.EventRelocate, loc)
	return nil
}

// Prev implements engine.Engine.
func (f *TargetFake) Prev(context.Context) error {
	f.core.mu.Lock()
	if f.core.loc.CurrentPage > 1 {
		f.core.loc.CurrentPage--
	}
	f.core.recalcLocked()
	loc := f.core.loc
	f.core.mu.Unlock()
	f.Dispatch(engine.EventRelocate, loc)
	return nil
}

// Location implements engine.Engine.
func (f *TargetFake) Location(ctx context.Context) (engine.Location, error) {
	return f.core.Location(ctx)
}

// SetSetting implements engine.Engine.
func (f *TargetFake) SetSetting(key string, value any) error { return f.core.SetSetting(key, value) }

// Destroy implements engine.Engine.
func (f *TargetFake) Destroy() error { return f.core.Destroy() }
