package engine

import (
	"fmt"
	"sync"
)

// ErrNoEventSurface is returned by NewBridge when the engine implements
// neither Notifier nor EventTarget.
type ErrNoEventSurface struct {
	Engine string
}

func (e *ErrNoEventSurface) Error() string {
	return fmt.Sprintf("engine: %s exposes no event surface (need Notifier or EventTarget)", e.Engine)
}

// binder adapts one native registration style to a uniform bind/unbind pair.
// The concrete adapter is chosen once, at bridge construction, by
// introspecting which interface the engine implements — not branched at
// every call site.
type binder interface {
	bind(event string, fn func(data any)) (unbind func())
}

type notifierBinder struct {
	n Notifier
}

func (b notifierBinder) bind(event string, fn func(data any)) func() {
	b.n.On(event, fn)
	return func() { b.n.Off(event, fn) }
}

type targetBinder struct {
	t EventTarget
}

func (b targetBinder) bind(event string, fn func(data any)) func() {
	h := func(e Event) { fn(e.Detail) }
	b.t.AddEventListener(event, h)
	return func() { b.t.RemoveEventListener(event, h) }
}

// Bridge wires an engine's native events without caring which of the two
// surfaces it exposes. Every Bind is tracked so Unwire can release all of
// them on teardown; Unwire is idempotent.
type Bridge struct {
	eng    Engine
	binder binder

	mu      sync.Mutex
	unbinds []func()
	unwired bool
}

// NewBridge introspects eng's event surface and returns a bridge over it.
// Notifier wins when an engine implements both.
func NewBridge(eng Engine) (*Bridge, error) {
	var b binder
	switch v := eng.(type) {
	case Notifier:
		b = notifierBinder{n: v}
	case EventTarget:
		b = targetBinder{t: v}
	default:
		return nil, &ErrNoEventSurface{Engine: fmt.Sprintf("%T", eng)}
	}
	return &Bridge{eng: eng, binder: b}, nil
}

// Engine returns the wrapped engine.
func (b *Bridge) Engine() Engine { return b.eng }

// Bind registers fn for a native event and returns an unbind that is also
// run automatically by Unwire. Unbind is safe to call more than once.
func (b *Bridge) Bind(event string, fn func(data any)) func() {
	unbind := b.binder.bind(event, fn)

	var once sync.Once
	wrapped := func() { once.Do(unbind) }

	b.mu.Lock()
	if b.unwired {
		b.mu.Unlock()
		wrapped()
		return wrapped
	}
	b.unbinds = append(b.unbinds, wrapped)
	b.mu.Unlock()
	return wrapped
}

// Unwire releases every binding made through this bridge. Safe to call
// multiple times and concurrently with late unbinds.
func (b *Bridge) Unwire() {
	b.mu.Lock()
	unbinds := b.unbinds
	b.unbinds = nil
	b.unwired = true
	b.mu.Unlock()

	for _, u := range unbinds {
		u()
	}
}

// Search probes the optional Searcher capability. ok is false when the
// engine does not implement it.
func (b *Bridge) Searcher() (Searcher, bool) {
	s, ok := b.eng.(Searcher)
	return s, ok
}
