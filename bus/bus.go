// CLAUDE:SUMMARY In-process pub/sub registry with ordered dispatch and per-listener panic isolation.
// Package bus provides the event registry that decouples reader callers from
// pipeline internals. Listeners are invoked synchronously, in registration
// order, and a panicking listener never takes down its siblings or the
// emitter.
//
// The bus carries the three canonical reader events ("ready", "relocate",
// "error") but is deliberately untyped on the event name so pipelines can
// publish their own internals during tests.
package bus

import (
	"log/slog"
	"reflect"
	"sync"
)

// Callback receives the payload passed to Emit. A nil payload is valid
// ("ready" carries none).
type Callback func(data any)

// listener pairs a callback with its identity token so Off can remove the
// first matching registration. Func values are not comparable in Go; the
// reflect code pointer is the closest analog to removal-by-reference.
type listener struct {
	id uintptr
	fn Callback
}

// Bus is a minimal event registry. The zero value is not usable; call New.
//
// Registering the same callback twice is allowed and means it runs twice per
// Emit — and requires two Off calls to fully remove.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]listener
	logger    *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report recovered listener panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[string][]listener),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// On appends cb to the listener list for event, creating the list if absent.
// No deduplication is performed.
func (b *Bus) On(event string, cb Callback) {
	if cb == nil {
		return
	}
	b.mu.Lock()
	b.listeners[event] = append(b.listeners[event], listener{id: callbackID(cb), fn: cb})
	b.mu.Unlock()
}

// Off removes the first registration of cb for event. Removing an unknown
// event or callback is a no-op, not an error.
//
// Identity is the code pointer, so two closures created from the same
// function literal are indistinguishable: Off removes the earliest
// registration sharing that literal, which may not be the closure passed.
// Callers needing to unsubscribe one of several closures over the same
// literal should keep distinct wrapper funcs per registration.
func (b *Bus) Off(event string, cb Callback) {
	if cb == nil {
		return
	}
	id := callbackID(cb)
	b.mu.Lock()
	defer b.mu.Unlock()

	list, ok := b.listeners[event]
	if !ok {
		return
	}
	for i, l := range list {
		if l.id == id {
			b.listeners[event] = append(list[:i:i], list[i+1:]...)
			if len(b.listeners[event]) == 0 {
				delete(b.listeners, event)
			}
			return
		}
	}
}

// Emit invokes every callback currently registered for event, in
// registration order, passing data. It returns only after all listeners have
// run. A listener panic is recovered, logged, and does not prevent later
// listeners from running. Emitting with zero listeners is a safe no-op.
func (b *Bus) Emit(event string, data any) {
	b.mu.Lock()
	list := b.listeners[event]
	snapshot := make([]listener, len(list))
	copy(snapshot, list)
	b.mu.Unlock()

	for _, l := range snapshot {
		b.dispatch(event, l.fn, data)
	}
}

// ListenerCount reports how many callbacks are registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[event])
}

// Reset drops every registration. Used on session teardown.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.listeners = make(map[string][]listener)
	b.mu.Unlock()
}

func (b *Bus) dispatch(event string, fn Callback, data any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: listener panic", "event", event, "panic", r)
		}
	}()
	fn(data)
}

func callbackID(cb Callback) uintptr {
	return reflect.ValueOf(cb).Pointer()
}
