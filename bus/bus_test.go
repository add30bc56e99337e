package bus

import (
	"log/slog"
	"testing"
)

func TestEmitOrder(t *testing.T) {
	b := New()
	var order []int
	b.On("relocate", func(any) { order = append(order, 1) })
	b.On("relocate", func(any) { order = append(order, 2) })
	b.On("relocate", func(any) { order = append(order, 3) })

	b.Emit("relocate", nil)

	if len(order) != 3 {
		t.Fatalf("got %d invocations, want 3", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Errorf("position %d: got %d, want %d", i, v, i+1)
		}
	}
}

func TestEmitPassesData(t *testing.T) {
	b := New()
	var got any
	b.On("error", func(data any) { got = data })

	b.Emit("error", "boom")

	if got != "boom" {
		t.Fatalf("got %v, want %q", got, "boom")
	}
}

func TestEmitNoListeners(t *testing.T) {
	b := New()
	// Must not panic.
	b.Emit("ready", nil)
}

func TestOffRemovesFirstRegistration(t *testing.T) {
	b := New()
	count := 0
	cb := func(any) { count++ }

	// Double registration runs twice and needs double removal.
	b.On("ready", cb)
	b.On("ready", cb)
	b.Emit("ready", nil)
	if count != 2 {
		t.Fatalf("after double On: got %d calls, want 2", count)
	}

	b.Off("ready", cb)
	count = 0
	b.Emit("ready", nil)
	if count != 1 {
		t.Fatalf("after one Off: got %d calls, want 1", count)
	}

	b.Off("ready", cb)
	count = 0
	b.Emit("ready", nil)
	if count != 0 {
		t.Fatalf("after second Off: got %d calls, want 0", count)
	}
}

func TestOffSharedLiteralRemovesEarliest(t *testing.T) {
	b := New()
	var hits []string
	record := func(tag string) Callback {
		return func(any) { hits = append(hits, tag) }
	}
	first := record("first")
	second := record("second")

	// Distinct closures over one literal share a code pointer, so Off with
	// the second closure still drops the earliest registration.
	b.On("relocate", first)
	b.On("relocate", second)
	b.Off("relocate", second)

	b.Emit("relocate", nil)
	if len(hits) != 1 || hits[0] != "second" {
		t.Fatalf("hits = %v, want [second]", hits)
	}
}

func TestOffUnknownIsNoop(t *testing.T) {
	b := New()
	b.Off("nope", func(any) {})

	b.On("ready", func(any) {})
	b.Off("ready", func(any) {})
}

func TestOffDoesNotLeakAcrossEvents(t *testing.T) {
	b := New()
	cb := func(any) {}
	b.On("ready", cb)
	b.On("relocate", cb)

	b.Off("ready", cb)

	if n := b.ListenerCount("ready"); n != 0 {
		t.Errorf("ready listeners: got %d, want 0", n)
	}
	if n := b.ListenerCount("relocate"); n != 1 {
		t.Errorf("relocate listeners: got %d, want 1", n)
	}
}

func TestPanicIsolation(t *testing.T) {
	b := New(WithLogger(slog.Default()))
	ran := false
	b.On("ready", func(any) { panic("listener blew up") })
	b.On("ready", func(any) { ran = true })

	// Must not propagate the panic and must still run the second listener.
	b.Emit("ready", nil)

	if !ran {
		t.Fatal("listener after panicking one did not run")
	}
}

func TestReset(t *testing.T) {
	b := New()
	b.On("ready", func(any) {})
	b.On("error", func(any) {})
	b.Reset()
	if n := b.ListenerCount("ready") + b.ListenerCount("error"); n != 0 {
		t.Fatalf("listeners after reset: got %d, want 0", n)
	}
}
