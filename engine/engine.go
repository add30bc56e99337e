// CLAUDE:SUMMARY Capability-typed contract for external rendering engines, with two acceptable event-surface shapes.
// Package engine defines the duck-typed boundary between the reader
// orchestrator and whatever actually paints pages. An engine is a black box
// that loads a document, pages through it, and reports where it is; the
// orchestrator never assumes anything about its internals beyond this
// contract.
//
// Engines announce progress through one of two native event surfaces:
// Notifier (On/Off with a bare payload) or EventTarget
// (AddEventListener/RemoveEventListener with the payload nested under
// Event.Detail). The Bridge in this package absorbs the difference so
// nothing above it needs to know which shape the engine speaks.
package engine

import "context"

// Native event names emitted by engines. The orchestrator translates these
// into its canonical "ready"/"relocate"/"error" bus events.
const (
	EventBookReady = "bookready"
	EventRelocate  = "relocate"
	EventError     = "error"
)

// Location describes the engine's current position in the document.
type Location struct {
	CurrentPage int     `json:"current_page"`
	TotalPages  int     `json:"total_pages"`
	Progress    float64 `json:"progress"` // 0..1
	Locator     string  `json:"locator"`  // opaque engine-specific position
}

// Engine is the rendering capability the orchestrator consumes. Load blocks
// until the engine has accepted the document; a nil return does not
// guarantee the first page has painted — some engines return before internal
// paint completes and announce readiness only via EventBookReady, some do
// the opposite. The load protocol in the reader package tolerates both.
type Engine interface {
	Load(ctx context.Context, url string) error
	GoTo(ctx context.Context, locator string) error
	Next(ctx context.Context) error
	Prev(ctx context.Context) error
	Location(ctx context.Context) (Location, error)
	SetSetting(key string, value any) error
	Destroy() error
}

// Notifier is the first acceptable event surface: bare payloads, removal by
// handler identity.
type Notifier interface {
	On(event string, fn func(data any))
	Off(event string, fn func(data any))
}

// Event is the envelope used by EventTarget-style engines. The payload sits
// under Detail.
type Event struct {
	Type   string
	Detail any
}

// EventTarget is the second acceptable event surface.
type EventTarget interface {
	AddEventListener(event string, fn func(Event))
	RemoveEventListener(event string, fn func(Event))
}

// Match is a search hit inside the loaded document.
type Match struct {
	Locator string `json:"locator"`
	Excerpt string `json:"excerpt"`
	Page    int    `json:"page,omitempty"`
}

// Searcher is an optional engine capability. Probed with a type assertion;
// engines without it simply return no results at the orchestrator level.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Match, error)
}
