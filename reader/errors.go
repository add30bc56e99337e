package reader

import (
	"fmt"
	"time"
)

// ErrLoadTimeout is returned when no completion signal — native ready event,
// load return, or error — arrives within the configured deadline.
type ErrLoadTimeout struct {
	URL     string
	Timeout time.Duration
}

func (e *ErrLoadTimeout) Error() string {
	return fmt.Sprintf("reader: load %s: no completion signal within %s", e.URL, e.Timeout)
}

// ErrEngine wraps an engine-native failure: an error event, a Load error, or
// a panic inside Load.
type ErrEngine struct {
	Cause error
}

func (e *ErrEngine) Error() string {
	return fmt.Sprintf("reader: engine: %v", e.Cause)
}

func (e *ErrEngine) Unwrap() error { return e.Cause }

// ErrNoEngineFactory is returned when a document routes to the rich pipeline
// but the reader was constructed without an engine factory.
type ErrNoEngineFactory struct {
	URL string
}

func (e *ErrNoEngineFactory) Error() string {
	return fmt.Sprintf("reader: %s routes to the rich pipeline but no engine factory is configured", e.URL)
}

// ErrNoSession is returned from operations that need a live session when
// none is initialized.
type ErrNoSession struct{}

func (e *ErrNoSession) Error() string {
	return "reader: no active session"
}

// ErrSuperseded is returned from an Initialize whose session was torn down
// by a later Initialize or Destroy before its load settled. The later call
// owns the active session; this one has already been cleaned up.
type ErrSuperseded struct{}

func (e *ErrSuperseded) Error() string {
	return "reader: session superseded during load"
}
