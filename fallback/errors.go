package fallback

import "fmt"

// ErrFetch is returned when the document bytes could not be retrieved: a
// transport failure or a non-success HTTP status.
type ErrFetch struct {
	URL    string
	Status int
	Cause  error
}

func (e *ErrFetch) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fallback: fetch %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fallback: fetch %s: status %d", e.URL, e.Status)
}

func (e *ErrFetch) Unwrap() error { return e.Cause }
