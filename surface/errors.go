package surface

import "fmt"

// ErrSurfaceNotFound is returned by the Guard when the supplied surface is
// detached and no attached surface could be re-resolved.
type ErrSurfaceNotFound struct {
	ID string
}

func (e *ErrSurfaceNotFound) Error() string {
	return fmt.Sprintf("surface: no attached surface resolvable for %q", e.ID)
}

// ErrSurfaceDetached is returned when a surface that passed the guard was
// removed from the display tree while an asynchronous load was in flight.
type ErrSurfaceDetached struct {
	ID string
}

func (e *ErrSurfaceDetached) Error() string {
	return fmt.Sprintf("surface: %q detached during load", e.ID)
}
