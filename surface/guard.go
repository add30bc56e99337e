package surface

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Guard produces a surface that is attached, visible, sized and positioned
// before any pipeline touches it. The orchestrator may run before the host
// layout has stabilized (right after a view transition); handing an unsized
// surface to a rendering engine makes it mount into a collapsed container
// and silently fail to paint, so the guard polls briefly for dimensions.
type Guard struct {
	resolver    Resolver
	fallbackID  string
	maxAttempts int
	baseDelay   time.Duration
	minHeight   int
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithResolver sets the resolver used to recover a detached reference, and
// the fallback surface ID to resolve.
func WithResolver(r Resolver, fallbackID string) GuardOption {
	return func(g *Guard) {
		g.resolver = r
		g.fallbackID = fallbackID
	}
}

// WithMaxAttempts bounds the dimension poll. Default: 30.
func WithMaxAttempts(n int) GuardOption {
	return func(g *Guard) { g.maxAttempts = n }
}

// WithBaseDelay sets the first poll delay; the delay escalates as attempts
// accumulate. Default: 100ms.
func WithBaseDelay(d time.Duration) GuardOption {
	return func(g *Guard) { g.baseDelay = d }
}

// WithMinHeight sets the height floor applied when the surface has no
// explicit height. Default: 400.
func WithMinHeight(px int) GuardOption {
	return func(g *Guard) { g.minHeight = px }
}

// WithGuardLogger sets the logger.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// withSleep replaces the waiting primitive (for tests).
func withSleep(fn func(ctx context.Context, d time.Duration) error) GuardOption {
	return func(g *Guard) { g.sleep = fn }
}

// NewGuard creates a Guard with production defaults.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{
		maxAttempts: 30,
		baseDelay:   100 * time.Millisecond,
		minHeight:   400,
		logger:      slog.Default(),
		sleep:       sleepCtx,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Ensure validates and repairs s. It returns the surface to use (possibly a
// re-resolved one) or *ErrSurfaceNotFound when nothing attached can be
// found. Dimension-poll exhaustion is not fatal: downstream pipelines must
// tolerate a zero-sized surface, but the condition is logged.
func (g *Guard) Ensure(ctx context.Context, s Surface) (Surface, error) {
	s, err := g.ensureAttached(s)
	if err != nil {
		return nil, err
	}

	g.repairStyle(s)

	if err := g.awaitDimensions(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (g *Guard) ensureAttached(s Surface) (Surface, error) {
	if s != nil && s.Attached() {
		return s, nil
	}

	id := g.fallbackID
	if s != nil {
		id = s.ID()
		g.logger.Warn("surface: supplied reference detached, re-resolving", "id", id)
	}
	if g.resolver != nil {
		if rs, ok := g.resolver.Resolve(g.fallbackID); ok && rs.Attached() {
			return rs, nil
		}
	}
	return nil, &ErrSurfaceNotFound{ID: id}
}

// repairStyle forces the surface into a paintable state: visible, sized to
// its container with a height floor, and positioned so absolutely-placed
// engine internals anchor to it.
func (g *Guard) repairStyle(s Surface) {
	if s.Style("display") == "none" {
		s.SetStyle("display", "block")
	}
	if s.Style("visibility") == "hidden" {
		s.SetStyle("visibility", "visible")
	}

	if w, h := s.Size(); w == 0 || h == 0 {
		s.SetStyle("width", "100%")
		s.SetStyle("height", "100%")
		s.SetStyle("min-height", pxValue(g.minHeight))
	}

	switch s.Style("position") {
	case "", "static":
		s.SetStyle("position", "relative")
	}
}

// awaitDimensions polls until the surface reports non-zero size or the
// attempt bound is exhausted. The delay escalates every ten attempts.
func (g *Guard) awaitDimensions(ctx context.Context, s Surface) error {
	if w, h := s.Size(); w > 0 && h > 0 {
		return nil
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		wait := g.baseDelay * time.Duration(1+attempt/10)
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
		if w, h := s.Size(); w > 0 && h > 0 {
			g.logger.Debug("surface: dimensions established",
				"id", s.ID(), "attempts", attempt, "width", w, "height", h)
			return nil
		}
	}

	g.logger.Warn("surface: dimensions still zero after poll, continuing anyway",
		"id", s.ID(), "attempts", g.maxAttempts)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func pxValue(px int) string {
	return strconv.Itoa(px) + "px"
}
