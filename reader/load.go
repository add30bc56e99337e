package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/liseuse/engine"
)

// runLoadProtocol drives an engine's Load to a single verdict. Three signals
// compete: the native ready event, the native error event, and the Load call
// returning. A nil Load return does not count as ready on its own — it arms a
// grace timer so a trailing ready event can still win; if nothing arrives
// before the grace elapses the nil return is trusted. The first verdict
// sticks, everything after it is ignored, and the temporary event bindings
// are removed on every exit path.
func runLoadProtocol(ctx context.Context, br *engine.Bridge, url string, timeout, grace time.Duration, logger *slog.Logger) error {
	readyCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	loadCh := make(chan error, 1)

	unbindReady := br.Bind(engine.EventBookReady, func(any) {
		select {
		case readyCh <- struct{}{}:
		default:
		}
	})
	unbindErr := br.Bind(engine.EventError, func(data any) {
		select {
		case errCh <- &ErrEngine{Cause: fmt.Errorf("engine error during load: %v", data)}:
		default:
		}
	})
	defer unbindReady()
	defer unbindErr()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				loadCh <- &ErrEngine{Cause: fmt.Errorf("engine panicked during load: %v", r)}
			}
		}()
		loadCh <- br.Engine().Load(ctx, url)
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// graceC stays nil until Load returns cleanly, so its case never fires
	// before then.
	var graceTimer *time.Timer
	var graceC <-chan time.Time
	defer func() {
		if graceTimer != nil {
			graceTimer.Stop()
		}
	}()

	for {
		select {
		case <-readyCh:
			return nil

		case err := <-errCh:
			return err

		case err := <-loadCh:
			loadCh = nil
			if err != nil {
				var ee *ErrEngine
				if errors.As(err, &ee) {
					return err
				}
				return &ErrEngine{Cause: err}
			}
			logger.Debug("engine load returned, waiting out grace period", "url", url, "grace", grace)
			graceTimer = time.NewTimer(grace)
			graceC = graceTimer.C

		case <-graceC:
			logger.Debug("no ready event within grace period, trusting load return", "url", url)
			return nil

		case <-deadline.C:
			return &ErrLoadTimeout{URL: url, Timeout: timeout}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
