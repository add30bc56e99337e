package reader

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/liseuse/bus"
	"github.com/hazyhaar/liseuse/engine"
	"github.com/hazyhaar/liseuse/fallback"
)

// pipeline is the session-facing contract both rendering paths satisfy.
// The orchestrator drives whichever one Initialize picked without caring
// which it got.
type pipeline interface {
	goTo(ctx context.Context, target string) error
	next(ctx context.Context) error
	prev(ctx context.Context) error
	location(ctx context.Context) (engine.Location, error)
	search(ctx context.Context, query string) ([]engine.Match, error)
	applySetting(key string, value any) error
	destroy()
}

// richPipeline wraps a bridged engine. Relocation and error events are
// re-published on the session bus for the lifetime of the pipeline.
type richPipeline struct {
	bridge *engine.Bridge
	logger *slog.Logger
}

func newRichPipeline(br *engine.Bridge, b *bus.Bus, logger *slog.Logger) *richPipeline {
	p := &richPipeline{bridge: br, logger: logger}
	br.Bind(engine.EventRelocate, func(data any) {
		b.Emit(engine.EventRelocate, data)
	})
	br.Bind(engine.EventError, func(data any) {
		logger.Warn("engine reported error after load", "detail", data)
		b.Emit(engine.EventError, data)
	})
	return p
}

func (p *richPipeline) goTo(ctx context.Context, target string) error {
	return p.bridge.Engine().GoTo(ctx, target)
}

func (p *richPipeline) next(ctx context.Context) error {
	return p.bridge.Engine().Next(ctx)
}

func (p *richPipeline) prev(ctx context.Context) error {
	return p.bridge.Engine().Prev(ctx)
}

func (p *richPipeline) location(ctx context.Context) (engine.Location, error) {
	return p.bridge.Engine().Location(ctx)
}

func (p *richPipeline) search(ctx context.Context, query string) ([]engine.Match, error) {
	s, ok := p.bridge.Searcher()
	if !ok {
		return nil, nil
	}
	return s.Search(ctx, query)
}

func (p *richPipeline) applySetting(key string, value any) error {
	return p.bridge.Engine().SetSetting(key, value)
}

func (p *richPipeline) destroy() {
	p.bridge.Unwire()
	if err := p.bridge.Engine().Destroy(); err != nil {
		p.logger.Warn("engine destroy failed", "error", err)
	}
}

// fallbackPipeline wraps a plain-text session. The session has no event
// surface of its own, so relocations are emitted here after each move.
type fallbackPipeline struct {
	sess *fallback.Session
	emit func(event string, data any)
}

func newFallbackPipeline(sess *fallback.Session, b *bus.Bus) *fallbackPipeline {
	return &fallbackPipeline{
		sess: sess,
		emit: func(event string, data any) { b.Emit(event, data) },
	}
}

func (p *fallbackPipeline) relocate() {
	p.emit(engine.EventRelocate, p.sess.Location())
}

func (p *fallbackPipeline) goTo(_ context.Context, target string) error {
	p.sess.GoTo(target)
	p.relocate()
	return nil
}

func (p *fallbackPipeline) next(_ context.Context) error {
	p.sess.Next()
	p.relocate()
	return nil
}

func (p *fallbackPipeline) prev(_ context.Context) error {
	p.sess.Prev()
	p.relocate()
	return nil
}

func (p *fallbackPipeline) location(_ context.Context) (engine.Location, error) {
	return p.sess.Location(), nil
}

func (p *fallbackPipeline) search(_ context.Context, query string) ([]engine.Match, error) {
	return p.sess.Search(query), nil
}

func (p *fallbackPipeline) applySetting(key string, value any) error {
	return p.sess.ApplySetting(key, value)
}

func (p *fallbackPipeline) destroy() {
	p.sess.Destroy()
}
