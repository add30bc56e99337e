// Package rodengine drives a browser-based rendering engine through Rod.
// The browser loads the viewer application, the viewer opens the document,
// and its native events are pumped back through an exposed page binding so
// the engine can speak the Notifier surface.
package rodengine

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/hazyhaar/liseuse/engine"
)

// Config configures the engine.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// ViewerURL is the address of the viewer application the browser loads
	// before opening documents. The page must expose window.liseuse.
	ViewerURL string

	// Headful disables headless mode for debugging.
	Headful bool

	// NavTimeout bounds viewer navigation. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type handler struct {
	id uintptr
	fn func(data any)
}

// Engine implements engine.Engine and engine.Notifier over a Rod page.
type Engine struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher

	mu        sync.Mutex
	page      *rod.Page
	stopEmit  func() error
	listeners map[string][]handler
	closed    bool
}

// New launches (or connects to) Chrome and returns an Engine. Call Destroy
// to release the browser.
func New(cfg Config) (*Engine, error) {
	cfg.defaults()
	e := &Engine{cfg: cfg, listeners: make(map[string][]handler)}

	var wsURL string
	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		cfg.Logger.Info("rodengine: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(!cfg.Headful)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodengine: launch: %w", err)
		}
		wsURL = u
		e.lnch = l
		cfg.Logger.Info("rodengine: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if e.lnch != nil {
			e.lnch.Cleanup()
		}
		return nil, fmt.Errorf("rodengine: connect: %w", err)
	}
	e.browser = b
	return e, nil
}

// On implements engine.Notifier.
func (e *Engine) On(event string, fn func(data any)) {
	e.mu.Lock()
	e.listeners[event] = append(e.listeners[event], handler{id: reflect.ValueOf(fn).Pointer(), fn: fn})
	e.mu.Unlock()
}

// Off implements engine.Notifier.
func (e *Engine) Off(event string, fn func(data any)) {
	id := reflect.ValueOf(fn).Pointer()
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.listeners[event]
	for i, h := range list {
		if h.id == id {
			e.listeners[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (e *Engine) emit(event string, data any) {
	e.mu.Lock()
	list := make([]handler, len(e.listeners[event]))
	copy(list, e.listeners[event])
	e.mu.Unlock()
	for _, h := range list {
		h.fn(data)
	}
}

// Load implements engine.Engine: opens a stealth tab on the viewer, wires
// the event binding, and asks the viewer to open the document. The viewer
// announces paint completion via its own bookready event; Load returning nil
// only means the open call was accepted.
func (e *Engine) Load(ctx context.Context, url string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("rodengine: engine destroyed")
	}
	b := e.browser
	e.mu.Unlock()

	page, err := stealth.Page(b)
	if err != nil {
		return fmt.Errorf("rodengine: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, e.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(e.cfg.ViewerURL); err != nil {
		page.Close()
		return fmt.Errorf("rodengine: navigate viewer %s: %w", e.cfg.ViewerURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		e.cfg.Logger.Warn("rodengine: viewer load wait", "error", err)
	}

	// Viewer events arrive as {type, detail} through this binding.
	stop, err := page.Expose("liseuseEmit", func(j gson.JSON) (any, error) {
		e.emit(j.Get("type").Str(), j.Get("detail").Val())
		return nil, nil
	})
	if err != nil {
		page.Close()
		return fmt.Errorf("rodengine: expose binding: %w", err)
	}

	if _, err := page.Context(navCtx).Eval(`(url) => window.liseuse.open(url)`, url); err != nil {
		stop()
		page.Close()
		return fmt.Errorf("rodengine: open %s: %w", url, err)
	}

	e.mu.Lock()
	old, oldStop := e.page, e.stopEmit
	e.page, e.stopEmit = page, stop
	e.mu.Unlock()
	if old != nil {
		if oldStop != nil {
			oldStop()
		}
		old.Close()
	}
	return nil
}

func (e *Engine) activePage() (*rod.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.page == nil {
		return nil, fmt.Errorf("rodengine: no open document")
	}
	return e.page, nil
}

// GoTo implements engine.Engine.
func (e *Engine) GoTo(ctx context.Context, locator string) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Eval(`(loc) => window.liseuse.goTo(loc)`, locator)
	return err
}

// Next implements engine.Engine.
func (e *Engine) Next(ctx context.Context) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Eval(`() => window.liseuse.next()`)
	return err
}

// Prev implements engine.Engine.
func (e *Engine) Prev(ctx context.Context) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Eval(`() => window.liseuse.prev()`)
	return err
}

// Location implements engine.Engine.
func (e *Engine) Location(ctx context.Context) (engine.Location, error) {
	page, err := e.activePage()
	if err != nil {
		return engine.Location{}, err
	}
	res, err := page.Context(ctx).Eval(`() => window.liseuse.location()`)
	if err != nil {
		return engine.Location{}, fmt.Errorf("rodengine: location: %w", err)
	}
	v := res.Value
	return engine.Location{
		CurrentPage: v.Get("currentPage").Int(),
		TotalPages:  v.Get("totalPages").Int(),
		Progress:    v.Get("progress").Num(),
		Locator:     v.Get("locator").Str(),
	}, nil
}

// SetSetting implements engine.Engine.
func (e *Engine) SetSetting(key string, value any) error {
	page, err := e.activePage()
	if err != nil {
		return err
	}
	_, err = page.Eval(`(k, v) => window.liseuse.setSetting(k, v)`, key, value)
	return err
}

// Search implements engine.Searcher.
func (e *Engine) Search(ctx context.Context, query string) ([]engine.Match, error) {
	page, err := e.activePage()
	if err != nil {
		return nil, err
	}
	res, err := page.Context(ctx).Eval(`(q) => window.liseuse.search(q)`, query)
	if err != nil {
		return nil, fmt.Errorf("rodengine: search: %w", err)
	}

	var matches []engine.Match
	for _, m := range res.Value.Arr() {
		matches = append(matches, engine.Match{
			Locator: m.Get("locator").Str(),
			Excerpt: m.Get("excerpt").Str(),
			Page:    m.Get("page").Int(),
		})
	}
	return matches, nil
}

// Destroy implements engine.Engine: closes the tab and, for locally
// launched Chrome, the browser itself.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	page, stop := e.page, e.stopEmit
	e.page, e.stopEmit = nil, nil
	e.listeners = make(map[string][]handler)
	browser := e.browser
	lnch := e.lnch
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	if page != nil {
		page.Close()
	}
	if browser != nil {
		browser.Close()
	}
	if lnch != nil {
		lnch.Cleanup()
	}
	return nil
}
