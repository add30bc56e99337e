// CLAUDE:SUMMARY Non-engine rendering path: fetch, extract, inject, frame-yield, scroll-simulated paging.
// Package fallback renders plain-text and structured-markup documents
// without a rendering engine. It fetches the raw bytes, extracts a readable
// body, injects a minimally styled scrollable block into the guarded
// surface, and simulates pagination as viewport scrolling. Since no engine
// participates, readiness is synthesized after a short frame yield so that
// size queries issued by listeners observe real layout.
package fallback

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/liseuse/engine"
	"github.com/hazyhaar/liseuse/route"
	"github.com/hazyhaar/liseuse/surface"
)

// Pipeline fetches and renders fallback-routed documents. One Pipeline
// serves many sessions.
type Pipeline struct {
	client     *http.Client
	ua         string
	maxBody    int64
	frameDelay time.Duration
	ext        *extractor
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(p *Pipeline) { p.client = c }
}

// WithUserAgent sets the User-Agent header for document fetches.
func WithUserAgent(ua string) Option {
	return func(p *Pipeline) { p.ua = ua }
}

// WithFrameDelay sets the post-injection yield before Open returns. Default:
// 16ms — one frame at 60Hz.
func WithFrameDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.frameDelay = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline with sensible defaults.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		client:     &http.Client{Timeout: 30 * time.Second},
		ua:         "Mozilla/5.0 (compatible; Liseuse/1.0)",
		maxBody:    20 << 20,
		frameDelay: 16 * time.Millisecond,
		ext:        newExtractor(),
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Session is one fallback-rendered document bound to its surface. Paging is
// simulated: Next/Prev scroll by one viewport height, and page/total
// semantics are best-effort.
type Session struct {
	surf    surface.Surface
	title   string
	text    string
	format  route.Format
	display string
}

// Open fetches, extracts and injects the document, then yields for one
// frame so layout settles. The returned Session is ready for paging; the
// caller is responsible for announcing readiness on its bus.
func (p *Pipeline) Open(ctx context.Context, url string, format route.Format, surf surface.Surface) (*Session, error) {
	raw, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	title, text := p.ext.extract(raw, format)
	display := buildBlock(title, text, format)

	// The surface may hold ghost content from a prior pipeline instance.
	surf.Clear()
	surf.SetContent(display)

	p.logger.Debug("fallback: content injected",
		"url", url, "format", format, "title", title, "bytes", len(display))

	// One frame so listeners that query sizes on ready observe layout.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.frameDelay):
	}

	return &Session{
		surf:    surf,
		title:   title,
		text:    text,
		format:  format,
		display: display,
	}, nil
}

func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ErrFetch{URL: url, Cause: err}
	}
	req.Header.Set("User-Agent", p.ua)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ErrFetch{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ErrFetch{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody))
	if err != nil {
		return nil, &ErrFetch{URL: url, Cause: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// Title returns the recovered document title, if any.
func (s *Session) Title() string { return s.title }

// Text returns the extracted text used for search and display.
func (s *Session) Text() string { return s.text }

// Next scrolls forward one viewport height.
func (s *Session) Next() {
	_, h := s.surf.Size()
	s.surf.SetScrollTop(s.surf.ScrollTop() + h)
}

// Prev scrolls back one viewport height.
func (s *Session) Prev() {
	_, h := s.surf.Size()
	s.surf.SetScrollTop(s.surf.ScrollTop() - h)
}

// GoTo interprets locator as a scroll fraction "0.42" or an absolute pixel
// offset "px:840". Unparseable locators scroll to the top.
func (s *Session) GoTo(locator string) {
	switch {
	case strings.HasPrefix(locator, "px:"):
		var px int
		fmt.Sscanf(locator, "px:%d", &px)
		s.surf.SetScrollTop(px)
	default:
		var frac float64
		if _, err := fmt.Sscanf(locator, "%f", &frac); err != nil {
			frac = 0
		}
		scrollable := s.surf.ScrollHeight() - viewportHeight(s.surf)
		if scrollable < 0 {
			scrollable = 0
		}
		s.surf.SetScrollTop(int(frac * float64(scrollable)))
	}
}

// Location degrades to scroll-derived values: screens-of-text as pages,
// scroll fraction as progress.
func (s *Session) Location() engine.Location {
	h := viewportHeight(s.surf)
	if h <= 0 {
		return engine.Location{TotalPages: 1, CurrentPage: 1, Locator: "0.00"}
	}

	total := (s.surf.ScrollHeight() + h - 1) / h
	if total < 1 {
		total = 1
	}
	current := s.surf.ScrollTop()/h + 1
	if current > total {
		current = total
	}

	progress := 0.0
	if scrollable := s.surf.ScrollHeight() - h; scrollable > 0 {
		progress = float64(s.surf.ScrollTop()) / float64(scrollable)
	} else if total == 1 {
		progress = 1
	}

	return engine.Location{
		CurrentPage: current,
		TotalPages:  total,
		Progress:    progress,
		Locator:     fmt.Sprintf("%.2f", progress),
	}
}

// ApplySetting maps presentation settings onto the injected block's styles.
// Unknown keys are ignored — the fallback renderer has no engine to forward
// them to.
func (s *Session) ApplySetting(key string, value any) error {
	switch key {
	case "fontSize":
		if v, ok := value.(int); ok {
			s.surf.SetStyle("font-size", fmt.Sprintf("%dpx", v))
		}
	case "fontFamily":
		if v, ok := value.(string); ok {
			s.surf.SetStyle("font-family", v)
		}
	case "lineHeight":
		if v, ok := value.(float64); ok {
			s.surf.SetStyle("line-height", fmt.Sprintf("%.2f", v))
		}
	case "margin":
		if v, ok := value.(int); ok {
			s.surf.SetStyle("padding", fmt.Sprintf("%dpx", v))
		}
	case "theme":
		if v, ok := value.(string); ok && v == "dark" {
			s.surf.SetStyle("background", "#1a1a1a")
			s.surf.SetStyle("color", "#e8e8e8")
		} else {
			s.surf.SetStyle("background", "#ffffff")
			s.surf.SetStyle("color", "#1a1a1a")
		}
	}
	return nil
}

// Search scans the extracted text for query, case-insensitively.
func (s *Session) Search(query string) []engine.Match {
	if query == "" || s.text == "" {
		return nil
	}
	lower := strings.ToLower(s.text)
	q := strings.ToLower(query)

	var matches []engine.Match
	for off := 0; ; {
		i := strings.Index(lower[off:], q)
		if i < 0 {
			break
		}
		abs := off + i
		matches = append(matches, engine.Match{
			Locator: fmt.Sprintf("%.2f", float64(abs)/float64(len(s.text))),
			Excerpt: excerpt(s.text, abs, len(q)),
		})
		off = abs + len(q)
		if len(matches) >= 100 {
			break
		}
	}
	return matches
}

// Destroy clears the injected content. Idempotent.
func (s *Session) Destroy() {
	s.surf.Clear()
}

func viewportHeight(s surface.Surface) int {
	_, h := s.Size()
	return h
}

func excerpt(text string, off, n int) string {
	const around = 40
	start := off - around
	if start < 0 {
		start = 0
	}
	end := off + n + around
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

// buildBlock wraps display text in the minimally styled scrollable block
// injected into the surface. Markdown arrives as already-rendered HTML and
// is injected as-is; plain text (and the recovered title) is HTML-escaped
// and rendered under pre-wrap whitespace styling.
func buildBlock(title, text string, format route.Format) string {
	var sb strings.Builder
	sb.WriteString(`<div class="liseuse-fallback" style="height:100%;overflow-y:auto;` +
		`padding:40px;box-sizing:border-box;line-height:1.6;">`)
	if title != "" {
		sb.WriteString("<h1>")
		sb.WriteString(html.EscapeString(title))
		sb.WriteString("</h1>")
	}
	switch format {
	case route.FormatMarkdown:
		sb.WriteString(text)
	default:
		sb.WriteString(`<div style="white-space:pre-wrap;">`)
		sb.WriteString(html.EscapeString(text))
		sb.WriteString("</div>")
	}
	sb.WriteString("</div>")
	return sb.String()
}
