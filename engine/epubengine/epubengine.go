// Package epubengine renders EPUB files without an external browser. Spine
// documents are flattened to words, paginated by a words-per-page budget
// derived from the font size, and painted into the surface as plain text.
// It speaks the Notifier event surface and emits bookready after Load,
// relocate after every move.
package epubengine

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	"github.com/hazyhaar/liseuse/engine"
	"github.com/hazyhaar/liseuse/surface"
)

// Chapter is a spine section mapped to its word range.
type Chapter struct {
	Title     string `json:"title"`
	WordStart int    `json:"word_start"`
	WordEnd   int    `json:"word_end"`
}

type handler struct {
	id uintptr
	fn func(data any)
}

// Engine implements engine.Engine and engine.Notifier over a local EPUB file.
type Engine struct {
	surf surface.Surface

	mu        sync.Mutex
	listeners map[string][]handler
	title     string
	words     []string
	chapters  []Chapter
	page      int
	total     int
	fontSize  int
	destroyed bool
}

// New creates an Engine painting into surf.
func New(surf surface.Surface) *Engine {
	return &Engine{
		surf:      surf,
		listeners: make(map[string][]handler),
		fontSize:  18,
	}
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

// Load implements engine.Engine. url is a local path or file:// URL.
func (e *Engine) Load(ctx context.Context, url string) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return fmt.Errorf("epubengine: engine destroyed")
	}
	e.mu.Unlock()

	path := strings.TrimPrefix(url, "file://")

	rc, err := epub.OpenReader(path)
	if err != nil {
		return fmt.Errorf("epubengine: open %s: %w", path, err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return fmt.Errorf("epubengine: %s has no rootfiles", path)
	}
	book := rc.Rootfiles[0]

	var words []string
	var chapters []Chapter
	for i, ref := range book.Spine.Itemrefs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ref.Item == nil {
			continue
		}
		r, err := ref.Item.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}
		sectionWords := strings.Fields(flattenHTML(string(data)))
		if len(sectionWords) == 0 {
			continue
		}
		chapters = append(chapters, Chapter{
			Title:     fmt.Sprintf("Section %d", i+1),
			WordStart: len(words),
			WordEnd:   len(words) + len(sectionWords) - 1,
		})
		words = append(words, sectionWords...)
	}
	if len(words) == 0 {
		return fmt.Errorf("epubengine: %s has no text content", path)
	}

	e.mu.Lock()
	e.title = book.Title
	e.words = words
	e.chapters = chapters
	e.page = 0
	e.repaginateLocked()
	e.mu.Unlock()

	e.render()
	e.emit(engine.EventBookReady, e.title)
	e.emit(engine.EventRelocate, e.locationNow())
	return nil
}

// wordsPerPage derives the page budget from the font size: bigger type,
// fewer words on screen.
func (e *Engine) wordsPerPageLocked() int {
	wpp := 5400 / e.fontSize
	if wpp < 20 {
		wpp = 20
	}
	return wpp
}

func (e *Engine) repaginateLocked() {
	wpp := e.wordsPerPageLocked()
	e.total = (len(e.words) + wpp - 1) / wpp
	if e.total == 0 {
		e.total = 1
	}
	if e.page >= e.total {
		e.page = e.total - 1
	}
}

func (e *Engine) render() {
	e.mu.Lock()
	wpp := e.wordsPerPageLocked()
	start := e.page * wpp
	if start > len(e.words) {
		start = len(e.words)
	}
	end := start + wpp
	if end > len(e.words) {
		end = len(e.words)
	}
	text := strings.Join(e.words[start:end], " ")
	surf := e.surf
	e.mu.Unlock()
	surf.SetContent(text)
}

func (e *Engine) locationNow() engine.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locationLocked()
}

func (e *Engine) locationLocked() engine.Location {
	loc := engine.Location{
		CurrentPage: e.page + 1,
		TotalPages:  e.total,
		Locator:     "w:" + strconv.Itoa(e.page*e.wordsPerPageLocked()),
	}
	if e.total > 0 {
		loc.Progress = float64(e.page+1) / float64(e.total)
	}
	return loc
}

// GoTo implements engine.Engine. Accepted locators: "w:N" word index,
// "ch:N" chapter index, or a 0..1 fraction.
func (e *Engine) GoTo(_ context.Context, locator string) error {
	e.mu.Lock()
	wpp := e.wordsPerPageLocked()
	switch {
	case strings.HasPrefix(locator, "w:"):
		n, err := strconv.Atoi(strings.TrimPrefix(locator, "w:"))
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("epubengine: bad locator %q: %w", locator, err)
		}
		e.page = clamp(n/wpp, 0, e.total-1)
	case strings.HasPrefix(locator, "ch:"):
		n, err := strconv.Atoi(strings.TrimPrefix(locator, "ch:"))
		if err != nil || n < 0 || n >= len(e.chapters) {
			e.mu.Unlock()
			return fmt.Errorf("epubengine: no chapter for locator %q", locator)
		}
		e.page = clamp(e.chapters[n].WordStart/wpp, 0, e.total-1)
	default:
		f, err := strconv.ParseFloat(locator, 64)
		if err != nil || f < 0 || f > 1 {
			e.mu.Unlock()
			return fmt.Errorf("epubengine: bad locator %q", locator)
		}
		e.page = clamp(int(f*float64(e.total)), 0, e.total-1)
	}
	e.mu.Unlock()

	e.render()
	e.emit(engine.EventRelocate, e.locationNow())
	return nil
}

// Next implements engine.Engine.
func (e *Engine) Next(context.Context) error {
	e.mu.Lock()
	if e.page < e.total-1 {
		e.page++
	}
	e.mu.Unlock()
	e.render()
	e.emit(engine.EventRelocate, e.locationNow())
	return nil
}

// Prev implements engine.Engine.
func (e *Engine) Prev(context.Context) error {
	e.mu.Lock()
	if e.page > 0 {
		e.page--
	}
	e.mu.Unlock()
	e.render()
	e.emit(engine.EventRelocate, e.locationNow())
	return nil
}

// Location implements engine.Engine.
func (e *Engine) Location(context.Context) (engine.Location, error) {
	return e.locationNow(), nil
}

// SetSetting implements engine.Engine. fontSize repaginates; other keys are
// accepted and ignored since plain-text painting has nothing to restyle.
func (e *Engine) SetSetting(key string, value any) error {
	if key != "fontSize" {
		return nil
	}
	px, ok := value.(int)
	if !ok || px <= 0 {
		return fmt.Errorf("epubengine: fontSize wants a positive int, got %v", value)
	}
	e.mu.Lock()
	e.fontSize = px
	e.repaginateLocked()
	e.mu.Unlock()
	e.render()
	return nil
}

// Search implements engine.Searcher. Case-insensitive word-run scan.
func (e *Engine) Search(ctx context.Context, query string) ([]engine.Match, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	words := e.words
	wpp := e.wordsPerPageLocked()
	e.mu.Unlock()

	const maxMatches = 100
	var matches []engine.Match
	for i := 0; i+len(terms) <= len(words); i++ {
		if err := ctx.Err(); err != nil {
			return matches, err
		}
		if !runMatches(words, i, terms) {
			continue
		}
		matches = append(matches, engine.Match{
			Locator: "w:" + strconv.Itoa(i),
			Excerpt: excerpt(words, i, len(terms)),
			Page:    i/wpp + 1,
		})
		if len(matches) >= maxMatches {
			break
		}
	}
	return matches, nil
}

// Chapters returns the table of contents derived from the spine.
func (e *Engine) Chapters() []Chapter {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Chapter, len(e.chapters))
	copy(out, e.chapters)
	return out
}

// Title returns the book title from the package metadata.
func (e *Engine) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title
}

// Destroy implements engine.Engine.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	e.destroyed = true
	e.listeners = make(map[string][]handler)
	e.words = nil
	e.chapters = nil
	e.page = 0
	e.total = 1
	e.mu.Unlock()
	return nil
}

func runMatches(words []string, at int, terms []string) bool {
	for j, term := range terms {
		if strings.ToLower(strings.Trim(words[at+j], ".,;:!?\"'()")) != term {
			return false
		}
	}
	return true
}

func excerpt(words []string, at, n int) string {
	start := at - 8
	if start < 0 {
		start = 0
	}
	end := at + n + 8
	if end > len(words) {
		end = len(words)
	}
	return strings.Join(words[start:end], " ")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// flattenHTML reduces a spine document to its visible text.
func flattenHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return ""
	}

	var out strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out.WriteString(t)
				out.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out.String()
}
