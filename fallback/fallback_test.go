package fallback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/liseuse/route"
	"github.com/hazyhaar/liseuse/surface"
)

func testServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testSurface() *surface.Node {
	n := surface.NewNode("viewer")
	n.SetSize(800, 600)
	return n
}

func fastPipeline(opts ...Option) *Pipeline {
	return New(append([]Option{WithFrameDelay(time.Millisecond)}, opts...)...)
}

func TestOpenPlainText(t *testing.T) {
	srv := testServer(t, 200, "Call me Ishmael. Some years ago...")
	surf := testSurface()

	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/moby.txt", route.FormatText, surf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(surf.Content(), "Call me Ishmael") {
		t.Fatalf("content not injected: %q", surf.Content())
	}
	if !strings.Contains(surf.Content(), "liseuse-fallback") {
		t.Fatal("styled block wrapper missing")
	}
	if sess.Text() != "Call me Ishmael. Some years ago..." {
		t.Fatalf("text not passed through verbatim: %q", sess.Text())
	}
}

func TestOpenPlainTextEscapesMarkup(t *testing.T) {
	srv := testServer(t, 200, "a <script>alert(1)</script> in the source text")
	surf := testSurface()

	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/raw.txt", route.FormatText, surf)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(surf.Content(), "<script>") {
		t.Fatalf("raw markup leaked into the surface: %q", surf.Content())
	}
	if !strings.Contains(surf.Content(), "&lt;script&gt;") {
		t.Fatalf("text not escaped: %q", surf.Content())
	}
	// The session text used for search and paging stays unescaped.
	if !strings.Contains(sess.Text(), "<script>") {
		t.Fatalf("session text mangled: %q", sess.Text())
	}
}

func TestOpenFetchError(t *testing.T) {
	srv := testServer(t, 404, "not here")
	surf := testSurface()

	_, err := fastPipeline().Open(context.Background(), srv.URL+"/gone.txt", route.FormatText, surf)

	var fe *ErrFetch
	if !errors.As(err, &fe) {
		t.Fatalf("expected ErrFetch, got %T: %v", err, err)
	}
	if fe.Status != 404 {
		t.Errorf("status: got %d, want 404", fe.Status)
	}
	// No content may be injected on failure.
	if surf.Content() != "" {
		t.Errorf("content injected despite fetch failure: %q", surf.Content())
	}
}

func TestOpenMarkupExtractsBody(t *testing.T) {
	doc := `<?xml version="1.0"?>
<FictionBook><description><title-info>
<book-title>White Nights</book-title>
</title-info></description>
<body><section><p>It was a wonderful night.</p></section></body>
</FictionBook>`
	srv := testServer(t, 200, doc)
	surf := testSurface()

	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/nights.fb2", route.FormatFB2, surf)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title() != "White Nights" {
		t.Errorf("title: got %q, want White Nights", sess.Title())
	}
	if !strings.Contains(sess.Text(), "It was a wonderful night.") {
		t.Errorf("body text missing: %q", sess.Text())
	}
	if strings.Contains(sess.Text(), "<section>") {
		t.Errorf("markup leaked into text: %q", sess.Text())
	}
	if !strings.Contains(surf.Content(), "<h1>White Nights</h1>") {
		t.Errorf("title not prepended to injected block")
	}
}

func TestOpenMarkupWithoutMarkersDegrades(t *testing.T) {
	doc := `<div><span>Fragment without</span> a body wrapper.</div>`
	srv := testServer(t, 200, doc)

	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/frag.html", route.FormatHTML, testSurface())
	if err != nil {
		t.Fatal(err)
	}
	want := "Fragment without a body wrapper."
	if sess.Text() != want {
		t.Fatalf("degraded strip: got %q, want %q", sess.Text(), want)
	}
}

func TestOpenMarkdownRenders(t *testing.T) {
	srv := testServer(t, 200, "# The Title\n\nSome *emphasis* here.")

	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/doc.md", route.FormatMarkdown, testSurface())
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title() != "The Title" {
		t.Errorf("title: got %q", sess.Title())
	}
	if !strings.Contains(sess.Text(), "<em>emphasis</em>") {
		t.Errorf("markdown not rendered: %q", sess.Text())
	}
}

func TestOpenClearsPriorContent(t *testing.T) {
	srv := testServer(t, 200, "fresh text")
	surf := testSurface()
	surf.SetContent("ghost content from prior engine")

	_, err := fastPipeline().Open(context.Background(), srv.URL+"/a.txt", route.FormatText, surf)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(surf.Content(), "ghost") {
		t.Fatal("prior content not cleared before injection")
	}
}

func TestSessionPaging(t *testing.T) {
	srv := testServer(t, 200, "text")
	surf := testSurface()
	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/a.txt", route.FormatText, surf)
	if err != nil {
		t.Fatal(err)
	}
	surf.SetContentHeight(3000) // 5 screens at 600px

	loc := sess.Location()
	if loc.TotalPages != 5 || loc.CurrentPage != 1 {
		t.Fatalf("initial location: %+v", loc)
	}

	sess.Next()
	if got := surf.ScrollTop(); got != 600 {
		t.Fatalf("after Next: scroll %d, want 600", got)
	}
	if loc := sess.Location(); loc.CurrentPage != 2 {
		t.Fatalf("after Next: page %d, want 2", loc.CurrentPage)
	}

	sess.Prev()
	sess.Prev() // clamped at top
	if got := surf.ScrollTop(); got != 0 {
		t.Fatalf("after Prev past top: scroll %d, want 0", got)
	}

	sess.GoTo("1.0")
	if loc := sess.Location(); loc.Progress != 1.0 {
		t.Fatalf("GoTo end: progress %v, want 1.0", loc.Progress)
	}
}

func TestSessionSearch(t *testing.T) {
	srv := testServer(t, 200, "the whale surfaced. The Whale dove. Nothing else.")
	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/a.txt", route.FormatText, testSurface())
	if err != nil {
		t.Fatal(err)
	}

	matches := sess.Search("whale")
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (case-insensitive)", len(matches))
	}
	if !strings.Contains(matches[0].Excerpt, "whale surfaced") {
		t.Errorf("excerpt: %q", matches[0].Excerpt)
	}

	if got := sess.Search(""); got != nil {
		t.Errorf("empty query must return nil, got %v", got)
	}
}

func TestSessionApplySetting(t *testing.T) {
	srv := testServer(t, 200, "text")
	surf := testSurface()
	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/a.txt", route.FormatText, surf)
	if err != nil {
		t.Fatal(err)
	}

	sess.ApplySetting("fontSize", 22)
	sess.ApplySetting("theme", "dark")

	if got := surf.Style("font-size"); got != "22px" {
		t.Errorf("font-size: got %q, want 22px", got)
	}
	if got := surf.Style("background"); got != "#1a1a1a" {
		t.Errorf("dark background not applied: %q", got)
	}
}

func TestSessionDestroyClearsSurface(t *testing.T) {
	srv := testServer(t, 200, "text")
	surf := testSurface()
	sess, err := fastPipeline().Open(context.Background(), srv.URL+"/a.txt", route.FormatText, surf)
	if err != nil {
		t.Fatal(err)
	}

	sess.Destroy()
	sess.Destroy() // idempotent

	if surf.Content() != "" {
		t.Fatal("surface content not cleared")
	}
}
