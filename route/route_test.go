package route

import "testing"

func TestRoute(t *testing.T) {
	tests := []struct {
		ref    string
		hint   string
		format Format
		kind   Kind
	}{
		{"https://cdn.example.com/books/moby.epub", "", FormatEPUB, KindRich},
		{"https://cdn.example.com/books/report.pdf", "", FormatPDF, KindRich},
		{"book.mobi", "", FormatMOBI, KindRich},
		{"book.azw3", "", FormatAZW3, KindRich},
		{"strip.cbz", "", FormatCBZ, KindRich},
		{"notes.txt", "", FormatText, KindFallback},
		{"notes.text", "", FormatText, KindFallback},
		{"readme.md", "", FormatMarkdown, KindFallback},
		{"readme.markdown", "", FormatMarkdown, KindFallback},
		{"novel.fb2", "", FormatFB2, KindFallback},
		{"page.html", "", FormatHTML, KindFallback},
		{"page.htm", "", FormatHTML, KindFallback},
		// Query string and fragment do not confuse extension detection.
		{"https://example.com/b.epub?token=abc#ch3", "", FormatEPUB, KindRich},
		// MIME hint used when the reference carries no extension.
		{"https://example.com/download/12345", "application/epub+zip", FormatEPUB, KindRich},
		{"https://example.com/download/12345", "text/plain; charset=utf-8", FormatText, KindFallback},
		// Unknown stays unknown and routes rich.
		{"https://example.com/download/12345", "", FormatUnknown, KindRich},
		{"file.xyz", "", FormatUnknown, KindRich},
	}

	for _, tt := range tests {
		format, kind := Route(tt.ref, tt.hint)
		if format != tt.format {
			t.Errorf("Route(%q, %q) format = %q, want %q", tt.ref, tt.hint, format, tt.format)
		}
		if kind != tt.kind {
			t.Errorf("Route(%q, %q) kind = %q, want %q", tt.ref, tt.hint, kind, tt.kind)
		}
	}
}

func TestDetectExtensionWinsOverHint(t *testing.T) {
	if f := Detect("book.epub", "text/plain"); f != FormatEPUB {
		t.Fatalf("got %q, want epub", f)
	}
}
