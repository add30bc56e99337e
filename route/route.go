// CLAUDE:SUMMARY Content-type router: picks the rich-engine or fallback pipeline from an extension/MIME hint.
// Package route decides which rendering pipeline serves a document. The
// decision uses only the declared MIME hint or the reference's extension —
// no byte sniffing. Misclassification is a caller-data problem, not a router
// responsibility.
package route

import (
	"net/url"
	"path"
	"strings"
)

// Kind names a rendering pipeline.
type Kind string

const (
	// KindRich routes to the external rendering engine.
	KindRich Kind = "rich"
	// KindFallback routes to the plain-text/structured-markup pipeline.
	KindFallback Kind = "fallback"
)

// Format identifies the declared document format, normalized from the
// extension or MIME hint.
type Format string

const (
	FormatEPUB     Format = "epub"
	FormatPDF      Format = "pdf"
	FormatMOBI     Format = "mobi"
	FormatAZW3     Format = "azw3"
	FormatCBZ      Format = "cbz"
	FormatText     Format = "txt"
	FormatMarkdown Format = "md"
	FormatFB2      Format = "fb2"
	FormatHTML     Format = "html"
	FormatUnknown  Format = ""
)

// mimeFormats maps declared MIME hints to formats. Extension wins when both
// are present and disagree is not a case we arbitrate — the hint is tried
// first only when the reference has no extension.
var mimeFormats = map[string]Format{
	"application/epub+zip":           FormatEPUB,
	"application/pdf":                FormatPDF,
	"application/x-mobipocket-ebook": FormatMOBI,
	"application/vnd.amazon.ebook":   FormatAZW3,
	"application/vnd.comicbook+zip":  FormatCBZ,
	"text/plain":                     FormatText,
	"text/markdown":                  FormatMarkdown,
	"application/x-fictionbook+xml":  FormatFB2,
	"text/html":                      FormatHTML,
}

var extFormats = map[string]Format{
	".epub":     FormatEPUB,
	".pdf":      FormatPDF,
	".mobi":     FormatMOBI,
	".azw3":     FormatAZW3,
	".cbz":      FormatCBZ,
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".fb2":      FormatFB2,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// Detect normalizes a document reference (URL or path) plus an optional MIME
// hint into a Format. Unknown inputs return FormatUnknown, which still
// routes (to the rich engine — it is the generalist).
func Detect(ref, mimeHint string) Format {
	if ext := extension(ref); ext != "" {
		if f, ok := extFormats[ext]; ok {
			return f
		}
	}
	if mimeHint != "" {
		hint := strings.ToLower(strings.TrimSpace(mimeHint))
		if i := strings.IndexByte(hint, ';'); i >= 0 {
			hint = strings.TrimSpace(hint[:i])
		}
		if f, ok := mimeFormats[hint]; ok {
			return f
		}
	}
	return FormatUnknown
}

// PipelineFor returns the pipeline kind serving a format. Plain-text and
// structured-markup formats do not warrant a full engine.
func PipelineFor(f Format) Kind {
	switch f {
	case FormatText, FormatMarkdown, FormatFB2, FormatHTML:
		return KindFallback
	default:
		return KindRich
	}
}

// Route is the one-call form: reference + hint to pipeline kind.
func Route(ref, mimeHint string) (Format, Kind) {
	f := Detect(ref, mimeHint)
	return f, PipelineFor(f)
}

// extension extracts a lowercase extension from a URL or bare path,
// ignoring query strings and fragments.
func extension(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
