package fallback

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/hazyhaar/liseuse/route"
)

var (
	// bodyOpen matches the opening body tag of HTML and FB2 documents.
	bodyOpen  = regexp.MustCompile(`(?is)<body[^>]*>`)
	bodyClose = regexp.MustCompile(`(?i)</body>`)

	// titlePatterns are tried in order; first capture wins. FB2 carries
	// <book-title>, HTML carries <title>.
	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<book-title[^>]*>(.*?)</book-title>`),
		regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`),
	}

	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
)

// extractor turns raw document bytes into displayable text. One instance per
// pipeline; converters are reused across documents.
type extractor struct {
	conv   *converter.Converter
	strip  *bluemonday.Policy
	render goldmark.Markdown
}

func newExtractor() *extractor {
	return &extractor{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		strip:  bluemonday.StrictPolicy(),
		render: goldmark.New(),
	}
}

// extract produces a title and the display text for a fallback-routed
// document. The zero-value title means none was recovered.
func (e *extractor) extract(raw []byte, format route.Format) (title, text string) {
	switch format {
	case route.FormatMarkdown:
		return e.extractMarkdown(raw)
	case route.FormatHTML, route.FormatFB2:
		return e.extractMarkup(raw)
	default:
		// Plain text passes through verbatim.
		return "", string(raw)
	}
}

// extractMarkup slices the body region between its start/end markers and
// converts it to readable text. Absent markers degrade to stripping all tags
// and collapsing whitespace. A recovered title is prepended by the caller.
func (e *extractor) extractMarkup(raw []byte) (string, string) {
	doc := string(raw)
	title := findTitle(doc)

	start := bodyOpen.FindStringIndex(doc)
	end := bodyClose.FindStringIndex(doc)
	if start != nil && end != nil && end[0] > start[1] {
		body := doc[start[1]:end[0]]
		if md, err := e.conv.ConvertString(body); err == nil {
			return title, strings.TrimSpace(md)
		}
	}

	// Degraded path: strip everything and collapse whitespace.
	stripped := e.strip.Sanitize(doc)
	return title, collapseWhitespace(stripped)
}

// extractMarkdown renders markdown to HTML for injection; the first heading
// doubles as the title.
func (e *extractor) extractMarkdown(raw []byte) (string, string) {
	var title string
	if m := mdHeading.FindSubmatch(raw); m != nil {
		title = strings.TrimSpace(string(m[1]))
	}

	var buf bytes.Buffer
	if err := e.render.Convert(raw, &buf); err != nil {
		return title, string(raw)
	}
	return title, buf.String()
}

func findTitle(doc string) string {
	for _, pat := range titlePatterns {
		if m := pat.FindStringSubmatch(doc); m != nil {
			t := collapseWhitespace(m[1])
			if t != "" {
				return t
			}
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
