// Package probe inspects local documents before a session opens them:
// format detection, title, size, and page/word estimates. Nothing here
// renders anything; the point is cheap metadata for catalogue listings and
// for deciding whether a document is worth routing to the rich pipeline.
package probe

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	"github.com/hazyhaar/liseuse/route"
)

// wordsPerPage is the estimate used for formats without intrinsic pages.
const wordsPerPage = 300

// Info is what a probe learns about a document.
type Info struct {
	Format    route.Format `json:"format"`
	Kind      route.Kind   `json:"kind"`
	Title     string       `json:"title,omitempty"`
	Pages     int          `json:"pages"`
	Words     int          `json:"words,omitempty"`
	SizeBytes int64        `json:"size_bytes"`
}

// Inspect probes the document at path. The format comes from the extension;
// pass a MIME hint for extensionless paths.
func Inspect(ctx context.Context, path, mimeHint string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	format, kind := route.Route(path, mimeHint)
	info := &Info{Format: format, Kind: kind, SizeBytes: st.Size()}

	switch format {
	case route.FormatPDF:
		err = inspectPDF(path, info)
	case route.FormatEPUB:
		err = inspectEPUB(ctx, path, info)
	case route.FormatText, route.FormatMarkdown, route.FormatHTML, route.FormatFB2:
		err = inspectText(path, format, info)
	default:
		return nil, fmt.Errorf("probe: no inspector for format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

func inspectPDF(path string, info *Info) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return fmt.Errorf("probe: pdfcpu read: %w", err)
	}
	info.Pages = pdfCtx.PageCount
	return nil
}

func inspectEPUB(ctx context.Context, path string, info *Info) error {
	rc, err := epub.OpenReader(path)
	if err != nil {
		return fmt.Errorf("probe: open epub: %w", err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return fmt.Errorf("probe: %s has no rootfiles", path)
	}
	book := rc.Rootfiles[0]
	info.Title = book.Title

	words := 0
	for _, ref := range book.Spine.Itemrefs {
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
		words += len(strings.Fields(flattenHTML(string(data))))
	}
	info.Words = words
	info.Pages = (words + wordsPerPage - 1) / wordsPerPage
	return nil
}

func inspectText(path string, format route.Format, info *Info) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text := string(data)

	switch format {
	case route.FormatHTML, route.FormatFB2:
		text = flattenHTML(text)
	case route.FormatMarkdown:
		info.Title = markdownTitle(text)
	}
	if info.Title == "" {
		info.Title = firstLine(text)
	}

	info.Words = len(strings.Fields(text))
	info.Pages = (info.Words + wordsPerPage - 1) / wordsPerPage
	return nil
}

func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 200 {
				line = line[:200]
			}
			return line
		}
	}
	return ""
}

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
