package reader

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/liseuse/kit"
	"github.com/hazyhaar/liseuse/settings"
	"github.com/hazyhaar/liseuse/surface"
)

// RegisterMCP registers reader tools on an MCP server. newSurface supplies
// the rendering surface for the open tool; callers embed whatever surface
// implementation their host provides.
func (r *Reader) RegisterMCP(srv *mcp.Server, newSurface func(id string) surface.Surface) {
	r.registerOpenTool(srv, newSurface)
	r.registerPageTool(srv)
	r.registerLocationTool(srv)
	r.registerSearchTool(srv)
	r.registerSettingsTool(srv)
	r.registerBookmarkTool(srv)
	r.registerCloseTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- open ---

type openRequest struct {
	DocID     string `json:"doc_id,omitempty"`
	URL       string `json:"url"`
	MIME      string `json:"mime,omitempty"`
	SurfaceID string `json:"surface_id,omitempty"`
}

func (r *Reader) registerOpenTool(srv *mcp.Server, newSurface func(id string) surface.Surface) {
	tool := &mcp.Tool{
		Name:        "reader_open",
		Description: "Open a document for reading. Routes to the rich rendering engine or the plain-text fallback based on format.",
		InputSchema: inputSchema(map[string]any{
			"doc_id":     map[string]any{"type": "string", "description": "Stable document ID (default: the URL)"},
			"url":        map[string]any{"type": "string", "description": "Document URL"},
			"mime":       map[string]any{"type": "string", "description": "MIME type hint when the URL has no extension"},
			"surface_id": map[string]any{"type": "string", "description": "Surface to render into (default: reader-view)"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*openRequest)
		docID := rr.DocID
		if docID == "" {
			docID = rr.URL
		}
		surfID := rr.SurfaceID
		if surfID == "" {
			surfID = "reader-view"
		}
		doc := Document{ID: docID, URL: rr.URL, MIME: rr.MIME}
		if err := r.Initialize(ctx, doc, newSurface(surfID)); err != nil {
			return nil, err
		}
		loc, _ := r.Location(ctx)
		return map[string]any{"status": "ready", "doc_id": docID, "location": loc}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr openRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- page ---

type pageRequest struct {
	Direction string `json:"direction,omitempty"`
	Locator   string `json:"locator,omitempty"`
}

func (r *Reader) registerPageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "reader_page",
		Description: "Turn pages or jump to a position in the open document.",
		InputSchema: inputSchema(map[string]any{
			"direction": map[string]any{"type": "string", "enum": []any{"next", "prev"}, "description": "Page direction"},
			"locator":   map[string]any{"type": "string", "description": "Jump target: engine locator, px:N offset, or 0..1 fraction. Overrides direction."},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*pageRequest)
		var err error
		switch {
		case rr.Locator != "":
			err = r.Navigate(ctx, rr.Locator)
		case rr.Direction == "prev":
			err = r.Prev(ctx)
		default:
			err = r.Next(ctx)
		}
		if err != nil {
			return nil, err
		}
		return r.Location(ctx)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr pageRequest
		json.Unmarshal(req.Params.Arguments, &rr)
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- location ---

func (r *Reader) registerLocationTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "reader_location",
		Description: "Get the current reading position: page, total pages, progress fraction, locator.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return r.Location(ctx)
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- search ---

type searchRequest struct {
	Query string `json:"query"`
}

func (r *Reader) registerSearchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "reader_search",
		Description: "Search the open document for a phrase. Returns locators and excerpts.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "Text to find (case-insensitive)"},
		}, []string{"query"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*searchRequest)
		return r.Search(ctx, rr.Query)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr searchRequest
		if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- settings ---

func (r *Reader) registerSettingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "reader_settings",
		Description: "Update reading settings. Omitted fields keep their current values. Returns the effective settings.",
		InputSchema: inputSchema(map[string]any{
			"font_size":   map[string]any{"type": "integer", "description": "Font size in px"},
			"font_family": map[string]any{"type": "string", "description": "Font family"},
			"line_height": map[string]any{"type": "number", "description": "Line height multiplier"},
			"margin":      map[string]any{"type": "integer", "description": "Horizontal margin in px"},
			"theme":       map[string]any{"type": "string", "enum": []any{"light", "dark"}, "description": "Colour theme"},
			"view_mode":   map[string]any{"type": "string", "enum": []any{"paginated", "scrolled"}, "description": "View mode"},
		}, nil),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		p := req.(*settings.Partial)
		return r.UpdateSettings(*p), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p settings.Partial
		if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- bookmark ---

type bookmarkRequest struct {
	Label string `json:"label,omitempty"`
}

func (r *Reader) registerBookmarkTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "reader_bookmark",
		Description: "Bookmark the current reading position.",
		InputSchema: inputSchema(map[string]any{
			"label": map[string]any{"type": "string", "description": "Optional bookmark label"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*bookmarkRequest)
		return r.AddBookmark(ctx, rr.Label)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var rr bookmarkRequest
		json.Unmarshal(req.Params.Arguments, &rr)
		return &kit.MCPDecodeResult{Request: &rr}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- close ---

func (r *Reader) registerCloseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "reader_close",
		Description: "Close the open document and release its rendering session.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		r.Destroy()
		return map[string]string{"status": "closed"}, nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
