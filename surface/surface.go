// CLAUDE:SUMMARY Display-surface model: capability interface, in-memory Node implementation, and ID registry.
// Package surface models the display target a pipeline paints into. The
// orchestrator never touches a concrete widget or DOM binding directly; it
// goes through the Surface interface, which keeps engines, the fallback
// pipeline and tests on the same contract.
package surface

import (
	"strings"
	"sync"
)

// Surface is the capability surface of a display target: attachment,
// visibility, sizing, inline style, injected content and scroll state.
// Exactly one pipeline owns a Surface at a time.
type Surface interface {
	// ID identifies the surface for re-resolution and logging.
	ID() string
	// Attached reports whether the surface is part of a live display tree.
	Attached() bool
	// Visible reports whether the surface can paint (display/visibility).
	Visible() bool
	// Size returns the current width and height in pixels.
	Size() (width, height int)
	// Style returns the inline style value for key, or "".
	Style(key string) string
	// SetStyle sets an inline style key.
	SetStyle(key, value string)
	// SetContent replaces the injected content.
	SetContent(content string)
	// Content returns the injected content.
	Content() string
	// Clear drops the injected content and resets scroll.
	Clear()
	// ScrollTop returns the current vertical scroll offset.
	ScrollTop() int
	// SetScrollTop sets the vertical scroll offset, clamped to content.
	SetScrollTop(px int)
	// ScrollHeight returns the total scrollable content height.
	ScrollHeight() int
}

// Resolver re-resolves a surface by ID when a caller-supplied reference
// turns out to be detached. The service binary backs this with its session
// registry; tests back it with a Registry.
type Resolver interface {
	Resolve(id string) (Surface, bool)
}

// Node is the in-memory Surface implementation. It stands in for a DOM
// element: it can be detached and re-attached, sized late (layout not yet
// stabilized), and scrolled. Safe for concurrent use.
type Node struct {
	mu            sync.Mutex
	id            string
	attached      bool
	width         int
	height        int
	styles        map[string]string
	content       string
	contentHeight int
	scrollTop     int
}

// NewNode creates an attached, unsized, style-free Node.
func NewNode(id string) *Node {
	return &Node{
		id:       id,
		attached: true,
		styles:   make(map[string]string),
	}
}

// ID implements Surface.
func (n *Node) ID() string { return n.id }

// Attached implements Surface.
func (n *Node) Attached() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attached
}

// Detach simulates removal from the display tree.
func (n *Node) Detach() {
	n.mu.Lock()
	n.attached = false
	n.mu.Unlock()
}

// Attach re-inserts the node into the display tree.
func (n *Node) Attach() {
	n.mu.Lock()
	n.attached = true
	n.mu.Unlock()
}

// Visible implements Surface.
func (n *Node) Visible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.styles["display"] != "none" && n.styles["visibility"] != "hidden"
}

// Size implements Surface.
func (n *Node) Size() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.width, n.height
}

// SetSize establishes layout dimensions, as the host would after layout
// settles.
func (n *Node) SetSize(width, height int) {
	n.mu.Lock()
	n.width = width
	n.height = height
	n.mu.Unlock()
}

// Style implements Surface.
func (n *Node) Style(key string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.styles[key]
}

// SetStyle implements Surface.
func (n *Node) SetStyle(key, value string) {
	n.mu.Lock()
	n.styles[key] = value
	n.mu.Unlock()
}

// SetContent implements Surface. Content height is estimated from line
// count unless SetContentHeight fixed it explicitly.
func (n *Node) SetContent(content string) {
	n.mu.Lock()
	n.content = content
	if n.contentHeight == 0 {
		n.scrollTop = 0
	}
	n.mu.Unlock()
}

// Content implements Surface.
func (n *Node) Content() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.content
}

// Clear implements Surface.
func (n *Node) Clear() {
	n.mu.Lock()
	n.content = ""
	n.contentHeight = 0
	n.scrollTop = 0
	n.mu.Unlock()
}

// ScrollTop implements Surface.
func (n *Node) ScrollTop() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scrollTop
}

// SetScrollTop implements Surface.
func (n *Node) SetScrollTop(px int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	max := n.scrollHeightLocked() - n.height
	if max < 0 {
		max = 0
	}
	if px < 0 {
		px = 0
	}
	if px > max {
		px = max
	}
	n.scrollTop = px
}

// ScrollHeight implements Surface.
func (n *Node) ScrollHeight() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.scrollHeightLocked()
}

// SetContentHeight fixes the scrollable height, overriding the line-count
// estimate.
func (n *Node) SetContentHeight(px int) {
	n.mu.Lock()
	n.contentHeight = px
	n.mu.Unlock()
}

func (n *Node) scrollHeightLocked() int {
	if n.contentHeight > 0 {
		return n.contentHeight
	}
	if n.content == "" {
		return n.height
	}
	// 20px per content line is a crude but stable layout estimate.
	h := 20 * (1 + strings.Count(n.content, "\n"))
	if h < n.height {
		return n.height
	}
	return h
}

// Registry is a Resolver backed by a map. The service binary registers each
// session surface under its ID so the guard can recover detached references.
type Registry struct {
	mu       sync.RWMutex
	surfaces map[string]Surface
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{surfaces: make(map[string]Surface)}
}

// Register adds or replaces a surface under its ID.
func (r *Registry) Register(s Surface) {
	r.mu.Lock()
	r.surfaces[s.ID()] = s
	r.mu.Unlock()
}

// Remove drops a surface by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.surfaces, id)
	r.mu.Unlock()
}

// Resolve implements Resolver.
func (r *Registry) Resolve(id string) (Surface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.surfaces[id]
	return s, ok
}
