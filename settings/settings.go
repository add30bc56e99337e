// CLAUDE:SUMMARY Presentation settings store: typed defaults, partial-merge updates, push-to-engine on change.
// Package settings holds the presentation configuration of a reader session:
// font, spacing, margin, theme and view mode. The store outlives individual
// sessions — updates applied while no engine is attached are merged locally
// and pushed wholesale when the next pipeline attaches.
package settings

import (
	"log/slog"
	"sync"
)

// Theme selects the colour scheme pushed to the engine.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ViewMode selects how the engine lays out content.
type ViewMode string

const (
	ViewPaginated ViewMode = "paginated"
	ViewScrolled  ViewMode = "scrolled"
)

// Settings is the full presentation state. Field keys (as pushed to engines
// via SetSetting) use the lowerCamel names conventional for rendering
// engines: fontSize, fontFamily, lineHeight, margin, theme, viewMode.
type Settings struct {
	FontSize   int      `json:"font_size" yaml:"font_size"`
	FontFamily string   `json:"font_family" yaml:"font_family"`
	LineHeight float64  `json:"line_height" yaml:"line_height"`
	Margin     int      `json:"margin" yaml:"margin"`
	Theme      Theme    `json:"theme" yaml:"theme"`
	ViewMode   ViewMode `json:"view_mode" yaml:"view_mode"`
}

// Default returns the settings a fresh reader starts with.
func Default() Settings {
	return Settings{
		FontSize:   18,
		FontFamily: "serif",
		LineHeight: 1.6,
		Margin:     40,
		Theme:      ThemeLight,
		ViewMode:   ViewPaginated,
	}
}

// Partial is a sparse update. Nil fields are left untouched by Update.
type Partial struct {
	FontSize   *int      `json:"font_size,omitempty" yaml:"font_size,omitempty"`
	FontFamily *string   `json:"font_family,omitempty" yaml:"font_family,omitempty"`
	LineHeight *float64  `json:"line_height,omitempty" yaml:"line_height,omitempty"`
	Margin     *int      `json:"margin,omitempty" yaml:"margin,omitempty"`
	Theme      *Theme    `json:"theme,omitempty" yaml:"theme,omitempty"`
	ViewMode   *ViewMode `json:"view_mode,omitempty" yaml:"view_mode,omitempty"`
}

// Applier receives setting changes. The active pipeline implements this and
// forwards to its engine or injected stylesheet.
type Applier interface {
	ApplySetting(key string, value any) error
}

// Store owns the current Settings. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	current Settings
	applier Applier
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used when an applier rejects a setting.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store seeded with initial. A zero-value initial is
// replaced by Default().
func NewStore(initial Settings, opts ...StoreOption) *Store {
	if initial == (Settings{}) {
		initial = Default()
	}
	s := &Store{current: initial, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot returns a copy of the current settings.
func (s *Store) Snapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update merges p into the current settings and pushes each changed key to
// the attached applier, if any. Updates always succeed locally; applier
// failures are logged, not propagated — the store remains the source of
// truth for the next attach.
func (s *Store) Update(p Partial) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make(map[string]any)
	if p.FontSize != nil && *p.FontSize != s.current.FontSize {
		s.current.FontSize = *p.FontSize
		changed["fontSize"] = *p.FontSize
	}
	if p.FontFamily != nil && *p.FontFamily != s.current.FontFamily {
		s.current.FontFamily = *p.FontFamily
		changed["fontFamily"] = *p.FontFamily
	}
	if p.LineHeight != nil && *p.LineHeight != s.current.LineHeight {
		s.current.LineHeight = *p.LineHeight
		changed["lineHeight"] = *p.LineHeight
	}
	if p.Margin != nil && *p.Margin != s.current.Margin {
		s.current.Margin = *p.Margin
		changed["margin"] = *p.Margin
	}
	if p.Theme != nil && *p.Theme != s.current.Theme {
		s.current.Theme = *p.Theme
		changed["theme"] = string(*p.Theme)
	}
	if p.ViewMode != nil && *p.ViewMode != s.current.ViewMode {
		s.current.ViewMode = *p.ViewMode
		changed["viewMode"] = string(*p.ViewMode)
	}

	if s.applier != nil {
		for key, value := range changed {
			s.applyLocked(key, value)
		}
	}
	return s.current
}

// Attach registers the active pipeline and pushes the full current state so
// a fresh engine starts from the merged settings, including updates applied
// while no session existed.
func (s *Store) Attach(a Applier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applier = a
	if a == nil {
		return
	}
	for key, value := range s.pairsLocked() {
		s.applyLocked(key, value)
	}
}

// Detach clears the applier. Settings persist for the next session.
func (s *Store) Detach() {
	s.mu.Lock()
	s.applier = nil
	s.mu.Unlock()
}

// Pairs returns the current settings as engine key/value pairs.
func (s *Store) Pairs() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairsLocked()
}

func (s *Store) pairsLocked() map[string]any {
	return map[string]any{
		"fontSize":   s.current.FontSize,
		"fontFamily": s.current.FontFamily,
		"lineHeight": s.current.LineHeight,
		"margin":     s.current.Margin,
		"theme":      string(s.current.Theme),
		"viewMode":   string(s.current.ViewMode),
	}
}

func (s *Store) applyLocked(key string, value any) {
	if err := s.applier.ApplySetting(key, value); err != nil {
		s.logger.Warn("settings: apply failed", "key", key, "error", err)
	}
}
