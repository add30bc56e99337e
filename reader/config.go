package reader

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/liseuse/settings"
)

// Config tunes the orchestrator. The zero value is usable: defaults() fills
// every field.
type Config struct {
	// LoadTimeout is the hard deadline for the load protocol, measured
	// from the Load call. Default: 25s.
	LoadTimeout time.Duration `yaml:"load_timeout"`

	// GraceDelay is the wait after the engine's Load returns without an
	// error before declaring readiness, giving an in-flight native ready
	// event the chance to win instead. This is a race-tolerance heuristic,
	// not an engine contract — revisit the value against real engine
	// behaviour. Default: 500ms.
	GraceDelay time.Duration `yaml:"grace_delay"`

	// GuardAttempts bounds the surface dimension poll. Default: 30.
	GuardAttempts int `yaml:"guard_attempts"`

	// GuardBaseDelay is the first poll delay. Default: 100ms.
	GuardBaseDelay time.Duration `yaml:"guard_base_delay"`

	// MinHeight is the height floor applied to unsized surfaces. Default: 400.
	MinHeight int `yaml:"min_height"`

	// FrameDelay is the fallback pipeline's post-injection yield. Default: 16ms.
	FrameDelay time.Duration `yaml:"frame_delay"`

	// HTTPTimeout bounds fallback document fetches. Default: 30s.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// UserAgent is sent on fallback fetches.
	UserAgent string `yaml:"user_agent"`

	// Settings seeds the settings store. Zero value means settings.Default().
	Settings settings.Settings `yaml:"settings"`
}

func (c *Config) defaults() {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 25 * time.Second
	}
	if c.GraceDelay <= 0 {
		c.GraceDelay = 500 * time.Millisecond
	}
	if c.GuardAttempts <= 0 {
		c.GuardAttempts = 30
	}
	if c.GuardBaseDelay <= 0 {
		c.GuardBaseDelay = 100 * time.Millisecond
	}
	if c.MinHeight <= 0 {
		c.MinHeight = 400
	}
	if c.FrameDelay <= 0 {
		c.FrameDelay = 16 * time.Millisecond
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; Liseuse/1.0)"
	}
	if c.Settings == (settings.Settings{}) {
		c.Settings = settings.Default()
	}
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return &cfg, nil
}
