package camera

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownPreset is returned for a preset name not in Presets.
var ErrUnknownPreset = errors.New("camera: unknown preset")

// ValidationError lists every out-of-range field of a rejected Config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "camera: invalid config: " + strings.Join(e.Problems, "; ")
}

// Update is a partial change to the frame settings. A preset is applied
// first, then any explicit field on top of it. Nil fields keep their value.
type Update struct {
	Preset  string   `json:"preset,omitempty"`
	Width   *int     `json:"width,omitempty"`
	Height  *int     `json:"height,omitempty"`
	FPS     *float64 `json:"fps,omitempty"`
	Quality *int     `json:"quality,omitempty"`
}

// Manager holds the frame settings shared by the sampler and the control
// API. Changes are validated before they are stored.
type Manager struct {
	mu     sync.RWMutex
	config Config

	// OnChange is called with the new settings after they are stored,
	// typically to restart a running sampler.
	OnChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Current returns the frame settings in effect.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Set replaces the settings. An invalid cfg leaves the current settings
// untouched. An OnChange failure is returned, but cfg stays stored so the
// next session starts with it.
func (m *Manager) Set(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	m.mu.Lock()
	m.config = cfg
	onChange := m.OnChange
	m.mu.Unlock()

	if onChange != nil {
		if err := onChange(cfg); err != nil {
			return fmt.Errorf("camera: apply config: %w", err)
		}
	}
	return nil
}

// Apply merges u into the current settings and stores the result.
func (m *Manager) Apply(u Update) (Config, error) {
	cfg := m.Current()
	if u.Preset != "" {
		p := GetPreset(u.Preset)
		if p == nil {
			return cfg, fmt.Errorf("%w: %q", ErrUnknownPreset, u.Preset)
		}
		cfg = *p
	}
	if u.Width != nil {
		cfg.Width = *u.Width
	}
	if u.Height != nil {
		cfg.Height = *u.Height
	}
	if u.FPS != nil {
		cfg.FPS = *u.FPS
	}
	if u.Quality != nil {
		cfg.Quality = *u.Quality
	}

	if err := m.Set(cfg); err != nil {
		return m.Current(), err
	}
	return cfg, nil
}
