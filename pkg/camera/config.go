// Package camera provides camera devices and the runtime-tunable frame
// settings used when sampling stills for the live session.
package camera

import "fmt"

// Config holds the frame sampling parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	Width   int     `json:"width"`   // Still width in pixels
	Height  int     `json:"height"`  // Still height in pixels
	FPS     float64 `json:"fps"`     // Stills per second
	Quality int     `json:"quality"` // JPEG quality 1-100
}

// Limits for sampled stills.
const (
	MaxWidth  = 1920
	MaxHeight = 1080
	MaxFPS    = 30.0
)

// DefaultConfig returns 320x240 stills at 2 fps and JPEG quality 40.
func DefaultConfig() Config {
	return Config{
		Width:   320,
		Height:  240,
		FPS:     2,
		Quality: 40,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 16 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 16 and %d", MaxWidth))
	}
	if c.Height < 16 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 16 and %d", MaxHeight))
	}
	if c.FPS <= 0 || c.FPS > MaxFPS {
		errors = append(errors, "fps must be greater than 0 and at most 30")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
