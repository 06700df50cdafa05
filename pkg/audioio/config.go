// Package audioio provides microphone capture and speaker playback.
//
// This package supports two backends:
//   - PortAudio - real devices, built with -tags portaudio
//   - Mock - CI/Testing without hardware
//
// Capture delivers float32 chunks through a Source. Playback is pull-based:
// a Sink renders a shared Timeline, which doubles as the output clock that
// the playback scheduler places chunks against.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects PortAudio.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for cross-platform audio I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Capture runs at 16000, playback at 24000.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// FramesPerBuffer is the device callback size in frames.
	// Default: 4096
	FramesPerBuffer int `yaml:"frames_per_buffer" json:"frames_per_buffer"`
}

// CaptureConfig returns the microphone configuration: 16 kHz mono, 4096-frame buffers.
func CaptureConfig() Config {
	return Config{
		Backend:         BackendAuto,
		SampleRate:      16000,
		Channels:        1,
		FramesPerBuffer: 4096,
	}
}

// PlaybackConfig returns the speaker configuration: 24 kHz mono.
func PlaybackConfig() Config {
	return Config{
		Backend:         BackendAuto,
		SampleRate:      24000,
		Channels:        1,
		FramesPerBuffer: 1024,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("frames_per_buffer must be positive, got %d", c.FramesPerBuffer)
	}
	return nil
}

// BufferDuration returns how much audio one device buffer holds.
func (c *Config) BufferDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(c.FramesPerBuffer) / float64(c.SampleRate) * float64(time.Second))
}

// BufferSize returns the number of samples per buffer across all channels.
func (c *Config) BufferSize() int {
	return c.FramesPerBuffer * c.Channels
}
