package audioio

import (
	"context"
	"io"
)

// Sink plays a Timeline to a speaker or other output device.
// The device pulls frames from the timeline at its own pace, which is
// what advances the timeline's clock.
type Sink interface {
	// Start begins audio playback.
	Start(ctx context.Context) error

	// Stop halts audio playback.
	// It is safe to call Stop multiple times.
	Stop() error

	// Timeline returns the output clock and mixer this sink renders.
	Timeline() *Timeline

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name ("portaudio", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the sink cannot be restarted.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	// FramesRendered is the total number of frames pulled from the timeline.
	FramesRendered int64 `json:"frames_rendered"`

	// ActiveVoices is the number of voices currently on the timeline.
	ActiveVoices int `json:"active_voices"`

	// Running indicates if the sink is currently playing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
