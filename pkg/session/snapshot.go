package session

import (
	"github.com/teslashibe/go-neo/pkg/activity"
	"github.com/teslashibe/go-neo/pkg/playback"
	"github.com/teslashibe/go-neo/pkg/sampler"
	"github.com/teslashibe/go-neo/pkg/tracking"
)

// Capabilities says which media the live session carries.
type Capabilities struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`

	// VideoReason explains why video is off, when the camera was wanted.
	VideoReason string `json:"video_reason,omitempty"`
}

// Snapshot is everything the face renderer reads, plus diagnostics.
type Snapshot struct {
	State         activity.State    `json:"state"`
	Level         float64           `json:"level"`
	Tracking      tracking.Position `json:"tracking"`
	Capabilities  Capabilities      `json:"capabilities"`
	Voice         string            `json:"voice"`
	CameraEnabled bool              `json:"camera_enabled"`
	SessionID     string            `json:"session_id,omitempty"`
	Error         string            `json:"error,omitempty"`

	Playback playback.Status `json:"playback"`
	Frames   sampler.Stats   `json:"frames"`
	Metrics  Metrics         `json:"metrics"`
}
