// Package tracking turns camera frames into the normalized face offset the
// face renderer follows.
//
// The controller does not interpret positions. They come from the local
// Tracker or an external sensor and are passed through unchanged.
package tracking

import "math"

// Limit is the largest offset on either axis.
const Limit = 0.5

// Position is a face offset from frame center, each axis in [-0.5, 0.5].
// X is mirrored so positive X means the face is on the viewer's left.
// The zero value means no signal.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NoSignal is the neutral position reported when nothing is tracked.
var NoSignal = Position{}

// IsZero reports whether p is the no-signal value.
func (p Position) IsZero() bool {
	return p == NoSignal
}

// Valid reports whether both axes are finite and within Limit.
func (p Position) Valid() bool {
	return inRange(p.X) && inRange(p.Y)
}

// Clamp limits both axes to [-0.5, 0.5]. NaN becomes 0.
func (p Position) Clamp() Position {
	return Position{X: clamp(p.X), Y: clamp(p.Y)}
}

// FromDetection maps a normalized bounding box to an offset.
func FromDetection(d Detection) Position {
	cx, cy := d.Center()
	return Position{X: -(cx - 0.5), Y: cy - 0.5}.Clamp()
}

func inRange(v float64) bool {
	return !math.IsNaN(v) && v >= -Limit && v <= Limit
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-Limit, math.Min(Limit, v))
}
