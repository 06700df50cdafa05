package tracking

import (
	"errors"
	"image"
)

// ErrYuNetUnavailable is returned when the binary was built without gocv.
var ErrYuNetUnavailable = errors.New("tracking: yunet detector not available: rebuild with -tags gocv")

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector finds faces in a frame.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
	Close() error
}

// DetectorConfig holds detector configuration
type DetectorConfig struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
}

// DefaultDetectorConfig returns defaults for YuNet on 320x240 frames.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      240,
	}
}

// SelectBest picks the face to follow.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}

	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection

	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}

	return best
}

// FuncDetector adapts a function to Detector.
type FuncDetector func(img image.Image) ([]Detection, error)

// Detect calls f.
func (f FuncDetector) Detect(img image.Image) ([]Detection, error) { return f(img) }

// Close does nothing.
func (f FuncDetector) Close() error { return nil }
