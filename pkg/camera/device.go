package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// Errors reported by camera devices.
var (
	ErrNoDevice         = errors.New("camera: no device")
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrClosed           = errors.New("camera: device closed")
	ErrGoCVUnavailable  = errors.New("camera: gocv backend not available: rebuild with -tags gocv")
)

// Device is an open video source.
type Device interface {
	// ReadFrame returns the most recent frame.
	ReadFrame(ctx context.Context) (image.Image, error)

	// Close stops the device. It is safe to call more than once.
	Close() error
}

// Opener opens a device. It may block while the device starts up.
type Opener func(ctx context.Context) (Device, error)

// Backend selects a device implementation.
type Backend string

const (
	BackendAuto Backend = "auto"
	BackendGoCV Backend = "gocv"
	BackendMock Backend = "mock"
)

// NewOpener returns an Opener for the given backend and device index.
// BackendAuto means gocv; without it compiled in, opening fails with
// ErrGoCVUnavailable and the session runs audio-only.
func NewOpener(backend Backend, deviceID int, logger *slog.Logger) (Opener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendAuto, BackendGoCV:
		return newGoCVOpener(deviceID, logger), nil
	case BackendMock:
		return func(ctx context.Context) (Device, error) {
			return NewMockDevice(320, 240), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported camera backend: %s", backend)
	}
}
