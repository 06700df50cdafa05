package media

import (
	"context"
	"errors"
	"sync"

	"github.com/teslashibe/go-neo/pkg/audioio"
	"github.com/teslashibe/go-neo/pkg/camera"
)

// MicrophoneStream is an acquired, running capture source.
type MicrophoneStream struct {
	Source audioio.Source

	a    *Acquirer
	once sync.Once
	err  error
}

// Release stops capture and frees the device. It is idempotent.
func (m *MicrophoneStream) Release() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		m.err = errors.Join(m.Source.Stop(), m.Source.Close())
		m.a.unclaim(Microphone)
		m.a.logger.Info("microphone released")
	})
	return m.err
}

// CameraStream is an acquired camera device.
type CameraStream struct {
	Device camera.Device

	a      *Acquirer
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

// Release closes the device. It is idempotent.
func (c *CameraStream) Release() error {
	if c == nil {
		return nil
	}
	c.once.Do(func() {
		c.cancel()
		c.err = c.Device.Close()
		c.a.unclaim(Camera)
		c.a.logger.Info("camera released")
	})
	return c.err
}

// CameraResult is the outcome of a best-effort camera acquisition:
// either Available with a stream, or Degraded with a reason.
type CameraResult struct {
	Stream *CameraStream
	Reason string
}

// Available wraps an acquired stream.
func Available(s *CameraStream) CameraResult {
	return CameraResult{Stream: s}
}

// Degraded records why the session has no video.
func Degraded(reason string) CameraResult {
	return CameraResult{Reason: reason}
}

// OK reports whether a camera stream was acquired.
func (r CameraResult) OK() bool {
	return r.Stream != nil
}
