package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// MockDevice serves a synthetic frame for tests and hardware-free runs.
type MockDevice struct {
	mu     sync.Mutex
	frame  image.Image
	closed bool
	err    error

	reads  atomic.Int64
	closes atomic.Int64
}

// NewMockDevice creates a device serving a w x h gradient test pattern.
func NewMockDevice(w, h int) *MockDevice {
	return &MockDevice{frame: TestPattern(w, h)}
}

// TestPattern draws a horizontal gray gradient with a light square in the
// middle.
func TestPattern(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / max(w-1, 1))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	for y := h * 3 / 8; y < h*5/8; y++ {
		for x := w * 3 / 8; x < w*5/8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 240, G: 200, B: 180, A: 255})
		}
	}
	return img
}

// SetFrame replaces the frame returned by ReadFrame.
func (m *MockDevice) SetFrame(img image.Image) {
	m.mu.Lock()
	m.frame = img
	m.mu.Unlock()
}

// SetError makes ReadFrame fail with err until cleared with nil.
func (m *MockDevice) SetError(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// ReadFrame returns the current frame.
func (m *MockDevice) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.err != nil {
		return nil, m.err
	}
	m.reads.Add(1)
	return m.frame, nil
}

// Close marks the device closed.
func (m *MockDevice) Close() error {
	m.closes.Add(1)
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (m *MockDevice) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reads returns how many frames were served.
func (m *MockDevice) Reads() int64 {
	return m.reads.Load()
}
