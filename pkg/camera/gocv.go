//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// GoCVDevice reads frames from a local webcam through OpenCV.
type GoCVDevice struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	frame  gocv.Mat
	closed bool
}

func newGoCVOpener(deviceID int, logger *slog.Logger) Opener {
	return func(ctx context.Context) (Device, error) {
		vc, err := gocv.OpenVideoCapture(deviceID)
		if err != nil {
			return nil, fmt.Errorf("%w: open device %d: %v", ErrNoDevice, deviceID, err)
		}
		if !vc.IsOpened() {
			vc.Close()
			return nil, fmt.Errorf("%w: device %d not opened", ErrNoDevice, deviceID)
		}

		d := &GoCVDevice{cap: vc, frame: gocv.NewMat()}

		// Some drivers report opened before the first frame; read one so a
		// dead device fails here, within the acquisition deadline.
		if ok := vc.Read(&d.frame); !ok || d.frame.Empty() {
			d.Close()
			return nil, fmt.Errorf("%w: device %d produced no frames", ErrNoDevice, deviceID)
		}
		logger.Info("camera opened",
			"device", deviceID,
			"width", d.frame.Cols(),
			"height", d.frame.Rows(),
		)
		return d, nil
	}
}

// ReadFrame grabs the next frame and converts it to an image.
func (d *GoCVDevice) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if ok := d.cap.Read(&d.frame); !ok || d.frame.Empty() {
		return nil, fmt.Errorf("camera: empty frame")
	}
	return d.frame.ToImage()
}

// Close releases the capture device.
func (d *GoCVDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.frame.Close()
	return d.cap.Close()
}
