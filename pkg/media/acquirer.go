// Package media acquires the microphone and camera for a session and owns
// their lifecycle.
//
// The microphone is mission-critical: failure to acquire it is an
// *AcquisitionError. The camera is best-effort: AcquireCamera races the
// device against a deadline and returns a CameraResult that is either
// Available or Degraded, never an error.
package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-neo/pkg/audioio"
	"github.com/teslashibe/go-neo/pkg/camera"
)

// MicrophoneOpener creates an unstarted capture source.
type MicrophoneOpener func(ctx context.Context) (audioio.Source, error)

// Config configures an Acquirer.
type Config struct {
	Microphone MicrophoneOpener
	Camera     camera.Opener

	// Clock drives the camera deadline. Default: wall clock.
	Clock clock.Clock

	// Logger. Default: slog.Default().
	Logger *slog.Logger
}

// Acquirer hands out at most one handle per stream kind at a time.
type Acquirer struct {
	mic    MicrophoneOpener
	cam    camera.Opener
	clock  clock.Clock
	logger *slog.Logger

	mu   sync.Mutex
	held map[Kind]bool
}

// NewAcquirer creates an Acquirer.
func NewAcquirer(cfg Config) *Acquirer {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Acquirer{
		mic:    cfg.Microphone,
		cam:    cfg.Camera,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "media"),
		held:   make(map[Kind]bool),
	}
}

// Outstanding reports whether an acquisition of kind is in flight or held.
func (a *Acquirer) Outstanding(kind Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held[kind]
}

func (a *Acquirer) claim(kind Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.held[kind] {
		return false
	}
	a.held[kind] = true
	return true
}

func (a *Acquirer) unclaim(kind Kind) {
	a.mu.Lock()
	delete(a.held, kind)
	a.mu.Unlock()
}

// AcquireMicrophone opens and starts the capture source.
func (a *Acquirer) AcquireMicrophone(ctx context.Context) (*MicrophoneStream, error) {
	if a.mic == nil {
		return nil, &AcquisitionError{Kind: Microphone, Reason: "no device configured"}
	}
	if !a.claim(Microphone) {
		return nil, &AcquisitionError{Kind: Microphone, Reason: "already acquired", Cause: ErrBusy}
	}

	src, err := a.mic(ctx)
	if err != nil {
		a.unclaim(Microphone)
		return nil, &AcquisitionError{Kind: Microphone, Reason: reason(err), Cause: err}
	}
	if err := src.Start(ctx); err != nil {
		src.Close()
		a.unclaim(Microphone)
		return nil, &AcquisitionError{Kind: Microphone, Reason: reason(err), Cause: err}
	}

	a.logger.Info("microphone acquired", "backend", src.Name(), "sample_rate", src.Config().SampleRate)
	return &MicrophoneStream{Source: src, a: a}, nil
}

// AcquireCamera races the camera opener against timeout. A device that
// shows up after the deadline is closed as soon as it arrives.
func (a *Acquirer) AcquireCamera(ctx context.Context, timeout time.Duration) CameraResult {
	if a.cam == nil {
		return Degraded("no camera configured")
	}
	if !a.claim(Camera) {
		return Degraded("camera acquisition already outstanding")
	}

	openCtx, cancel := context.WithCancel(ctx)
	type result struct {
		dev camera.Device
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		dev, err := a.cam(openCtx)
		resCh <- result{dev, err}
	}()

	timer := a.clock.Timer(timeout)
	defer timer.Stop()

	abandon := func(why string) CameraResult {
		cancel()
		go func() {
			r := <-resCh
			if r.dev != nil {
				r.dev.Close()
				a.logger.Debug("closed late camera device")
			}
			a.unclaim(Camera)
		}()
		a.logger.Warn("camera degraded", "reason", why)
		return Degraded(why)
	}

	select {
	case r := <-resCh:
		if r.err != nil {
			cancel()
			a.unclaim(Camera)
			why := reason(r.err)
			a.logger.Warn("camera degraded", "reason", why, "err", r.err)
			return Degraded(why)
		}
		a.logger.Info("camera acquired")
		return Available(&CameraStream{Device: r.dev, a: a, cancel: cancel})
	case <-timer.C:
		return abandon("timeout")
	case <-ctx.Done():
		return abandon(ctx.Err().Error())
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return "permission denied"
	case errors.Is(err, camera.ErrNoDevice):
		return "no device"
	case errors.Is(err, camera.ErrGoCVUnavailable), errors.Is(err, audioio.ErrPortAudioUnavailable):
		return "backend not compiled in"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return err.Error()
	}
}
