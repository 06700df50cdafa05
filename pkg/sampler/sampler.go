// Package sampler sends periodic camera snapshots to the live channel.
//
// Video runs on its own low-rate ticker, separate from the audio path:
// each tick grabs the current frame, scales it to the configured size,
// encodes it as JPEG and sends it as one image frame.
package sampler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/image/draw"

	"github.com/teslashibe/go-neo/pkg/camera"
	"github.com/teslashibe/go-neo/pkg/live"
)

// Errors returned by the Sampler.
var (
	ErrRunning   = errors.New("sampler: already running")
	ErrNoDevice  = errors.New("sampler: nil device")
	ErrBadConfig = errors.New("sampler: invalid config")
)

// Sender receives encoded frames. live.Channel satisfies it.
type Sender interface {
	SendImage(ctx context.Context, frame live.ImageFrame) error
}

// Config configures a Sampler.
type Config struct {
	// Clock drives the frame ticker. Default: wall clock.
	Clock clock.Clock

	// Logger for sampler events. Default: slog.Default().
	Logger *slog.Logger

	// OnFrame, if set, receives every frame after it was sent.
	OnFrame func(frame live.ImageFrame)
}

// Stats counts sampler activity since construction.
type Stats struct {
	Running bool  `json:"running"`
	Frames  int64 `json:"frames"`
	Errors  int64 `json:"errors"`
}

// Sampler captures and sends frames on a fixed period.
type Sampler struct {
	sender  Sender
	clock   clock.Clock
	logger  *slog.Logger
	onFrame func(live.ImageFrame)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	frames atomic.Int64
	errs   atomic.Int64
}

// New creates a Sampler that sends to sender.
func New(sender Sender, cfg Config) *Sampler {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sampler{
		sender:  sender,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "sampler"),
		onFrame: cfg.OnFrame,
	}
}

// Start begins sampling dev at opts.FPS until Stop or ctx is done.
func (s *Sampler) Start(ctx context.Context, dev camera.Device, opts camera.Config) error {
	if dev == nil {
		return ErrNoDevice
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrBadConfig, strings.Join(errs, "; "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	period := time.Duration(float64(time.Second) / opts.FPS)
	s.logger.Info("frame sampling started",
		"fps", opts.FPS,
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"quality", opts.Quality,
	)
	go s.loop(ctx, dev, opts, s.clock.Ticker(period), s.done)
	return nil
}

// Stop cancels the ticker and waits for an in-flight frame to finish.
// Safe to call when not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("frame sampling stopped", "frames", s.frames.Load())
}

// Running reports whether the sampler is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Stats returns frame counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Running: s.Running(),
		Frames:  s.frames.Load(),
		Errors:  s.errs.Load(),
	}
}

func (s *Sampler) loop(ctx context.Context, dev camera.Device, opts camera.Config, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.sample(ctx, dev, opts) {
				return
			}
		}
	}
}

// sample sends one frame. It returns false when sampling cannot continue.
func (s *Sampler) sample(ctx context.Context, dev camera.Device, opts camera.Config) bool {
	img, err := dev.ReadFrame(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrClosed) || ctx.Err() != nil {
			return false
		}
		s.errs.Add(1)
		s.logger.Warn("frame grab failed", "err", err)
		return true
	}

	frame, err := Encode(img, opts.Width, opts.Height, opts.Quality)
	if err != nil {
		s.errs.Add(1)
		s.logger.Warn("frame encode failed", "err", err)
		return true
	}

	if err := s.sender.SendImage(ctx, frame); err != nil {
		if errors.Is(err, live.ErrClosed) || ctx.Err() != nil {
			return false
		}
		s.errs.Add(1)
		s.logger.Warn("frame send failed", "err", err)
		return true
	}
	s.frames.Add(1)
	if s.onFrame != nil {
		s.onFrame(frame)
	}
	return true
}

// Encode scales img to width x height, compresses it as JPEG at quality
// (1-100) and wraps it as an image frame.
func Encode(img image.Image, width, height, quality int) (live.ImageFrame, error) {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return live.ImageFrame{}, err
	}
	return live.ImageFrame{
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		MIMEType: live.ImageMIMEType,
	}, nil
}
