package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-neo/pkg/camera"
)

// Errors returned by the Tracker.
var (
	ErrRunning  = errors.New("tracking: already running")
	ErrNoDevice = errors.New("tracking: nil device")
)

// DefaultRate is the detection rate in Hz.
const DefaultRate = 10

// Config configures a Tracker.
type Config struct {
	// Rate is detections per second. Default: 10.
	Rate float64

	// Clock drives the detection ticker. Default: wall clock.
	Clock clock.Clock

	// Logger for tracker events. Default: slog.Default().
	Logger *slog.Logger
}

// Tracker runs face detection on camera frames and reports the offset of
// the best face. A frame without a face reports NoSignal.
type Tracker struct {
	det        Detector
	onPosition func(Position)
	rate       float64
	clock      clock.Clock
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	latest Position
	misses int
}

// New creates a Tracker. onPosition runs on the tracker goroutine each
// time the reported position changes.
func New(det Detector, onPosition func(Position), cfg Config) *Tracker {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if onPosition == nil {
		onPosition = func(Position) {}
	}
	return &Tracker{
		det:        det,
		onPosition: onPosition,
		rate:       cfg.Rate,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With("component", "tracking"),
	}
}

// Start begins tracking faces on dev.
func (t *Tracker) Start(ctx context.Context, dev camera.Device) error {
	if dev == nil {
		return ErrNoDevice
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	ticker := t.clock.Ticker(time.Duration(float64(time.Second) / t.rate))
	go t.loop(ctx, dev, ticker, t.done)

	t.logger.Info("face tracking started", "rate_hz", t.rate)
	return nil
}

// Stop ends tracking and reports NoSignal. Safe to call when not running.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.report(NoSignal)
	t.logger.Info("face tracking stopped")
}

// Latest returns the last reported position.
func (t *Tracker) Latest() Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

func (t *Tracker) loop(ctx context.Context, dev camera.Device, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.detect(ctx, dev) {
				return
			}
		}
	}
}

func (t *Tracker) detect(ctx context.Context, dev camera.Device) bool {
	img, err := dev.ReadFrame(ctx)
	if err != nil {
		if errors.Is(err, camera.ErrClosed) || ctx.Err() != nil {
			return false
		}
		t.logger.Debug("tracking frame grab failed", "err", err)
		return true
	}

	dets, err := t.det.Detect(img)
	if err != nil {
		t.logger.Warn("face detection failed", "err", err)
		return true
	}

	best := SelectBest(dets)
	if best == nil {
		t.miss()
		t.report(NoSignal)
		return true
	}
	t.report(FromDetection(*best))
	return true
}

func (t *Tracker) miss() {
	t.mu.Lock()
	t.misses++
	n := t.misses
	t.mu.Unlock()
	if n == 10 {
		t.logger.Debug("face lost", "misses", n)
	}
}

func (t *Tracker) report(p Position) {
	t.mu.Lock()
	if p != NoSignal {
		t.misses = 0
	}
	changed := p != t.latest
	t.latest = p
	t.mu.Unlock()

	if changed {
		t.onPosition(p)
	}
}
