// Package playback schedules decoded audio chunks for gapless output.
//
// A Scheduler is a single-owner loop: every change to the next start time
// and the set of active chunks happens inside Run, so schedule, interrupt
// and completion events are serialized even though they arrive from the
// channel reader, the output device callback, and timers.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-neo/pkg/audioio"
	"github.com/teslashibe/go-neo/pkg/pcm"
)

// Errors returned by the Scheduler.
var (
	ErrStopped        = errors.New("playback: scheduler stopped")
	ErrAlreadyRunning = errors.New("playback: scheduler already running")
	ErrNilBuffer      = errors.New("playback: nil buffer")
)

// Output is the shared output clock chunks are placed on.
// *audioio.Timeline satisfies it.
type Output interface {
	CurrentTime() float64
	Start(buf *pcm.Buffer, at float64, onEnded func()) audioio.Voice
}

// Config configures a Scheduler.
type Config struct {
	// Clock drives the loudness decay. Default: wall clock.
	Clock clock.Clock

	// Logger for scheduler events. Default: slog.Default().
	Logger *slog.Logger

	// OnScheduled runs after a chunk is placed, before any completion of
	// that chunk is reported.
	// It runs on the scheduler loop and must not call back into the Scheduler.
	OnScheduled func(p Placement)

	// OnDrained runs when the last active chunk finishes naturally.
	// It runs on the scheduler loop and must not call back into the Scheduler.
	OnDrained func()

	// OnLevel receives loudness updates in [0, 1].
	// It runs on the scheduler loop and must not call back into the Scheduler.
	OnLevel func(level float64)
}

// Placement describes where a chunk landed on the output clock.
type Placement struct {
	ID       uint64
	Start    float64
	Duration float64
	Level    float64
}

// End returns the time the chunk finishes.
func (p Placement) End() float64 {
	return p.Start + p.Duration
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	NextStartTime float64 `json:"next_start_time"`
	Active        int     `json:"active"`
	Level         float64 `json:"level"`
}

type chunk struct {
	voice audioio.Voice
	Placement
}

type scheduleReq struct {
	buf   *pcm.Buffer
	reply chan Placement
}

// Scheduler places chunks back to back on an Output.
type Scheduler struct {
	out    Output
	clock  clock.Clock
	logger *slog.Logger

	onScheduled func(Placement)
	onDrained   func()
	onLevel     func(float64)

	scheduleCh  chan scheduleReq
	interruptCh chan chan int
	endedCh     chan uint64
	decayCh     chan uint64
	done        chan struct{}
	running     atomic.Bool

	// Owned by Run.
	nextStart float64
	active    map[uint64]*chunk
	seq       uint64
	levelGen  uint64
	level     float64
	decay     *clock.Timer

	// Published by Run for lock-free reads.
	statNext   atomic.Uint64
	statActive atomic.Int64
	statLevel  atomic.Uint64
}

// New creates a Scheduler for out. Call Run to start processing.
func New(out Output, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		out:         out,
		clock:       cfg.Clock,
		logger:      cfg.Logger.With("component", "playback"),
		onScheduled: cfg.OnScheduled,
		onDrained:   cfg.OnDrained,
		onLevel:     cfg.OnLevel,
		scheduleCh:  make(chan scheduleReq),
		interruptCh: make(chan chan int),
		endedCh:     make(chan uint64, 64),
		decayCh:     make(chan uint64, 8),
		done:        make(chan struct{}),
		active:      make(map[uint64]*chunk),
	}
}

// Run processes requests until ctx is cancelled. Chunks still playing when
// Run returns are stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-s.scheduleCh:
			req.reply <- s.schedule(req.buf)

		case reply := <-s.interruptCh:
			reply <- s.interrupt()

		case id := <-s.endedCh:
			s.ended(id)

		case gen := <-s.decayCh:
			if gen == s.levelGen {
				s.setLevel(0)
			}
		}
	}
}

// Schedule places buf at max(next start time, output clock) and advances
// the next start time by its duration.
func (s *Scheduler) Schedule(ctx context.Context, buf *pcm.Buffer) (Placement, error) {
	if buf == nil {
		return Placement{}, ErrNilBuffer
	}
	req := scheduleReq{buf: buf, reply: make(chan Placement, 1)}
	select {
	case s.scheduleCh <- req:
	case <-ctx.Done():
		return Placement{}, ctx.Err()
	case <-s.done:
		return Placement{}, ErrStopped
	}
	return <-req.reply, nil
}

// Interrupt halts every active chunk, clears the set and resets the next
// start time to 0. It returns how many chunks were stopped; with none
// active it changes nothing.
func (s *Scheduler) Interrupt(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	select {
	case s.interruptCh <- reply:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.done:
		return 0, ErrStopped
	}
	return <-reply, nil
}

// Status returns the last published scheduler state.
func (s *Scheduler) Status() Status {
	return Status{
		NextStartTime: math.Float64frombits(s.statNext.Load()),
		Active:        int(s.statActive.Load()),
		Level:         math.Float64frombits(s.statLevel.Load()),
	}
}

// NextStartTime returns the time the next scheduled chunk would start at.
func (s *Scheduler) NextStartTime() float64 {
	return s.Status().NextStartTime
}

// Active returns the number of chunks scheduled or playing.
func (s *Scheduler) Active() int {
	return s.Status().Active
}

// Done is closed once Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) schedule(buf *pcm.Buffer) Placement {
	startAt := math.Max(s.nextStart, s.out.CurrentTime())
	s.seq++
	id := s.seq

	c := &chunk{Placement: Placement{
		ID:       id,
		Start:    startAt,
		Duration: buf.Duration(),
		Level:    pcm.Loudness(buf),
	}}
	c.voice = s.out.Start(buf, startAt, func() { s.notifyEnded(id) })
	s.active[id] = c
	s.nextStart = startAt + c.Duration

	s.logger.Debug("chunk scheduled",
		"id", id,
		"start", startAt,
		"duration", c.Duration,
		"active", len(s.active),
	)

	s.setLevel(c.Level)
	s.levelGen++
	gen := s.levelGen
	if s.decay != nil {
		s.decay.Stop()
	}
	s.decay = s.clock.AfterFunc(time.Duration(c.Duration*float64(time.Second)), func() {
		select {
		case s.decayCh <- gen:
		case <-s.done:
		}
	})

	s.publish()
	if s.onScheduled != nil {
		s.onScheduled(c.Placement)
	}
	return c.Placement
}

func (s *Scheduler) interrupt() int {
	n := len(s.active)
	if n == 0 {
		// nextStart may still hold the last chunk's end, which is already
		// in the past once playback drained; max(nextStart, now) ignores it.
		return 0
	}
	for id, c := range s.active {
		c.voice.Stop()
		delete(s.active, id)
	}
	s.nextStart = 0
	s.levelGen++
	if s.decay != nil {
		s.decay.Stop()
		s.decay = nil
	}
	s.setLevel(0)
	s.publish()
	s.logger.Debug("playback interrupted", "stopped", n)
	return n
}

func (s *Scheduler) ended(id uint64) {
	if _, ok := s.active[id]; !ok {
		// Already stopped by an interrupt.
		return
	}
	delete(s.active, id)
	s.publish()
	if len(s.active) == 0 {
		s.logger.Debug("playback drained")
		if s.onDrained != nil {
			s.onDrained()
		}
	}
}

// notifyEnded runs on the output device's thread.
func (s *Scheduler) notifyEnded(id uint64) {
	select {
	case s.endedCh <- id:
	case <-s.done:
	}
}

func (s *Scheduler) setLevel(level float64) {
	if level == s.level {
		return
	}
	s.level = level
	s.statLevel.Store(math.Float64bits(level))
	if s.onLevel != nil {
		s.onLevel(level)
	}
}

func (s *Scheduler) publish() {
	s.statNext.Store(math.Float64bits(s.nextStart))
	s.statActive.Store(int64(len(s.active)))
}

func (s *Scheduler) shutdown() {
	for id, c := range s.active {
		c.voice.Stop()
		delete(s.active, id)
	}
	if s.decay != nil {
		s.decay.Stop()
	}
	s.nextStart = 0
	s.publish()
	s.setLevel(0)
}
