package playback

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-neo/internal/log"
	"github.com/teslashibe/go-neo/pkg/audioio"
	"github.com/teslashibe/go-neo/pkg/pcm"
)

const rate = 1000

func buffer(seconds float64, amp float32) *pcm.Buffer {
	samples := make([]float32, int(seconds*rate))
	for i := range samples {
		samples[i] = amp
	}
	return &pcm.Buffer{SampleRate: rate, Channels: [][]float32{samples}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	sched    *Scheduler
	timeline *audioio.Timeline
	clock    *clock.Mock
	drained  atomic.Int32

	mu     sync.Mutex
	levels []float64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		timeline: audioio.NewTimeline(rate),
		clock:    clock.NewMock(),
	}
	h.sched = New(h.timeline, Config{
		Clock:     h.clock,
		Logger:    log.Discard(),
		OnDrained: func() { h.drained.Add(1) },
		OnLevel: func(l float64) {
			h.mu.Lock()
			h.levels = append(h.levels, l)
			h.mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go h.sched.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.sched.Done()
	})
	return h
}

func (h *harness) lastLevel() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.levels) == 0 {
		return 0
	}
	return h.levels[len(h.levels)-1]
}

func TestSchedule_OrderedAndGapless(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	var prev Placement
	for i := 0; i < 50; i++ {
		// Let the output clock run for an arbitrary amount between submissions.
		h.timeline.Advance(float64(rng.Intn(300)) / rate)

		p, err := h.sched.Schedule(ctx, buffer(float64(1+rng.Intn(200))/rate, 0.1))
		if err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
		if i > 0 {
			if p.Start < prev.Start {
				t.Fatalf("chunk %d starts at %v before previous %v", i, p.Start, prev.Start)
			}
			if p.Start < prev.End()-1e-9 {
				t.Fatalf("chunk %d starts at %v, overlapping previous ending at %v", i, p.Start, prev.End())
			}
		}
		if now := h.timeline.CurrentTime(); p.Start < now-1e-9 {
			t.Fatalf("chunk %d starts in the past: %v < %v", i, p.Start, now)
		}
		if got := h.sched.NextStartTime(); got != p.End() {
			t.Fatalf("NextStartTime() = %v, want %v", got, p.End())
		}
		prev = p
	}
}

func TestSchedule_SingleChunkDrains(t *testing.T) {
	h := newHarness(t)

	p, err := h.sched.Schedule(context.Background(), buffer(0.5, 0.25))
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if p.Start != 0 || p.Duration != 0.5 {
		t.Errorf("placement = %+v, want start 0 duration 0.5", p)
	}
	if got := h.sched.NextStartTime(); got != 0.5 {
		t.Errorf("NextStartTime() = %v, want 0.5", got)
	}
	if h.sched.Active() != 1 {
		t.Errorf("Active() = %d, want 1", h.sched.Active())
	}

	h.timeline.Advance(0.4)
	time.Sleep(5 * time.Millisecond)
	if h.drained.Load() != 0 {
		t.Fatal("drained before chunk finished")
	}

	h.timeline.Advance(0.1)
	waitFor(t, "drain", func() bool { return h.drained.Load() == 1 })
	if h.sched.Active() != 0 {
		t.Errorf("Active() = %d, want 0", h.sched.Active())
	}
}

func TestSchedule_DrainsOnlyWhenSetEmpty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, _ := h.sched.Schedule(ctx, buffer(0.3, 0.1))
	second, _ := h.sched.Schedule(ctx, buffer(0.3, 0.1))
	if second.Start < first.Start+0.3 {
		t.Fatalf("second starts at %v, want >= %v", second.Start, first.Start+0.3)
	}

	h.timeline.Advance(0.3)
	waitFor(t, "first chunk end", func() bool { return h.sched.Active() == 1 })
	if h.drained.Load() != 0 {
		t.Fatal("drained with a chunk still active")
	}

	h.timeline.Advance(0.3)
	waitFor(t, "drain", func() bool { return h.drained.Load() == 1 })
}

func TestInterrupt(t *testing.T) {
	t.Run("clears active chunks", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		h.sched.Schedule(ctx, buffer(0.3, 0.1))
		h.sched.Schedule(ctx, buffer(0.3, 0.1))
		h.timeline.Advance(0.1)

		n, err := h.sched.Interrupt(ctx)
		if err != nil {
			t.Fatalf("Interrupt() error = %v", err)
		}
		if n != 2 {
			t.Errorf("Interrupt() stopped %d, want 2", n)
		}
		if h.sched.Active() != 0 {
			t.Errorf("Active() = %d, want 0", h.sched.Active())
		}
		if h.sched.NextStartTime() != 0 {
			t.Errorf("NextStartTime() = %v, want 0", h.sched.NextStartTime())
		}
		if h.timeline.Active() != 0 {
			t.Errorf("timeline still has %d voices", h.timeline.Active())
		}

		// Stopped chunks never report drained.
		h.timeline.Advance(1)
		time.Sleep(5 * time.Millisecond)
		if h.drained.Load() != 0 {
			t.Error("interrupt triggered drain")
		}
		if h.lastLevel() != 0 {
			t.Errorf("level = %v after interrupt, want 0", h.lastLevel())
		}
	})

	t.Run("no-op when empty", func(t *testing.T) {
		h := newHarness(t)
		n, err := h.sched.Interrupt(context.Background())
		if err != nil || n != 0 {
			t.Errorf("Interrupt() = %d, %v; want 0, nil", n, err)
		}
		if h.sched.NextStartTime() != 0 {
			t.Errorf("NextStartTime() = %v, want 0", h.sched.NextStartTime())
		}
	})

	t.Run("empty after drain starts next chunk at output clock", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		h.sched.Schedule(ctx, buffer(0.3, 0.1))
		h.timeline.Advance(0.3)
		waitFor(t, "drain", func() bool { return h.drained.Load() == 1 })
		h.timeline.Advance(0.2)

		if n, _ := h.sched.Interrupt(ctx); n != 0 {
			t.Errorf("Interrupt() stopped %d, want 0", n)
		}
		p, _ := h.sched.Schedule(ctx, buffer(0.1, 0.1))
		if p.Start != 0.5 {
			t.Errorf("Start = %v, want output clock 0.5", p.Start)
		}
	})

	t.Run("schedule after interrupt starts at output clock", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		h.sched.Schedule(ctx, buffer(1, 0.1))
		h.timeline.Advance(0.2)
		h.sched.Interrupt(ctx)

		p, _ := h.sched.Schedule(ctx, buffer(0.1, 0.1))
		if p.Start != 0.2 {
			t.Errorf("Start = %v, want output clock 0.2", p.Start)
		}
	})
}

func TestLevel(t *testing.T) {
	t.Run("decays after duration", func(t *testing.T) {
		h := newHarness(t)
		h.sched.Schedule(context.Background(), buffer(0.5, 0.25))

		if got := h.sched.Status().Level; got != 0.25 {
			t.Fatalf("Level = %v, want 0.25", got)
		}
		h.clock.Add(499 * time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		if got := h.sched.Status().Level; got != 0.25 {
			t.Fatalf("Level decayed early: %v", got)
		}
		h.clock.Add(time.Millisecond)
		waitFor(t, "level decay", func() bool { return h.sched.Status().Level == 0 })
		if h.lastLevel() != 0 {
			t.Errorf("OnLevel last = %v, want 0", h.lastLevel())
		}
	})

	t.Run("older chunk does not zero a newer level", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		h.sched.Schedule(ctx, buffer(0.5, 0.25))
		h.clock.Add(300 * time.Millisecond)
		h.sched.Schedule(ctx, buffer(0.5, 0.5))

		// First chunk's original deadline passes.
		h.clock.Add(250 * time.Millisecond)
		time.Sleep(5 * time.Millisecond)
		if got := h.sched.Status().Level; got != 0.5 {
			t.Fatalf("Level = %v, want 0.5", got)
		}

		h.clock.Add(250 * time.Millisecond)
		waitFor(t, "level decay", func() bool { return h.sched.Status().Level == 0 })
	})
}

func TestStopped(t *testing.T) {
	s := New(audioio.NewTimeline(rate), Config{Logger: log.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if _, err := s.Schedule(context.Background(), buffer(1, 0.1)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if _, err := s.Schedule(context.Background(), buffer(1, 0.1)); !errors.Is(err, ErrStopped) {
		t.Errorf("Schedule() after stop = %v, want ErrStopped", err)
	}
	if _, err := s.Interrupt(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Interrupt() after stop = %v, want ErrStopped", err)
	}
	if s.Active() != 0 {
		t.Errorf("Active() = %d after stop, want 0", s.Active())
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestScheduleNil(t *testing.T) {
	s := New(audioio.NewTimeline(rate), Config{})
	if _, err := s.Schedule(context.Background(), nil); !errors.Is(err, ErrNilBuffer) {
		t.Errorf("Schedule(nil) = %v, want ErrNilBuffer", err)
	}
}

func TestScheduleContextCancelled(t *testing.T) {
	// Run never started: the request cannot be delivered.
	s := New(audioio.NewTimeline(rate), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Schedule(ctx, buffer(0.1, 0)); !errors.Is(err, context.Canceled) {
		t.Errorf("Schedule() = %v, want context.Canceled", err)
	}
}

func TestSchedule_ScheduledBeforeDrained(t *testing.T) {
	timeline := audioio.NewTimeline(rate)
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	sched := New(timeline, Config{
		Clock:       clock.NewMock(),
		Logger:      log.Discard(),
		OnScheduled: func(Placement) { record("scheduled") },
		OnDrained:   func() { record("drained") },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-sched.Done()
	}()
	go sched.Run(ctx)

	if _, err := sched.Schedule(ctx, buffer(0.01, 0.2)); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	timeline.Render(make([]float32, 20))

	waitFor(t, "drain", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if order[0] != "scheduled" || order[1] != "drained" {
		t.Errorf("callback order = %v", order)
	}
}
