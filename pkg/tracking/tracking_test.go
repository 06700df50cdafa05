package tracking

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-neo/internal/log"
	"github.com/teslashibe/go-neo/pkg/camera"
)

func TestDetectionCenter(t *testing.T) {
	tests := []struct {
		name    string
		det     Detection
		expectX float64
		expectY float64
	}{
		{"center of image", Detection{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}, 0.5, 0.5},
		{"top left corner", Detection{X: 0, Y: 0, W: 0.2, H: 0.2}, 0.1, 0.1},
		{"bottom right corner", Detection{X: 0.8, Y: 0.8, W: 0.2, H: 0.2}, 0.9, 0.9},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x, y := tc.det.Center()
			if math.Abs(x-tc.expectX) > 1e-9 || math.Abs(y-tc.expectY) > 1e-9 {
				t.Errorf("Center() = (%.2f, %.2f), want (%.2f, %.2f)", x, y, tc.expectX, tc.expectY)
			}
		})
	}
}

func TestSelectBest(t *testing.T) {
	if SelectBest(nil) != nil {
		t.Error("SelectBest(nil) should be nil")
	}

	dets := []Detection{
		{X: 0.1, Y: 0.1, W: 0.1, H: 0.1, Confidence: 0.6},
		{X: 0.5, Y: 0.5, W: 0.3, H: 0.3, Confidence: 0.9},
		{X: 0.0, Y: 0.0, W: 0.05, H: 0.05, Confidence: 0.95},
	}
	best := SelectBest(dets)
	if best == nil || best.W != 0.3 {
		t.Errorf("SelectBest() = %+v, want the large confident face", best)
	}

	zero := []Detection{{Confidence: 0.4}, {Confidence: 0.8}}
	if got := SelectBest(zero); got == nil || got.Confidence != 0.8 {
		t.Errorf("SelectBest() with zero areas = %+v", got)
	}
}

func TestFromDetection(t *testing.T) {
	tests := []struct {
		name string
		det  Detection
		want Position
	}{
		{"centered", Detection{X: 0.4, Y: 0.4, W: 0.2, H: 0.2}, Position{0, 0}},
		{"viewer left is positive x", Detection{X: 0, Y: 0.4, W: 0.2, H: 0.2}, Position{0.4, 0}},
		{"lower half is positive y", Detection{X: 0.4, Y: 0.7, W: 0.2, H: 0.2}, Position{0, 0.3}},
		{"clamped", Detection{X: 1.2, Y: -0.8, W: 0.2, H: 0.2}, Position{-0.5, -0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromDetection(tt.det)
			if math.Abs(got.X-tt.want.X) > 1e-9 || math.Abs(got.Y-tt.want.Y) > 1e-9 {
				t.Errorf("FromDetection() = %+v, want %+v", got, tt.want)
			}
			if !got.Valid() {
				t.Errorf("FromDetection() = %+v is out of range", got)
			}
		})
	}
}

func TestPosition(t *testing.T) {
	if !NoSignal.IsZero() || (Position{X: 0.1}).IsZero() {
		t.Error("IsZero() wrong")
	}
	if (Position{X: 0.6}).Valid() || (Position{Y: math.NaN()}).Valid() {
		t.Error("Valid() accepted out-of-range position")
	}
	if got := (Position{X: math.NaN(), Y: -3}).Clamp(); got != (Position{0, -0.5}) {
		t.Errorf("Clamp() = %+v", got)
	}
}

type positions struct {
	mu  sync.Mutex
	got []Position
}

func (p *positions) add(pos Position) {
	p.mu.Lock()
	p.got = append(p.got, pos)
	p.mu.Unlock()
}

func (p *positions) all() []Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Position(nil), p.got...)
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

func TestTracker(t *testing.T) {
	mock := clock.NewMock()
	var (
		mu   sync.Mutex
		dets []Detection
	)
	det := FuncDetector(func(image.Image) ([]Detection, error) {
		mu.Lock()
		defer mu.Unlock()
		return dets, nil
	})
	setDets := func(d []Detection) {
		mu.Lock()
		dets = d
		mu.Unlock()
	}

	rec := &positions{}
	tr := New(det, rec.add, Config{Clock: mock, Logger: log.Discard()})
	dev := camera.NewMockDevice(32, 24)

	if err := tr.Start(context.Background(), dev); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := tr.Start(context.Background(), dev); !errors.Is(err, ErrRunning) {
		t.Errorf("second Start() = %v, want ErrRunning", err)
	}

	setDets([]Detection{{X: 0, Y: 0.4, W: 0.2, H: 0.2, Confidence: 0.9}})
	mock.Add(100 * time.Millisecond)
	waitFor(t, "first position", func() bool { return len(rec.all()) == 1 })
	if got := tr.Latest(); math.Abs(got.X-0.4) > 1e-9 {
		t.Errorf("Latest() = %+v", got)
	}

	// Same face again: no duplicate report.
	mock.Add(100 * time.Millisecond)
	waitFor(t, "second frame", func() bool { return dev.Reads() >= 2 })

	setDets(nil)
	mock.Add(100 * time.Millisecond)
	waitFor(t, "no signal", func() bool { return len(rec.all()) == 2 })
	if got := rec.all()[1]; !got.IsZero() {
		t.Errorf("position without face = %+v, want NoSignal", got)
	}

	setDets([]Detection{{X: 0.2, Y: 0.4, W: 0.2, H: 0.2, Confidence: 0.9}, {X: 0.4, Y: 0.7, W: 0.2, H: 0.2, Confidence: 0.3}})
	mock.Add(100 * time.Millisecond)
	waitFor(t, "best of two faces", func() bool { return len(rec.all()) == 3 })
	if got := rec.all()[2]; math.Abs(got.X-0.2) > 1e-9 || math.Abs(got.Y) > 1e-9 {
		t.Errorf("best face position = %+v", got)
	}

	tr.Stop()
	tr.Stop()
	got := rec.all()
	if len(got) != 4 || !got[3].IsZero() {
		t.Fatalf("reports = %v, want a final NoSignal", got)
	}
	if !tr.Latest().IsZero() {
		t.Errorf("Latest() after Stop = %+v", tr.Latest())
	}
}

func TestTrackerStopReportsNoSignal(t *testing.T) {
	mock := clock.NewMock()
	det := FuncDetector(func(image.Image) ([]Detection, error) {
		return []Detection{{X: 0, Y: 0, W: 0.2, H: 0.2, Confidence: 1}}, nil
	})
	rec := &positions{}
	tr := New(det, rec.add, Config{Clock: mock, Logger: log.Discard()})
	tr.Start(context.Background(), camera.NewMockDevice(16, 16))

	mock.Add(100 * time.Millisecond)
	waitFor(t, "position", func() bool { return len(rec.all()) == 1 })

	tr.Stop()
	got := rec.all()
	if len(got) != 2 || !got[1].IsZero() {
		t.Errorf("reports = %v, want a final NoSignal", got)
	}
}

func TestYuNetStubOrMissingModel(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.ModelPath = "/nonexistent/model.onnx"
	if _, err := NewYuNet(cfg); err == nil {
		t.Error("NewYuNet() with missing model should fail")
	}
}
