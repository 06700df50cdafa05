package sampler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-neo/internal/log"
	"github.com/teslashibe/go-neo/pkg/camera"
	"github.com/teslashibe/go-neo/pkg/live"
)

type recorder struct {
	mu     sync.Mutex
	frames []live.ImageFrame
	err    error
}

func (r *recorder) SendImage(_ context.Context, f live.ImageFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
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

func TestEncode(t *testing.T) {
	frame, err := Encode(camera.TestPattern(640, 480), 320, 240, 40)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if frame.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q", frame.MIMEType)
	}

	raw, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		t.Fatalf("frame is not base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("frame is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("frame is %dx%d, want 320x240", b.Dx(), b.Dy())
	}

	hi, _ := Encode(camera.TestPattern(640, 480), 320, 240, 95)
	if len(hi.Data) <= len(frame.Data) {
		t.Errorf("quality 95 (%d bytes) not larger than quality 40 (%d bytes)", len(hi.Data), len(frame.Data))
	}
}

func TestSamplerTicks(t *testing.T) {
	mock := clock.NewMock()
	rec := &recorder{}
	dev := camera.NewMockDevice(64, 48)
	s := New(rec, Config{Clock: mock, Logger: log.Discard()})

	if err := s.Start(context.Background(), dev, camera.DefaultConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background(), dev, camera.DefaultConfig()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Start() error = %v, want ErrRunning", err)
	}

	// 2 fps: nothing before the first 500ms tick.
	mock.Add(400 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Fatalf("sent %d frames before first tick", n)
	}

	for i := 1; i <= 3; i++ {
		mock.Add(500 * time.Millisecond)
		want := i
		waitFor(t, "frame", func() bool { return rec.count() >= want })
	}

	s.Stop()
	s.Stop()
	if s.Running() {
		t.Error("Running() after Stop")
	}
	sent := rec.count()
	mock.Add(5 * time.Second)
	time.Sleep(5 * time.Millisecond)
	if rec.count() != sent {
		t.Errorf("frames sent after Stop: %d -> %d", sent, rec.count())
	}
	if got := s.Stats().Frames; got != int64(sent) {
		t.Errorf("Stats().Frames = %d, want %d", got, sent)
	}
}

func TestSamplerErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		s := New(&recorder{}, Config{Logger: log.Discard()})
		cfg := camera.DefaultConfig()
		cfg.FPS = 0
		if err := s.Start(context.Background(), camera.NewMockDevice(8, 8), cfg); !errors.Is(err, ErrBadConfig) {
			t.Errorf("Start() error = %v, want ErrBadConfig", err)
		}
		if err := s.Start(context.Background(), nil, camera.DefaultConfig()); !errors.Is(err, ErrNoDevice) {
			t.Errorf("Start(nil) error = %v, want ErrNoDevice", err)
		}
	})

	t.Run("grab failure is counted and sampling continues", func(t *testing.T) {
		mock := clock.NewMock()
		rec := &recorder{}
		dev := camera.NewMockDevice(32, 24)
		dev.SetError(errors.New("frame dropped"))
		s := New(rec, Config{Clock: mock, Logger: log.Discard()})
		s.Start(context.Background(), dev, camera.DefaultConfig())
		defer s.Stop()

		mock.Add(500 * time.Millisecond)
		waitFor(t, "error count", func() bool { return s.Stats().Errors == 1 })

		dev.SetError(nil)
		mock.Add(500 * time.Millisecond)
		waitFor(t, "frame after recovery", func() bool { return rec.count() == 1 })
	})

	t.Run("closed channel stops sampling", func(t *testing.T) {
		mock := clock.NewMock()
		rec := &recorder{}
		rec.fail(&live.ChannelError{Op: "send", Cause: live.ErrClosed})
		s := New(rec, Config{Clock: mock, Logger: log.Discard()})
		s.Start(context.Background(), camera.NewMockDevice(32, 24), camera.DefaultConfig())

		mock.Add(500 * time.Millisecond)
		waitFor(t, "loop exit", func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			select {
			case <-s.done:
				return true
			default:
				return false
			}
		})
		s.Stop()
	})

	t.Run("closed device stops sampling", func(t *testing.T) {
		mock := clock.NewMock()
		dev := camera.NewMockDevice(32, 24)
		dev.Close()
		s := New(&recorder{}, Config{Clock: mock, Logger: log.Discard()})
		s.Start(context.Background(), dev, camera.DefaultConfig())

		mock.Add(500 * time.Millisecond)
		waitFor(t, "loop exit", func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			select {
			case <-s.done:
				return true
			default:
				return false
			}
		})
		if s.Stats().Errors != 0 {
			t.Errorf("closed device counted as error")
		}
		s.Stop()
	})
}

func TestSamplerOnFrame(t *testing.T) {
	mock := clock.NewMock()
	rec := &recorder{}
	seen := make(chan live.ImageFrame, 4)
	s := New(rec, Config{
		Clock:   mock,
		Logger:  log.Discard(),
		OnFrame: func(f live.ImageFrame) { seen <- f },
	})
	if err := s.Start(context.Background(), camera.NewMockDevice(64, 48), camera.DefaultConfig()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	mock.Add(500 * time.Millisecond)
	select {
	case f := <-seen:
		if f.MIMEType != live.ImageMIMEType || f.Data == "" {
			t.Errorf("frame = %q (%d bytes)", f.MIMEType, len(f.Data))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnFrame not called")
	}

	t.Run("not called for failed sends", func(t *testing.T) {
		rec.fail(errors.New("congested"))
		mock.Add(500 * time.Millisecond)
		waitFor(t, "send error", func() bool { return s.Stats().Errors >= 1 })
		select {
		case <-seen:
			t.Error("OnFrame called for a failed send")
		default:
		}
	})
}
