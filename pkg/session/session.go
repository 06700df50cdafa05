package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-neo/pkg/activity"
	"github.com/teslashibe/go-neo/pkg/audioio"
	"github.com/teslashibe/go-neo/pkg/camera"
	"github.com/teslashibe/go-neo/pkg/live"
	"github.com/teslashibe/go-neo/pkg/media"
	"github.com/teslashibe/go-neo/pkg/pcm"
	"github.com/teslashibe/go-neo/pkg/playback"
	"github.com/teslashibe/go-neo/pkg/sampler"
	"github.com/teslashibe/go-neo/pkg/tracking"
)

// session is one open channel plus the devices it holds.
type session struct {
	id     string
	c      *Controller
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	sink  audioio.Sink
	mic   *media.MicrophoneStream
	cam   *media.CameraStream
	ch    live.Channel
	sched *playback.Scheduler

	mu      sync.Mutex
	gctx    context.Context
	sampler *sampler.Sampler
	tracker *tracking.Tracker

	local       atomic.Bool
	releaseOnce sync.Once
	done        chan struct{}
}

// startSession acquires devices, opens the channel and launches the pumps.
// Every failure releases whatever was acquired. Callers hold life.
func (c *Controller) startSession(ctx context.Context) error {
	if c.cfg.Credential == "" {
		return c.fail(ErrMissingCredential)
	}
	if c.cfg.Dialer == nil {
		return c.fail(ErrNoDialer)
	}

	id := uuid.NewString()
	s := &session{
		id:     id,
		c:      c,
		logger: c.logger.With("session", id),
		done:   make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(c.base)
	launched := false
	defer func() {
		if !launched {
			s.release()
		}
	}()

	s.logger.Info("waking")

	if c.cfg.Speaker == nil {
		return c.fail(&media.AcquisitionError{Kind: "speaker", Reason: "no output configured"})
	}
	sink, err := c.cfg.Speaker(ctx)
	if err != nil {
		return c.fail(&media.AcquisitionError{Kind: "speaker", Reason: "open failed", Cause: err})
	}
	s.sink = sink
	if err := sink.Start(s.ctx); err != nil {
		return c.fail(&media.AcquisitionError{Kind: "speaker", Reason: "start failed", Cause: err})
	}

	mic, err := c.acq.AcquireMicrophone(s.ctx)
	if err != nil {
		return c.fail(err)
	}
	s.mic = mic

	c.mu.Lock()
	wantCamera := c.cameraEnabled
	voice := c.voice
	c.mu.Unlock()

	caps := Capabilities{Audio: true}
	if wantCamera {
		res := c.acq.AcquireCamera(ctx, c.cfg.CameraTimeout)
		if res.OK() {
			s.cam = res.Stream
			caps.Video = true
		} else {
			s.logger.Warn("continuing without video", "reason", res.Reason)
			caps.VideoReason = res.Reason
			c.mu.Lock()
			c.cameraEnabled = false
			c.mu.Unlock()
		}
	}

	ch, err := c.cfg.Dialer.Dial(ctx, live.Setup{
		Model:      c.cfg.Model,
		Voice:      voice,
		Persona:    c.cfg.Persona,
		Tools:      Tools(),
		Transcribe: c.cfg.Transcribe,
	})
	if err != nil {
		if !live.IsChannelError(err) {
			err = &live.ChannelError{Op: "dial", Cause: err}
		}
		return c.fail(err)
	}
	s.ch = ch
	if err := s.awaitSetup(ctx); err != nil {
		return c.fail(err)
	}

	s.sched = playback.New(sink.Timeline(), playback.Config{
		Clock:  c.cfg.Clock,
		Logger: s.logger,
		OnScheduled: func(playback.Placement) {
			c.metrics.IncrementScheduled()
			c.machine.Apply(activity.AudioScheduled{})
		},
		OnDrained: func() {
			c.machine.Apply(activity.PlaybackDrained{})
		},
		OnLevel: c.setLevel,
	})

	c.metrics.Reset()
	c.mu.Lock()
	c.sess = s
	c.caps = caps
	c.lastErr = ""
	c.machine.Apply(activity.ChannelOpened{})
	c.mu.Unlock()
	c.notify()

	s.launch()
	launched = true
	s.logger.Info("session live", "voice", voice, "video", caps.Video)
	return nil
}

// awaitSetup waits for the handshake. Content arriving before it is dropped.
func (s *session) awaitSetup(ctx context.Context) error {
	events := s.ch.Events()
	for {
		select {
		case <-ctx.Done():
			return &live.ChannelError{Op: "setup", Cause: ctx.Err()}
		case ev, ok := <-events:
			if !ok {
				return &live.ChannelError{Op: "setup", Cause: live.ErrClosed}
			}
			switch e := ev.(type) {
			case live.SetupComplete:
				return nil
			case live.Closed:
				if live.IsChannelError(e.Err) {
					return e.Err
				}
				cause := e.Err
				if cause == nil {
					cause = errRemoteClosed
				}
				return &live.ChannelError{Op: "setup", Cause: cause}
			default:
				s.logger.Debug("dropping event before setup", "event", fmt.Sprintf("%T", ev))
			}
		}
	}
}

func (s *session) launch() {
	c := s.c
	g, gctx := errgroup.WithContext(s.ctx)
	s.mu.Lock()
	s.gctx = gctx
	s.mu.Unlock()

	g.Go(func() error { return s.sched.Run(gctx) })
	g.Go(func() error { return s.pumpMicrophone(gctx) })
	g.Go(func() error { return s.readEvents(gctx) })
	g.Go(func() error {
		c.machine.RunPersonality(gctx, c.cfg.Personality.Interval, c.cfg.Personality.Probability)
		return nil
	})

	if s.cam != nil {
		smp := sampler.New(s.ch, sampler.Config{
			Clock:   c.cfg.Clock,
			Logger:  s.logger,
			OnFrame: c.cfg.OnFrame,
		})
		if err := smp.Start(gctx, s.cam.Device, c.frames.Current()); err != nil {
			s.logger.Warn("frame sampler not started", "err", err)
		}
		s.mu.Lock()
		s.sampler = smp
		s.mu.Unlock()

		if c.cfg.Detector != nil {
			t := tracking.New(c.cfg.Detector, c.UpdateTracking, tracking.Config{
				Rate:   c.cfg.TrackingRate,
				Clock:  c.cfg.Clock,
				Logger: s.logger,
			})
			if err := t.Start(gctx, s.cam.Device); err != nil {
				s.logger.Warn("face tracking not started", "err", err)
			} else {
				s.mu.Lock()
				s.tracker = t
				s.mu.Unlock()
			}
		}
	}

	go func() {
		err := g.Wait()
		s.release()
		c.sessionEnded(s, err)
		close(s.done)
	}()
}

// stop ends the session locally and waits for teardown.
func (s *session) stop() {
	s.local.Store(true)
	s.cancel()
	<-s.done
}

// release frees everything the session holds. It is idempotent.
func (s *session) release() {
	s.releaseOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		smp, t := s.sampler, s.tracker
		s.mu.Unlock()
		if smp != nil {
			smp.Stop()
		}
		if t != nil {
			t.Stop()
		}

		if s.ch != nil {
			if err := s.ch.Close(); err != nil {
				s.logger.Warn("channel close failed", "err", err)
			}
		}
		if err := s.mic.Release(); err != nil {
			s.logger.Warn("microphone release failed", "err", err)
		}
		if err := s.cam.Release(); err != nil {
			s.logger.Warn("camera release failed", "err", err)
		}
		if s.sink != nil {
			if err := errors.Join(s.sink.Stop(), s.sink.Close()); err != nil {
				s.logger.Warn("speaker release failed", "err", err)
			}
		}
		s.logger.Info("session released")
	})
}

// sessionEnded publishes the end of a launched session.
func (c *Controller) sessionEnded(s *session, err error) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.caps = Capabilities{}
	c.level = 0

	var ev activity.Event = activity.ChannelClosed{}
	switch {
	case s.local.Load() || err == nil:
		s.logger.Info("session closed")
	case errors.Is(err, errRemoteClosed):
		s.logger.Info("session closed by remote")
	case media.IsAcquisition(err):
		c.lastErr = err.Error()
		ev = activity.AcquisitionFailed{Err: err}
		s.logger.Error("session lost a device", "err", err)
	default:
		c.lastErr = err.Error()
		ev = activity.ChannelClosed{Err: err}
		s.logger.Error("session failed", "err", err)
	}
	c.machine.Apply(ev)
	c.mu.Unlock()
	c.notify()
}

// pumpMicrophone encodes captured audio and sends it on the channel.
func (s *session) pumpMicrophone(ctx context.Context) error {
	stream := s.mic.Source.Stream()
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return &media.AcquisitionError{Kind: media.Microphone, Reason: "capture stopped"}
			}
			samples := chunk.Mono()
			if chunk.SampleRate > 0 && chunk.SampleRate != pcm.CaptureRate {
				samples = audioio.ResampleFloat(samples, chunk.SampleRate, pcm.CaptureRate)
			}
			if len(samples) == 0 {
				continue
			}
			if err := s.ch.SendAudio(ctx, pcm.EncodeOutbound(samples)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			s.c.metrics.IncrementAudioSent()
		}
	}
}

// readEvents dispatches channel events until the channel or ctx ends.
func (s *session) readEvents(ctx context.Context) error {
	events := s.ch.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errRemoteClosed
			}
			if err := s.handle(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (s *session) handle(ctx context.Context, ev live.Event) error {
	c := s.c
	switch e := ev.(type) {
	case live.ContentChunk:
		s.play(ctx, e)

	case live.Interrupted:
		n, err := s.sched.Interrupt(ctx)
		if err != nil {
			return nil
		}
		c.metrics.IncrementInterruptions()
		c.machine.Apply(activity.Interrupted{})
		s.logger.Debug("interrupted", "stopped", n)

	case live.ToolInvocation:
		c.metrics.IncrementToolCalls()
		c.machine.Apply(activity.RemoteCue{State: activity.Thinking})
		res, err := c.invokeTool(e)
		if err != nil {
			c.metrics.IncrementToolErrors()
			s.logger.Warn("tool call failed", "tool", e.Name, "err", err)
		}
		return s.ch.SendToolResult(ctx, res)

	case live.InputTranscript:
		c.metrics.MarkSpeechEnd()
		c.machine.Apply(activity.RemoteCue{State: activity.Listening})
		s.logger.Debug("heard", "text", e.Text)

	case live.TurnComplete:
		c.metrics.MarkTurnComplete()
		c.machine.Apply(activity.TurnEnded{Playing: s.sched.Active() > 0})

	case live.GoAway:
		s.logger.Warn("service will close the session", "time_left", e.TimeLeft)

	case live.SetupComplete:

	case live.Closed:
		if e.Err != nil {
			return e.Err
		}
		return errRemoteClosed
	}
	return nil
}

// play decodes and schedules one chunk. A malformed chunk is dropped and
// the face glitches; the session continues.
func (s *session) play(ctx context.Context, e live.ContentChunk) {
	c := s.c
	c.metrics.MarkChunk()

	buf, err := pcm.DecodeInbound(e.Data, chunkRate(e.MIMEType), 1)
	if err != nil {
		c.metrics.IncrementDecodeErrors()
		s.logger.Warn("dropping malformed audio chunk", "err", err)
		c.machine.Apply(activity.Excursion{State: activity.Distorted, Source: activity.FromSession})
		return
	}
	if _, err := s.sched.Schedule(ctx, buf); err != nil {
		s.logger.Debug("chunk not scheduled", "err", err)
	}
}

// chunkRate reads the rate parameter of an audio/pcm MIME type.
func chunkRate(mimeType string) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return pcm.PlaybackRate
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return pcm.PlaybackRate
	}
	return rate
}

func (s *session) restartSampler(cfg camera.Config) error {
	s.mu.Lock()
	smp, ctx := s.sampler, s.gctx
	s.mu.Unlock()
	if smp == nil {
		return nil
	}
	smp.Stop()
	return smp.Start(ctx, s.cam.Device, cfg)
}

func (s *session) frameStats() sampler.Stats {
	s.mu.Lock()
	smp := s.sampler
	s.mu.Unlock()
	if smp == nil {
		return sampler.Stats{}
	}
	return smp.Stats()
}
