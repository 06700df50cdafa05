// Package session runs the companion's realtime conversation.
//
// A Controller owns at most one live session at a time. Wake acquires the
// speaker and microphone, optionally the camera, opens the live channel
// and starts the pumps; Sleep tears all of it down in the reverse order.
// Everything the face renderer needs is published as a Snapshot.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-neo/pkg/activity"
	"github.com/teslashibe/go-neo/pkg/audioio"
	"github.com/teslashibe/go-neo/pkg/camera"
	"github.com/teslashibe/go-neo/pkg/live"
	"github.com/teslashibe/go-neo/pkg/media"
	"github.com/teslashibe/go-neo/pkg/tracking"
)

// DefaultVoice is used when no voice is configured.
const DefaultVoice = "Puck"

// DefaultCameraTimeout bounds camera acquisition during Wake.
const DefaultCameraTimeout = 5 * time.Second

// SpeakerOpener creates an unstarted playback sink.
type SpeakerOpener func(ctx context.Context) (audioio.Sink, error)

// Personality configures idle excursions.
type Personality struct {
	Interval    time.Duration
	Probability float64
}

// Config configures a Controller.
type Config struct {
	// Dialer opens live channels. Required for Wake.
	Dialer live.Dialer

	// Credential is the API key. Wake fails before touching any device
	// when it is empty.
	Credential string

	Model      string
	Voice      string
	Persona    string
	Transcribe bool

	Speaker    SpeakerOpener
	Microphone media.MicrophoneOpener
	Camera     camera.Opener

	// CameraEnabled is the initial camera preference.
	CameraEnabled bool
	// CameraTimeout bounds camera acquisition. Default: 5s.
	CameraTimeout time.Duration
	// Frames holds the frame sampling config. Default: camera.DefaultConfig().
	Frames *camera.Manager

	// OnFrame receives every image frame sent to the service.
	OnFrame func(live.ImageFrame)

	// Detector enables face tracking when the camera is live.
	Detector     tracking.Detector
	TrackingRate float64

	Personality Personality

	// Clock drives timers in every component. Default: wall clock.
	Clock clock.Clock
	// Rand picks personality excursions.
	Rand *rand.Rand
	// Logger. Default: slog.Default().
	Logger *slog.Logger
}

// Controller drives the session lifecycle and publishes snapshots.
type Controller struct {
	cfg     Config
	logger  *slog.Logger
	acq     *media.Acquirer
	machine *activity.Machine
	metrics *MetricsCollector
	frames  *camera.Manager

	// base parents every session so a request context ending does not
	// tear the session down.
	base       context.Context
	cancelBase context.CancelFunc

	// life serializes Wake, Sleep and reopen.
	life sync.Mutex

	mu            sync.Mutex
	sess          *session
	voice         string
	cameraEnabled bool
	caps          Capabilities
	lastErr       string
	tracking      tracking.Position
	level         float64
	closed        bool

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	kick        chan struct{}
	notifyDone  chan struct{}
	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a Controller in the Off state.
func New(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.CameraTimeout <= 0 {
		cfg.CameraTimeout = DefaultCameraTimeout
	}
	if cfg.Frames == nil {
		cfg.Frames = camera.NewManager(camera.DefaultConfig())
	}

	c := &Controller{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "session"),
		acq: media.NewAcquirer(media.Config{
			Microphone: cfg.Microphone,
			Camera:     cfg.Camera,
			Clock:      cfg.Clock,
			Logger:     cfg.Logger,
		}),
		machine: activity.NewMachine(activity.Config{
			Clock:  cfg.Clock,
			Rand:   cfg.Rand,
			Logger: cfg.Logger,
		}),
		metrics:       NewMetricsCollector(cfg.Clock),
		frames:        cfg.Frames,
		voice:         cfg.Voice,
		cameraEnabled: cfg.CameraEnabled,
		subs:          make(map[int]func(Snapshot)),
		kick:          make(chan struct{}, 1),
		notifyDone:    make(chan struct{}),
	}
	c.base, c.cancelBase = context.WithCancel(context.Background())
	c.frames.OnChange = c.applyFrameConfig
	// The listener runs under the machine lock; it only kicks the notifier.
	c.unsubscribe = c.machine.Subscribe(func(prev, next activity.State) {
		c.notify()
	})
	go c.notifyLoop()
	return c
}

// Wake starts a session. A live session is closed first, so voice and
// camera changes take effect. Only ctx bounds the startup; the session
// itself lives until Sleep, Close or a remote close.
func (c *Controller) Wake(ctx context.Context) error {
	c.life.Lock()
	defer c.life.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	c.stopSession()
	return c.startSession(ctx)
}

// Sleep ends the live session, if any. Calling it while asleep is a no-op.
func (c *Controller) Sleep() {
	c.life.Lock()
	defer c.life.Unlock()
	c.stopSession()
}

// Close ends the session and stops publishing snapshots.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.life.Lock()
		c.stopSession()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.life.Unlock()

		c.unsubscribe()
		c.cancelBase()
		<-c.notifyDone
	})
	return nil
}

// SetVoice selects the prebuilt voice. A live session is reopened with it.
func (c *Controller) SetVoice(ctx context.Context, name string) error {
	if !live.ValidVoice(name) {
		return fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	}
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	same := c.voice == name
	c.mu.Unlock()
	if same {
		return nil
	}
	c.selectVoice(name)
	return c.reopen(ctx)
}

// SetCameraEnabled records the camera preference. A live session whose
// video capability disagrees with it is reopened.
func (c *Controller) SetCameraEnabled(ctx context.Context, on bool) error {
	c.life.Lock()
	defer c.life.Unlock()

	c.mu.Lock()
	c.cameraEnabled = on
	running := c.sess != nil
	video := c.caps.Video
	c.mu.Unlock()
	c.notify()

	if !running || on == video {
		return nil
	}
	return c.reopen(ctx)
}

// UpdateTracking stores the latest face offset verbatim.
func (c *Controller) UpdateTracking(p tracking.Position) {
	c.mu.Lock()
	changed := c.tracking != p
	c.tracking = p
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// State returns the current activity state.
func (c *Controller) State() activity.State {
	return c.machine.State()
}

// Voice returns the selected voice.
func (c *Controller) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voice
}

// Frames returns the frame sampling config manager.
func (c *Controller) Frames() *camera.Manager {
	return c.frames
}

// Snapshot returns the current published state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		Level:         c.level,
		Tracking:      c.tracking,
		Capabilities:  c.caps,
		Voice:         c.voice,
		CameraEnabled: c.cameraEnabled,
		Error:         c.lastErr,
	}
	s := c.sess
	c.mu.Unlock()

	snap.State = c.machine.State()
	if snap.State == activity.Off {
		snap.Level = 0
	}
	if s != nil {
		snap.SessionID = s.id
		snap.Playback = s.sched.Status()
		snap.Frames = s.frameStats()
	}
	snap.Metrics = c.metrics.Current()
	snap.Metrics.ImageFramesSent = snap.Frames.Frames
	return snap
}

// Subscribe registers fn for snapshot updates. Updates are coalesced and
// delivered on a single goroutine. The returned func unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()
	c.notify()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) notify() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Controller) notifyLoop() {
	defer close(c.notifyDone)
	for {
		select {
		case <-c.base.Done():
			return
		case <-c.kick:
		}

		snap := c.Snapshot()
		c.subMu.Lock()
		subs := make([]func(Snapshot), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.subMu.Unlock()

		for _, fn := range subs {
			fn(snap)
		}
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) selectVoice(name string) {
	c.mu.Lock()
	c.voice = name
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) setLevel(level float64) {
	c.mu.Lock()
	c.level = level
	c.mu.Unlock()
	c.notify()
}

// reopen closes and restarts a live session. Callers hold life.
func (c *Controller) reopen(ctx context.Context) error {
	c.mu.Lock()
	running := c.sess != nil
	c.mu.Unlock()
	if !running {
		return nil
	}
	c.logger.Info("reopening session")
	c.stopSession()
	return c.startSession(ctx)
}

// stopSession ends the live session and waits for its teardown.
// Callers hold life.
func (c *Controller) stopSession() {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.stop()
}

func (c *Controller) applyFrameConfig(cfg camera.Config) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.restartSampler(cfg)
}

// fail records a startup failure. No session is live, so the machine is
// already Off and the events only keep its log complete.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.lastErr = err.Error()
	if media.IsAcquisition(err) {
		c.machine.Apply(activity.AcquisitionFailed{Err: err})
	} else {
		c.machine.Apply(activity.ChannelClosed{Err: err})
	}
	c.mu.Unlock()
	c.notify()
	c.logger.Error("session start failed", "err", err)
	return err
}
