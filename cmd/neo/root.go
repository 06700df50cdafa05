package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-neo/internal/config"
	"github.com/teslashibe/go-neo/internal/log"
	"github.com/teslashibe/go-neo/pkg/audioio"
	"github.com/teslashibe/go-neo/pkg/camera"
	"github.com/teslashibe/go-neo/pkg/live"
	_ "github.com/teslashibe/go-neo/pkg/live/bundled"
	"github.com/teslashibe/go-neo/pkg/media"
	"github.com/teslashibe/go-neo/pkg/session"
	"github.com/teslashibe/go-neo/pkg/tracking"
	"github.com/teslashibe/go-neo/pkg/web"
)

var flags struct {
	configPath    string
	debug         bool
	voice         string
	noCamera      bool
	noTracking    bool
	transport     string
	addr          string
	static        string
	wake          bool
	audioBackend  string
	cameraBackend string
}

var rootCmd = &cobra.Command{
	Use:   "neo",
	Short: "NEO companion realtime session",
	Long: `Run the NEO companion.

Serves the face renderer feed on /ws/face and the control API on /api.
POST /api/wake starts a live session, POST /api/sleep ends it.

Examples:
  neo --wake
  neo --config neo.yaml --no-camera
  neo --audio-backend mock --camera-backend mock --transport genai`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return run(ctx, cfg)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	pf.BoolVar(&flags.debug, "debug", false, "Enable verbose debug logging")

	f := rootCmd.Flags()
	f.StringVar(&flags.voice, "voice", "", "Prebuilt voice (see 'neo voices')")
	f.BoolVar(&flags.noCamera, "no-camera", false, "Start with the camera disabled")
	f.BoolVar(&flags.noTracking, "no-tracking", false, "Disable local face tracking")
	f.StringVar(&flags.transport, "transport", "", "Live transport: "+fmt.Sprint(live.Transports()))
	f.StringVar(&flags.addr, "addr", "", "Web listen address")
	f.StringVar(&flags.static, "static", "", "Directory served at / (renderer assets)")
	f.BoolVar(&flags.wake, "wake", false, "Wake immediately on start")
	f.StringVar(&flags.audioBackend, "audio-backend", "", "Audio backend: auto, portaudio, mock")
	f.StringVar(&flags.cameraBackend, "camera-backend", "", "Camera backend: auto, gocv, mock")

	rootCmd.AddCommand(voicesCmd, configCmd)
}

// loadConfig layers file, env and flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if flags.debug {
		cfg.Log.Level = "debug"
	}
	if flags.voice != "" {
		cfg.Gemini.Voice = flags.voice
	}
	if flags.transport != "" {
		cfg.Gemini.Transport = flags.transport
	}
	if changed("no-camera") {
		cfg.Camera.Enabled = !flags.noCamera
	}
	if changed("no-tracking") {
		cfg.Tracking.Enabled = !flags.noTracking
	}
	if flags.addr != "" {
		cfg.Web.Addr = flags.addr
	}
	if flags.audioBackend != "" {
		cfg.Audio.Backend = flags.audioBackend
	}
	if flags.cameraBackend != "" {
		cfg.Camera.Backend = flags.cameraBackend
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !live.ValidVoice(cfg.Gemini.Voice) {
		return nil, fmt.Errorf("%w: %q", session.ErrUnknownVoice, cfg.Gemini.Voice)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.L()

	var dialer live.Dialer
	if cfg.Gemini.APIKey != "" {
		d, err := live.New(cfg.Gemini.Transport, live.DialerConfig{
			APIKey:  cfg.Gemini.APIKey,
			BaseURL: cfg.Gemini.BaseURL,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		dialer = d
	} else {
		logger.Warn("no API key set; wake will fail until one is configured",
			"env", config.CredentialEnvVars)
	}

	cameraOpener, err := camera.NewOpener(camera.Backend(cfg.Camera.Backend), cfg.Camera.DeviceID, logger)
	if err != nil {
		return err
	}

	detector := newDetector(cfg, logger)
	if detector != nil {
		defer detector.Close()
	}

	// The server is built after the controller; frames reach it through srv.
	var srv *web.Server
	ctrl := session.New(session.Config{
		Dialer:        dialer,
		Credential:    cfg.Gemini.APIKey,
		Model:         cfg.Gemini.Model,
		Voice:         cfg.Gemini.Voice,
		Persona:       cfg.Gemini.Persona,
		Transcribe:    true,
		Speaker:       speakerOpener(cfg, logger),
		Microphone:    microphoneOpener(cfg, logger),
		Camera:        cameraOpener,
		CameraEnabled: cfg.Camera.Enabled,
		CameraTimeout: cfg.Camera.Timeout,
		Frames: camera.NewManager(camera.Config{
			Width:   cfg.Camera.Width,
			Height:  cfg.Camera.Height,
			FPS:     cfg.Camera.FPS,
			Quality: cfg.Camera.Quality,
		}),
		OnFrame: func(f live.ImageFrame) {
			if srv != nil {
				srv.SendCameraFrame(f)
			}
		},
		Detector:     detector,
		TrackingRate: cfg.Tracking.Rate,
		Personality:  personality(cfg),
		Logger:       logger,
	})
	defer ctrl.Close()

	srv = web.NewServer(ctrl, web.Config{
		Addr:   cfg.Web.Addr,
		Static: flags.static,
		Logger: logger,
	})

	if flags.wake {
		go func() {
			if err := ctrl.Wake(ctx); err != nil {
				logger.Error("wake on start failed", "err", err)
			}
		}()
	}

	logger.Info("neo starting",
		"addr", cfg.Web.Addr,
		"transport", cfg.Gemini.Transport,
		"model", cfg.Gemini.Model,
		"voice", cfg.Gemini.Voice,
		"camera", cfg.Camera.Enabled,
	)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("web server: %w", err)
	}
	logger.Info("neo stopped")
	return nil
}

func speakerOpener(cfg *config.Config, logger *slog.Logger) session.SpeakerOpener {
	return func(context.Context) (audioio.Sink, error) {
		ac := audioio.PlaybackConfig()
		ac.Backend = audioio.Backend(cfg.Audio.Backend)
		ac.SampleRate = cfg.Audio.PlaybackRate
		return audioio.NewSink(ac, logger)
	}
}

func microphoneOpener(cfg *config.Config, logger *slog.Logger) media.MicrophoneOpener {
	return func(context.Context) (audioio.Source, error) {
		ac := audioio.CaptureConfig()
		ac.Backend = audioio.Backend(cfg.Audio.Backend)
		ac.SampleRate = cfg.Audio.CaptureRate
		ac.FramesPerBuffer = cfg.Audio.FramesPerBuffer
		return audioio.NewSource(ac, logger)
	}
}

func personality(cfg *config.Config) session.Personality {
	if !cfg.Personality.Enabled {
		return session.Personality{}
	}
	return session.Personality{
		Interval:    cfg.Personality.Interval,
		Probability: cfg.Personality.Probability,
	}
}

// loadYuNet is swapped in tests.
var loadYuNet = tracking.NewYuNet

// newDetector loads YuNet when tracking is wanted. The camera may be turned
// on after launch, so this does not depend on the camera preference; the
// tracker only runs while a session has a camera. Tracking is optional, so
// a missing model or a build without gocv only logs.
func newDetector(cfg *config.Config, logger *slog.Logger) tracking.Detector {
	if !cfg.Tracking.Enabled {
		return nil
	}
	det, err := loadYuNet(tracking.DetectorConfig{
		ModelPath:        cfg.Tracking.ModelPath,
		ConfidenceThresh: float64(cfg.Tracking.Confidence),
		InputWidth:       cfg.Camera.Width,
		InputHeight:      cfg.Camera.Height,
	})
	if err != nil {
		if errors.Is(err, tracking.ErrYuNetUnavailable) {
			logger.Info("face tracking unavailable in this build")
		} else {
			logger.Warn("face tracking disabled", "err", err)
		}
		return nil
	}
	return det
}
