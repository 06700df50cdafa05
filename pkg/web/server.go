// Package web serves the renderer feed and the control API.
//
// The face renderer connects to /ws/face and receives a JSON Snapshot on
// connect and after every change. Wake, sleep, voice, camera and external
// tracking input are plain JSON endpoints under /api.
package web

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-neo/pkg/camera"
	"github.com/teslashibe/go-neo/pkg/hub"
	"github.com/teslashibe/go-neo/pkg/live"
	"github.com/teslashibe/go-neo/pkg/session"
	"github.com/teslashibe/go-neo/pkg/tracking"
)

// Controller is what the server drives. *session.Controller satisfies it.
type Controller interface {
	Wake(ctx context.Context) error
	Sleep()
	SetCameraEnabled(ctx context.Context, on bool) error
	SetVoice(ctx context.Context, name string) error
	UpdateTracking(p tracking.Position)
	Snapshot() session.Snapshot
	Subscribe(fn func(session.Snapshot)) func()
	Frames() *camera.Manager
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address. Default: ":8088".
	Addr string

	// Static is an optional directory served at /.
	Static string

	// Logger. Default: slog.Default().
	Logger *slog.Logger
}

// Server is the web server.
type Server struct {
	app    *fiber.App
	ctrl   Controller
	addr   string
	logger *slog.Logger

	faceHub   *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates a server for ctrl.
func NewServer(ctrl Controller, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		ctrl:      ctrl,
		addr:      cfg.Addr,
		logger:    cfg.Logger.With("component", "web"),
		faceHub:   hub.New("face", cfg.Logger),
		cameraHub: hub.New("camera", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "NEO",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// CORS for a renderer served from elsewhere during development
	app.Use(cors.New())

	if cfg.Static != "" {
		app.Static("/", cfg.Static)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/wake", s.handleWake)
	api.Post("/sleep", s.handleSleep)
	api.Get("/voices", s.handleVoices)
	api.Post("/voice", s.handleVoice)
	api.Post("/camera", s.handleCamera)
	api.Get("/camera/config", s.handleGetCameraConfig)
	api.Post("/camera/config", s.handleSetCameraConfig)
	api.Get("/camera/presets", s.handleCameraPresets)
	api.Post("/tracking", s.handleTracking)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/face", websocket.New(s.handleFaceWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.faceHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	unsubscribe := s.ctrl.Subscribe(func(snap session.Snapshot) {
		if err := s.faceHub.BroadcastJSON(snap); err != nil {
			s.logger.Warn("snapshot encode failed", "err", err)
		}
	})
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "err", err)
		}
	}()

	s.logger.Info("web server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// SendCameraFrame forwards a sent image frame to preview clients.
func (s *Server) SendCameraFrame(frame live.ImageFrame) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	data, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		s.logger.Debug("bad preview frame", "err", err)
		return
	}
	s.cameraHub.BroadcastBinary(data)
}

func (s *Server) handleFaceWS(c *websocket.Conn) {
	initial, err := hub.EncodeJSON(s.ctrl.Snapshot())
	if err != nil {
		s.logger.Warn("snapshot encode failed", "err", err)
		c.Close()
		return
	}
	hub.NewClient(s.faceHub, c, initial).Run()
}

func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
