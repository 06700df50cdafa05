package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-neo/pkg/camera"
	"github.com/teslashibe/go-neo/pkg/live"
	"github.com/teslashibe/go-neo/pkg/media"
	"github.com/teslashibe/go-neo/pkg/session"
	"github.com/teslashibe/go-neo/pkg/tracking"
)

// handleError maps controller errors to status codes.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, session.ErrMissingCredential),
		errors.Is(err, session.ErrNoDialer):
		code = fiber.StatusPreconditionFailed
	case errors.Is(err, session.ErrUnknownVoice):
		code = fiber.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		code = fiber.StatusServiceUnavailable
	case media.IsAcquisition(err):
		code = fiber.StatusServiceUnavailable
	case live.IsChannelError(err):
		code = fiber.StatusBadGateway
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Path(), "status", code, "err", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleWake(c *fiber.Ctx) error {
	if err := s.ctrl.Wake(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleSleep(c *fiber.Ctx) error {
	s.ctrl.Sleep()
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleVoices(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"voices":  live.Voices,
		"current": s.ctrl.Snapshot().Voice,
	})
}

// VoiceRequest selects a prebuilt voice.
type VoiceRequest struct {
	Voice string `json:"voice"`
}

func (s *Server) handleVoice(c *fiber.Ctx) error {
	var req VoiceRequest
	if err := c.BodyParser(&req); err != nil || req.Voice == "" {
		return fiber.NewError(fiber.StatusBadRequest, "body must be {\"voice\": name}")
	}
	if err := s.ctrl.SetVoice(c.UserContext(), req.Voice); err != nil {
		return err
	}
	return c.JSON(s.ctrl.Snapshot())
}

// CameraRequest toggles the camera preference.
type CameraRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleCamera(c *fiber.Ctx) error {
	var req CameraRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must be {\"enabled\": bool}")
	}
	if err := s.ctrl.SetCameraEnabled(c.UserContext(), *req.Enabled); err != nil {
		return err
	}
	return c.JSON(s.ctrl.Snapshot())
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Frames().Current())
}

func (s *Server) handleSetCameraConfig(c *fiber.Ctx) error {
	var u camera.Update
	if err := c.BodyParser(&u); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	cfg, err := s.ctrl.Frames().Apply(u)
	var verr *camera.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, camera.ErrUnknownPreset):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(cfg)
}

func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.Presets())
}

// handleTracking accepts a face offset from an external sensor.
func (s *Server) handleTracking(c *fiber.Ctx) error {
	var p tracking.Position
	if err := c.BodyParser(&p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body must be {\"x\": number, \"y\": number}")
	}
	if !p.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "x and y must be within [-0.5, 0.5]")
	}
	s.ctrl.UpdateTracking(p)
	return c.JSON(s.ctrl.Snapshot().Tracking)
}
