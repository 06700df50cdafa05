package audioio

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrPortAudioUnavailable is returned when the binary was built without PortAudio.
var ErrPortAudioUnavailable = errors.New("audioio: portaudio backend not available: rebuild with -tags portaudio")

// NewSource opens a capture device.
// BackendAuto always means real hardware; see resolve.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	backend, logger, err := resolve(cfg, logger, "source")
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendPortAudio:
		return newPortAudioSource(cfg, logger)
	}
	return nil, fmt.Errorf("audioio: unsupported backend: %s", backend)
}

// NewSink opens a playback device.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	backend, logger, err := resolve(cfg, logger, "sink")
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendPortAudio:
		return newPortAudioSink(cfg, logger)
	}
	return nil, fmt.Errorf("audioio: unsupported backend: %s", backend)
}

// resolve validates cfg and maps BackendAuto to PortAudio. Builds without
// PortAudio then fail with ErrPortAudioUnavailable instead of silently
// capturing from the mock.
func resolve(cfg Config, logger *slog.Logger, role string) (Backend, *slog.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("audioio: invalid %s config: %w", role, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendPortAudio
	}
	logger = logger.With("audio", role, "backend", backend)
	logger.Info("opening audio device",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration().Milliseconds(),
	)
	return backend, logger, nil
}

// AvailableBackends returns the backends compiled into this binary.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if portaudioAvailable {
		backends = append(backends, BackendPortAudio)
	}
	return backends
}
