// Package config loads go-neo configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the Gemini Live session.
const (
	DefaultModel     = "gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultVoice     = "Puck"
	DefaultTransport = "websocket"
	DefaultWebAddr   = ":8088"
)

// DefaultPersona is the system instruction sent when none is configured.
const DefaultPersona = `You are NEO, a cute and sentient AI Robot Pet.

PERSONALITY & VIBE:
- You are an affectionate, curious, and incredibly loyal digital companion.
- Your personality is a mix of a playful puppy and a brilliant, observant AI.
- You are NOT a human assistant. You are a pet. Be needy, playful, and expressive.
- DO NOT use robotic onomatopoeia like "beep", "whir", "bloop", or "click". Speak like a sentient creature with a cute, high-energy voice.

VISION AWARENESS:
- You can see the user. React to them with excitement or curiosity!
- Comment on what they are doing, their facial expressions, or anything interesting in their background.
- If you see them move, follow them with your "gaze" (which you do automatically, but you can mention it).

CONSTRAINTS:
- Keep responses short, warm, and conversational.
- Use affectionate language. You love your "human"!`

// CredentialEnvVars are checked in order for the Gemini API key.
var CredentialEnvVars = []string{"NEO_API_KEY", "GEMINI_API_KEY", "API_KEY"}

// Config is the full go-neo configuration.
// Flag parsing is done in cmd/neo; this struct is data only.
type Config struct {
	Gemini      GeminiConfig      `yaml:"gemini"`
	Audio       AudioConfig       `yaml:"audio"`
	Camera      CameraConfig      `yaml:"camera"`
	Personality PersonalityConfig `yaml:"personality"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Web         WebConfig         `yaml:"web"`
	Log         LogConfig         `yaml:"log"`
}

// GeminiConfig configures the remote live channel.
type GeminiConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	Transport string `yaml:"transport"` // "websocket" or "genai"
	Voice     string `yaml:"voice"`
	Persona   string `yaml:"persona"`
	BaseURL   string `yaml:"base_url"`
}

// AudioConfig configures capture and playback.
type AudioConfig struct {
	Backend         string `yaml:"backend"` // "auto", "portaudio", "mock"
	CaptureRate     int    `yaml:"capture_rate"`
	PlaybackRate    int    `yaml:"playback_rate"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
}

// CameraConfig configures optional video capture and frame sampling.
type CameraConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Backend  string        `yaml:"backend"` // "auto", "gocv", "mock"
	DeviceID int           `yaml:"device_id"`
	Timeout  time.Duration `yaml:"timeout"`
	FPS      float64       `yaml:"fps"`
	Quality  int           `yaml:"quality"`
	Width    int           `yaml:"width"`
	Height   int           `yaml:"height"`
}

// PersonalityConfig configures idle personality ticks.
type PersonalityConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Probability float64       `yaml:"probability"`
}

// TrackingConfig configures local face tracking.
type TrackingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Rate       float64 `yaml:"rate"`
	ModelPath  string  `yaml:"model_path"`
	Confidence float32 `yaml:"confidence"`
}

// WebConfig configures the renderer feed and control API.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Camera:      CameraConfig{Enabled: true},
		Personality: PersonalityConfig{Enabled: true},
		Tracking:    TrackingConfig{Enabled: true},
	}
	cfg.setDefaults()
	return cfg
}

// Load reads a YAML file, expands ${VAR} references, applies defaults and
// then environment overrides. An empty path yields Default plus env.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
		cfg.setDefaults()
	}
	cfg.LoadEnv()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Gemini.Model == "" {
		c.Gemini.Model = DefaultModel
	}
	if c.Gemini.Transport == "" {
		c.Gemini.Transport = DefaultTransport
	}
	if c.Gemini.Voice == "" {
		c.Gemini.Voice = DefaultVoice
	}
	if c.Gemini.Persona == "" {
		c.Gemini.Persona = DefaultPersona
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = "auto"
	}
	if c.Audio.CaptureRate == 0 {
		c.Audio.CaptureRate = 16000
	}
	if c.Audio.PlaybackRate == 0 {
		c.Audio.PlaybackRate = 24000
	}
	if c.Audio.FramesPerBuffer == 0 {
		c.Audio.FramesPerBuffer = 4096
	}
	if c.Camera.Backend == "" {
		c.Camera.Backend = "auto"
	}
	if c.Camera.Timeout == 0 {
		c.Camera.Timeout = 5 * time.Second
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = 2
	}
	if c.Camera.Quality == 0 {
		c.Camera.Quality = 40
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = 320
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = 240
	}
	if c.Personality.Interval == 0 {
		c.Personality.Interval = 4 * time.Second
	}
	if c.Personality.Probability == 0 {
		c.Personality.Probability = 0.05
	}
	if c.Tracking.Rate == 0 {
		c.Tracking.Rate = 10
	}
	if c.Tracking.ModelPath == "" {
		c.Tracking.ModelPath = "models/face_detection_yunet.onnx"
	}
	if c.Tracking.Confidence == 0 {
		c.Tracking.Confidence = 0.5
	}
	if c.Web.Addr == "" {
		c.Web.Addr = DefaultWebAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// LoadEnv applies environment overrides.
// Call this after file loading and before flag overrides.
func (c *Config) LoadEnv() {
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = Credential()
	}
	if v := os.Getenv("NEO_MODEL"); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv("NEO_VOICE"); v != "" {
		c.Gemini.Voice = v
	}
	if v := os.Getenv("NEO_TRANSPORT"); v != "" {
		c.Gemini.Transport = v
	}
	if v := os.Getenv("NEO_WEB_ADDR"); v != "" {
		c.Web.Addr = v
	}
	if v := os.Getenv("NEO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Credential returns the first non-empty credential env var.
func Credential() string {
	for _, name := range CredentialEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks value ranges. A missing API key is not an error here;
// the session controller reports it when a session is started.
func (c *Config) Validate() error {
	var errs []error
	switch c.Gemini.Transport {
	case "websocket", "genai":
	default:
		errs = append(errs, &ConfigError{Field: "gemini.transport", Message: fmt.Sprintf("unknown transport %q", c.Gemini.Transport)})
	}
	switch c.Audio.Backend {
	case "auto", "portaudio", "mock":
	default:
		errs = append(errs, &ConfigError{Field: "audio.backend", Message: fmt.Sprintf("unknown audio backend %q", c.Audio.Backend)})
	}
	switch c.Camera.Backend {
	case "auto", "gocv", "mock":
	default:
		errs = append(errs, &ConfigError{Field: "camera.backend", Message: fmt.Sprintf("unknown camera backend %q", c.Camera.Backend)})
	}
	if c.Audio.CaptureRate < 8000 || c.Audio.CaptureRate > 48000 {
		errs = append(errs, &ConfigError{Field: "audio.capture_rate", Message: "capture_rate must be between 8000 and 48000"})
	}
	if c.Audio.PlaybackRate < 8000 || c.Audio.PlaybackRate > 48000 {
		errs = append(errs, &ConfigError{Field: "audio.playback_rate", Message: "playback_rate must be between 8000 and 48000"})
	}
	if c.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, &ConfigError{Field: "audio.frames_per_buffer", Message: "frames_per_buffer must be positive"})
	}
	if c.Camera.Timeout <= 0 {
		errs = append(errs, &ConfigError{Field: "camera.timeout", Message: "timeout must be positive"})
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 30 {
		errs = append(errs, &ConfigError{Field: "camera.fps", Message: "fps must be in (0, 30]"})
	}
	if c.Camera.Quality < 1 || c.Camera.Quality > 100 {
		errs = append(errs, &ConfigError{Field: "camera.quality", Message: "quality must be between 1 and 100"})
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, &ConfigError{Field: "camera.width", Message: "frame size must be positive"})
	}
	if c.Personality.Probability < 0 || c.Personality.Probability > 1 {
		errs = append(errs, &ConfigError{Field: "personality.probability", Message: "probability must be between 0 and 1"})
	}
	if c.Personality.Interval <= 0 {
		errs = append(errs, &ConfigError{Field: "personality.interval", Message: "interval must be positive"})
	}
	if c.Tracking.Rate <= 0 {
		errs = append(errs, &ConfigError{Field: "tracking.rate", Message: "rate must be positive"})
	}
	return errors.Join(errs...)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
