// Package live defines the duplex channel to the remote conversational
// service: the session setup sent on open, the frames the client sends,
// and the events it receives.
//
// Transports live in pkg/live/bundled and register themselves by name:
//
//	import _ "github.com/teslashibe/go-neo/pkg/live/bundled"
//
//	d, err := live.New(live.TransportWebSocket, live.DialerConfig{APIKey: key})
//	ch, err := d.Dial(ctx, live.Setup{Model: model, Voice: "Puck"})
//	for ev := range ch.Events() { ... }
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-neo/pkg/pcm"
)

// Transport names.
const (
	TransportWebSocket = "websocket"
	TransportGenAI     = "genai"
	TransportMock      = "mock"
)

// ImageMIMEType tags outbound camera frames.
const ImageMIMEType = "image/jpeg"

// Setup is sent once when the channel opens. It cannot change afterwards;
// a different voice or persona needs a new channel.
type Setup struct {
	Model   string
	Voice   string
	Persona string
	Tools   []ToolDecl

	// Transcribe asks the service to report what the user said.
	Transcribe bool
}

// ImageFrame is one base64 JPEG snapshot.
type ImageFrame struct {
	Data     string
	MIMEType string
}

// Channel is an open connection to the remote service. Send methods are
// safe for concurrent use. Events is closed after the final Closed event.
type Channel interface {
	SendAudio(ctx context.Context, frame pcm.Frame) error
	SendImage(ctx context.Context, frame ImageFrame) error
	SendToolResult(ctx context.Context, result ToolResult) error
	Events() <-chan Event
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, setup Setup) (Channel, error)
}

// Event is one inbound message. The concrete types below are the only
// implementations.
type Event interface {
	liveEvent()
}

// SetupComplete means the service accepted the setup message.
type SetupComplete struct{}

// ContentChunk carries base64 PCM16 audio from the model.
type ContentChunk struct {
	Data     string
	MIMEType string
}

// Interrupted means the user started talking over a response.
type Interrupted struct{}

// ToolInvocation asks the client to run a declared tool.
type ToolInvocation struct {
	ID   string
	Name string
	Args map[string]any
}

// InputTranscript is text recognized from the user's speech.
type InputTranscript struct {
	Text string
}

// TurnComplete marks the end of a model turn.
type TurnComplete struct{}

// GoAway warns that the service will close the channel soon.
type GoAway struct {
	TimeLeft time.Duration
}

// Closed is the last event on a channel. Err is nil for a clean close.
type Closed struct {
	Err error
}

func (SetupComplete) liveEvent()   {}
func (ContentChunk) liveEvent()    {}
func (Interrupted) liveEvent()     {}
func (ToolInvocation) liveEvent()  {}
func (InputTranscript) liveEvent() {}
func (TurnComplete) liveEvent()    {}
func (GoAway) liveEvent()          {}
func (Closed) liveEvent()          {}

// DialerConfig configures a transport.
type DialerConfig struct {
	// APIKey authenticates against the service. Required.
	APIKey string

	// BaseURL overrides the service endpoint.
	BaseURL string

	// Logger for transport events. Default: slog.Default().
	Logger *slog.Logger
}

// DialerFactory creates a Dialer for one transport.
type DialerFactory func(cfg DialerConfig) (Dialer, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DialerFactory)
)

// Register makes a transport available by name.
// Bundled transports call this in init().
func Register(name string, f DialerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New creates a Dialer for the named transport.
func New(name string, cfg DialerConfig) (Dialer, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
	return f(cfg)
}

// Transports lists registered transport names.
func Transports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
