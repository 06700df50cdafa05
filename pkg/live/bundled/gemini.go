// Package bundled registers the live transports shipped with neo.
package bundled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-neo/internal/httpc"
	"github.com/teslashibe/go-neo/pkg/live"
	"github.com/teslashibe/go-neo/pkg/pcm"
)

const (
	// Gemini Live API WebSocket endpoint
	geminiLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	eventBuffer = 64
)

// GeminiDialer opens Gemini Live sessions over a raw websocket.
type GeminiDialer struct {
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewGeminiDialer creates a websocket dialer.
func NewGeminiDialer(cfg live.DialerConfig) (*GeminiDialer, error) {
	if cfg.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiLiveURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GeminiDialer{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger.With("transport", live.TransportWebSocket),
	}, nil
}

// Dial connects, sends the setup message and starts reading events.
// SetupComplete arrives on Events once the service accepts the setup.
func (d *GeminiDialer) Dial(ctx context.Context, setup live.Setup) (live.Channel, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, &live.ChannelError{Op: "open", Cause: err}
	}
	q := u.Query()
	q.Set("key", d.apiKey)
	u.RawQuery = q.Encode()

	ws, _, err := httpc.WebSocketDialer().DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		return nil, &live.ChannelError{Op: "open", Cause: err}
	}

	g := &geminiChannel{
		ws:     ws,
		logger: d.logger,
		events: make(chan live.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	if err := g.sendJSON(ctx, setupMessage(setup)); err != nil {
		ws.Close()
		return nil, &live.ChannelError{Op: "open", Cause: err}
	}

	go g.readLoop()

	d.logger.Info("gemini live connected", "model", setup.Model, "voice", setup.Voice, "tools", len(setup.Tools))
	return g, nil
}

func modelName(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

// setupMessage builds the initial configuration for Gemini Live.
func setupMessage(s live.Setup) map[string]any {
	body := map[string]any{
		"model": modelName(s.Model),
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]any{
				"voiceConfig": map[string]any{
					"prebuiltVoiceConfig": map[string]any{
						"voiceName": s.Voice,
					},
				},
			},
		},
	}
	if s.Persona != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": s.Persona}},
		}
	}
	if len(s.Tools) > 0 {
		decls := make([]map[string]any, 0, len(s.Tools))
		for _, t := range s.Tools {
			decl := map[string]any{
				"name":        t.Name,
				"description": t.Description,
			}
			if t.Parameters != nil {
				decl["parameters"] = t.Parameters
			}
			decls = append(decls, decl)
		}
		body["tools"] = []map[string]any{{"functionDeclarations": decls}}
	}
	if s.Transcribe {
		body["inputAudioTranscription"] = map[string]any{}
	}
	return map[string]any{"setup": body}
}

// Inbound wire messages. Only the fields neo acts on are decoded.
type serverMessage struct {
	SetupComplete        *struct{}      `json:"setupComplete"`
	ServerContent        *serverContent `json:"serverContent"`
	ToolCall             *toolCall      `json:"toolCall"`
	ToolCallCancellation *struct {
		IDs []string `json:"ids"`
	} `json:"toolCallCancellation"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway"`
}

type serverContent struct {
	ModelTurn *struct {
		Parts []struct {
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"modelTurn"`
	Interrupted        bool `json:"interrupted"`
	TurnComplete       bool `json:"turnComplete"`
	InputTranscription *struct {
		Text string `json:"text"`
	} `json:"inputTranscription"`
}

type toolCall struct {
	FunctionCalls []struct {
		ID   string         `json:"id"`
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	} `json:"functionCalls"`
}

// decodeServerMessage maps one wire message to zero or more events,
// in the order the client should apply them.
func decodeServerMessage(raw []byte) ([]live.Event, error) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	var events []live.Event
	if msg.SetupComplete != nil {
		events = append(events, live.SetupComplete{})
	}
	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			events = append(events, live.InputTranscript{Text: sc.InputTranscription.Text})
		}
		if sc.Interrupted {
			events = append(events, live.Interrupted{})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/pcm") {
					continue
				}
				events = append(events, live.ContentChunk{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				})
			}
		}
		if sc.TurnComplete {
			events = append(events, live.TurnComplete{})
		}
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			events = append(events, live.ToolInvocation{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	if msg.GoAway != nil {
		left, _ := time.ParseDuration(msg.GoAway.TimeLeft)
		events = append(events, live.GoAway{TimeLeft: left})
	}
	return events, nil
}

// geminiChannel is one open Gemini Live websocket.
type geminiChannel struct {
	ws     *websocket.Conn
	wsMu   sync.Mutex
	logger *slog.Logger

	events    chan live.Event
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
}

func (g *geminiChannel) SendAudio(ctx context.Context, frame pcm.Frame) error {
	return g.send(ctx, map[string]any{
		"realtimeInput": map[string]any{
			"audio": map[string]any{
				"data":     frame.Data,
				"mimeType": frame.MIMEType,
			},
		},
	})
}

func (g *geminiChannel) SendImage(ctx context.Context, frame live.ImageFrame) error {
	return g.send(ctx, map[string]any{
		"realtimeInput": map[string]any{
			"video": map[string]any{
				"data":     frame.Data,
				"mimeType": frame.MIMEType,
			},
		},
	})
}

func (g *geminiChannel) SendToolResult(ctx context.Context, r live.ToolResult) error {
	return g.send(ctx, map[string]any{
		"toolResponse": map[string]any{
			"functionResponses": []map[string]any{
				{
					"id":       r.ID,
					"name":     r.Name,
					"response": r.Result,
				},
			},
		},
	})
}

func (g *geminiChannel) Events() <-chan live.Event {
	return g.events
}

// Close shuts the socket. The read loop then emits a clean Closed event.
func (g *geminiChannel) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.closing.Store(true)
		g.wsMu.Lock()
		_ = g.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		g.wsMu.Unlock()
		if cerr := g.ws.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		close(g.done)
	})
	return err
}

func (g *geminiChannel) send(ctx context.Context, v any) error {
	if g.closing.Load() {
		return &live.ChannelError{Op: "send", Cause: live.ErrClosed}
	}
	if err := g.sendJSON(ctx, v); err != nil {
		return &live.ChannelError{Op: "send", Cause: err}
	}
	return nil
}

// sendJSON sends a JSON message over WebSocket.
func (g *geminiChannel) sendJSON(ctx context.Context, v any) error {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = g.ws.SetWriteDeadline(deadline)
		defer g.ws.SetWriteDeadline(time.Time{})
	}
	return g.ws.WriteJSON(v)
}

// readLoop turns websocket messages into events until the socket ends.
func (g *geminiChannel) readLoop() {
	defer close(g.events)

	for {
		_, message, err := g.ws.ReadMessage()
		if err != nil {
			g.finish(err)
			return
		}

		events, err := decodeServerMessage(message)
		if err != nil {
			g.logger.Warn("gemini: failed to parse message", "err", err)
			continue
		}
		for _, ev := range events {
			select {
			case g.events <- ev:
			case <-g.done:
				g.finish(nil)
				return
			}
		}
	}
}

func (g *geminiChannel) finish(readErr error) {
	var closeErr error
	switch {
	case g.closing.Load():
	case readErr == nil:
	case websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		g.logger.Info("gemini live closed by server", "reason", closeReason(readErr))
	default:
		closeErr = &live.ChannelError{Op: "receive", Cause: readErr}
	}
	g.closing.Store(true)

	select {
	case g.events <- live.Closed{Err: closeErr}:
	default:
		g.logger.Warn("gemini: event buffer full, dropping close event")
	}
	if closeErr != nil {
		g.ws.Close()
	}
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Sprintf("%d %s", ce.Code, ce.Text)
	}
	return err.Error()
}

var _ live.Channel = (*geminiChannel)(nil)

// Register the websocket transport in the live package.
func init() {
	live.Register(live.TransportWebSocket, func(cfg live.DialerConfig) (live.Dialer, error) {
		return NewGeminiDialer(cfg)
	})
}
