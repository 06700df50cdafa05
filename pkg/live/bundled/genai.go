package bundled

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"google.golang.org/genai"

	"github.com/teslashibe/go-neo/internal/httpc"
	"github.com/teslashibe/go-neo/pkg/live"
	"github.com/teslashibe/go-neo/pkg/pcm"
)

// GenAIDialer opens Gemini Live sessions through the Google GenAI SDK.
type GenAIDialer struct {
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewGenAIDialer creates an SDK-backed dialer.
func NewGenAIDialer(cfg live.DialerConfig) (*GenAIDialer, error) {
	if cfg.APIKey == "" {
		return nil, live.ErrMissingAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GenAIDialer{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger.With("transport", live.TransportGenAI),
	}, nil
}

// Dial connects a live session and starts reading events.
func (d *GenAIDialer) Dial(ctx context.Context, setup live.Setup) (live.Channel, error) {
	cc := &genai.ClientConfig{
		APIKey:     d.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.Client,
	}
	if d.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: d.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, &live.ChannelError{Op: "open", Cause: err}
	}

	session, err := client.Live.Connect(ctx, strings.TrimPrefix(setup.Model, "models/"), connectConfig(setup))
	if err != nil {
		return nil, &live.ChannelError{Op: "open", Cause: err}
	}

	g := &genaiChannel{
		session: session,
		logger:  d.logger,
		events:  make(chan live.Event, eventBuffer),
		done:    make(chan struct{}),
	}
	go g.readLoop()

	d.logger.Info("gemini live connected", "model", setup.Model, "voice", setup.Voice, "tools", len(setup.Tools))
	return g, nil
}

func connectConfig(s live.Setup) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.Voice},
			},
		},
	}
	if s.Persona != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: s.Persona}}}
	}
	if len(s.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(s.Tools))
		for _, t := range s.Tools {
			decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
			if t.Parameters != nil {
				decl.ParametersJsonSchema = t.Parameters
			}
			decls = append(decls, decl)
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	if s.Transcribe {
		cfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return cfg
}

// serverEvents maps one SDK message to events, in the same order as the
// websocket transport.
func serverEvents(msg *genai.LiveServerMessage) []live.Event {
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
				if part == nil || part.InlineData == nil || !strings.HasPrefix(part.InlineData.MIMEType, "audio/pcm") {
					continue
				}
				events = append(events, live.ContentChunk{
					Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
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
			if fc == nil {
				continue
			}
			events = append(events, live.ToolInvocation{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	if msg.GoAway != nil {
		events = append(events, live.GoAway{})
	}
	return events
}

type genaiChannel struct {
	session *genai.Session
	sendMu  sync.Mutex
	logger  *slog.Logger

	events    chan live.Event
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
}

func (g *genaiChannel) SendAudio(_ context.Context, frame pcm.Frame) error {
	data, err := frame.Bytes()
	if err != nil {
		return &live.ChannelError{Op: "send", Cause: err}
	}
	return g.send(func() error {
		return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{Data: data, MIMEType: frame.MIMEType},
		})
	})
}

func (g *genaiChannel) SendImage(_ context.Context, frame live.ImageFrame) error {
	data, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		return &live.ChannelError{Op: "send", Cause: err}
	}
	return g.send(func() error {
		return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
			Video: &genai.Blob{Data: data, MIMEType: frame.MIMEType},
		})
	})
}

func (g *genaiChannel) SendToolResult(_ context.Context, r live.ToolResult) error {
	return g.send(func() error {
		return g.session.SendToolResponse(genai.LiveToolResponseInput{
			FunctionResponses: []*genai.FunctionResponse{{
				ID:       r.ID,
				Name:     r.Name,
				Response: r.Result,
			}},
		})
	})
}

func (g *genaiChannel) send(fn func() error) error {
	if g.closing.Load() {
		return &live.ChannelError{Op: "send", Cause: live.ErrClosed}
	}
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	if err := fn(); err != nil {
		return &live.ChannelError{Op: "send", Cause: err}
	}
	return nil
}

func (g *genaiChannel) Events() <-chan live.Event {
	return g.events
}

func (g *genaiChannel) Close() error {
	var err error
	g.closeOnce.Do(func() {
		g.closing.Store(true)
		err = g.session.Close()
		close(g.done)
	})
	return err
}

func (g *genaiChannel) readLoop() {
	defer close(g.events)

	for {
		msg, err := g.session.Receive()
		if err != nil {
			var closeErr error
			if !g.closing.Load() {
				closeErr = &live.ChannelError{Op: "receive", Cause: err}
			}
			g.closing.Store(true)
			select {
			case g.events <- live.Closed{Err: closeErr}:
			default:
				g.logger.Warn("genai: event buffer full, dropping close event")
			}
			return
		}

		for _, ev := range serverEvents(msg) {
			select {
			case g.events <- ev:
			case <-g.done:
				select {
				case g.events <- live.Closed{}:
				default:
				}
				return
			}
		}
	}
}

var _ live.Channel = (*genaiChannel)(nil)

func init() {
	live.Register(live.TransportGenAI, func(cfg live.DialerConfig) (live.Dialer, error) {
		return NewGenAIDialer(cfg)
	})
}
