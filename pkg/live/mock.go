package live

import (
	"context"
	"errors"
	"sync"

	"github.com/teslashibe/go-neo/pkg/pcm"
)

// MockChannel is an in-memory Channel for tests. Push injects inbound
// events; sent frames are recorded.
type MockChannel struct {
	mu      sync.Mutex
	events  chan Event
	closed  bool
	sendErr error

	audio   []pcm.Frame
	images  []ImageFrame
	results []ToolResult
}

// NewMockChannel creates an open mock channel.
func NewMockChannel() *MockChannel {
	return &MockChannel{events: make(chan Event, 256)}
}

// Push delivers ev to the reader. It returns false once the channel is closed.
func (m *MockChannel) Push(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.events <- ev:
		return true
	default:
		return false
	}
}

// CloseRemote simulates the service ending the channel with err.
func (m *MockChannel) CloseRemote(err error) {
	m.finish(err)
}

// FailSends makes every later send return err.
func (m *MockChannel) FailSends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

func (m *MockChannel) send(record func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &ChannelError{Op: "send", Cause: ErrClosed}
	}
	if m.sendErr != nil {
		return &ChannelError{Op: "send", Cause: m.sendErr}
	}
	record()
	return nil
}

// SendAudio records frame.
func (m *MockChannel) SendAudio(_ context.Context, frame pcm.Frame) error {
	return m.send(func() { m.audio = append(m.audio, frame) })
}

// SendImage records frame.
func (m *MockChannel) SendImage(_ context.Context, frame ImageFrame) error {
	return m.send(func() { m.images = append(m.images, frame) })
}

// SendToolResult records result.
func (m *MockChannel) SendToolResult(_ context.Context, result ToolResult) error {
	return m.send(func() { m.results = append(m.results, result) })
}

// Events returns the inbound event stream.
func (m *MockChannel) Events() <-chan Event {
	return m.events
}

// Close ends the channel with a clean Closed event.
func (m *MockChannel) Close() error {
	m.finish(nil)
	return nil
}

func (m *MockChannel) finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	select {
	case m.events <- Closed{Err: err}:
	default:
	}
	close(m.events)
}

// Closed reports whether the channel has been closed.
func (m *MockChannel) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// AudioFrames returns the audio frames sent so far.
func (m *MockChannel) AudioFrames() []pcm.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pcm.Frame(nil), m.audio...)
}

// ImageFrames returns the image frames sent so far.
func (m *MockChannel) ImageFrames() []ImageFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ImageFrame(nil), m.images...)
}

// ToolResults returns the tool results sent so far.
func (m *MockChannel) ToolResults() []ToolResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolResult(nil), m.results...)
}

var _ Channel = (*MockChannel)(nil)

// MockDialer hands out MockChannels and records every Setup.
type MockDialer struct {
	mu       sync.Mutex
	err      error
	manual   bool
	setups   []Setup
	channels []*MockChannel
}

// NewMockDialer creates a dialer whose channels complete the handshake
// immediately.
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// FailWith makes later dials fail with err. Nil restores success.
func (d *MockDialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// ManualHandshake leaves SetupComplete for the test to push.
func (d *MockDialer) ManualHandshake() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manual = true
}

// Dial records setup and returns a new MockChannel.
func (d *MockDialer) Dial(ctx context.Context, setup Setup) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ChannelError{Op: "open", Cause: err}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setups = append(d.setups, setup)
	if d.err != nil {
		return nil, &ChannelError{Op: "open", Cause: d.err}
	}
	ch := NewMockChannel()
	if !d.manual {
		ch.Push(SetupComplete{})
	}
	d.channels = append(d.channels, ch)
	return ch, nil
}

// Setups returns every Setup passed to Dial.
func (d *MockDialer) Setups() []Setup {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Setup(nil), d.setups...)
}

// Channel returns the i-th dialed channel.
func (d *MockDialer) Channel(i int) *MockChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.channels) {
		return nil
	}
	return d.channels[i]
}

// Last returns the most recently dialed channel, or nil.
func (d *MockDialer) Last() *MockChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

// Dials returns how many channels were opened.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

var _ Dialer = (*MockDialer)(nil)

// ErrMockDial is a convenience error for dial failures in tests.
var ErrMockDial = errors.New("live: mock dial refused")

func init() {
	Register(TransportMock, func(DialerConfig) (Dialer, error) {
		return NewMockDialer(), nil
	})
}
