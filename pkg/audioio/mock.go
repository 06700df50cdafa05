package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
)

// MockOption configures a MockSource or MockSink.
type MockOption func(*mockOptions)

type mockOptions struct {
	clock     clock.Clock
	frequency float64
	amplitude float64
	generate  bool
}

// WithSineWave configures a mock source to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockOption {
	return func(o *mockOptions) {
		o.frequency = frequency
		o.amplitude = amplitude
	}
}

// WithClock drives the mock's buffer cadence from c.
func WithClock(c clock.Clock) MockOption {
	return func(o *mockOptions) {
		o.clock = c
	}
}

// WithoutGenerator disables periodic generation; chunks only arrive via Emit.
func WithoutGenerator() MockOption {
	return func(o *mockOptions) {
		o.generate = false
	}
}

func newMockOptions(opts []MockOption) mockOptions {
	o := mockOptions{clock: clock.New(), amplitude: 0.5, generate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MockSource is a mock audio source for testing.
// It generates synthetic audio (silence or sine wave) once per buffer period.
type MockSource struct {
	cfg    Config
	logger *slog.Logger
	opts   mockOptions

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	phase float64
}

// NewMockSource creates a new mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	return &MockSource{
		cfg:      cfg,
		logger:   logger,
		opts:     newMockOptions(opts),
		streamCh: make(chan AudioChunk, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start begins generating audio.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan AudioChunk, 10)

	if m.opts.generate {
		go m.generateLoop(ctx, m.stopCh)
	}

	m.logger.Info("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"frequency", m.opts.frequency,
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := m.opts.clock.Ticker(m.cfg.BufferDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.Emit(m.generateChunk())
		}
	}
}

// Emit delivers a chunk as if the device had captured it.
// It drops the chunk when the stream buffer is full or the source is stopped.
func (m *MockSource) Emit(chunk AudioChunk) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}
	select {
	case m.streamCh <- chunk:
		m.chunksRead.Add(1)
		m.samplesRead.Add(int64(len(chunk.Samples)))
		return true
	default:
		m.overruns.Add(1)
		m.logger.Debug("mock source: buffer full, dropping chunk")
		return false
	}
}

func (m *MockSource) generateChunk() AudioChunk {
	frames := m.cfg.FramesPerBuffer
	samples := make([]float32, frames*m.cfg.Channels)

	if m.opts.frequency > 0 {
		for i := 0; i < frames; i++ {
			v := float32(m.opts.amplitude * math.Sin(2*math.Pi*m.opts.frequency*m.phase/float64(m.cfg.SampleRate)))
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = v
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}

	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts audio generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)
	close(m.streamCh)

	m.logger.Info("mock audio source stopped")

	return nil
}

// Read reads the next audio chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	stream := m.Stream()
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-stream:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a mock audio sink for testing.
// It pulls one buffer from its timeline per buffer period and discards it.
type MockSink struct {
	cfg      Config
	logger   *slog.Logger
	opts     mockOptions
	timeline *Timeline

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}

	framesRendered atomic.Int64
}

// NewMockSink creates a new mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &MockSink{
		cfg:      cfg,
		logger:   logger,
		opts:     newMockOptions(opts),
		timeline: NewTimeline(cfg.SampleRate),
	}
}

// Start begins pulling audio from the timeline.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	if m.opts.generate {
		go m.renderLoop(ctx, m.stopCh)
	}
	m.logger.Info("mock audio sink started", "sample_rate", m.cfg.SampleRate)

	return nil
}

func (m *MockSink) renderLoop(ctx context.Context, stopCh chan struct{}) {
	ticker := m.opts.clock.Ticker(m.cfg.BufferDuration())
	defer ticker.Stop()

	buf := make([]float32, m.cfg.FramesPerBuffer)
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.timeline.Render(buf)
			m.framesRendered.Add(int64(len(buf)))
		}
	}
}

// Stop halts playback.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.logger.Info("mock audio sink stopped")

	return nil
}

// Timeline returns the sink's output clock and mixer.
func (m *MockSink) Timeline() *Timeline {
	return m.timeline
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Stop()
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		FramesRendered: m.framesRendered.Load(),
		ActiveVoices:   m.timeline.Active(),
		Running:        running,
		Backend:        "mock",
	}
}

var _ SinkWithStats = (*MockSink)(nil)
