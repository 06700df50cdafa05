//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const portaudioAvailable = true

// PortAudioSource captures the default input device through a callback stream.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	running  bool
	closed   bool
	streamCh chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return &PortAudioSource{
		cfg:      cfg,
		logger:   logger,
		streamCh: make(chan AudioChunk, 16),
	}, nil
}

// Start opens the default input stream and begins capture.
func (p *PortAudioSource) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	p.streamCh = make(chan AudioChunk, 16)
	stream, err := portaudio.OpenDefaultStream(
		p.cfg.Channels,
		0,
		float64(p.cfg.SampleRate),
		p.cfg.FramesPerBuffer,
		p.capture,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting input stream: %w", err)
	}

	p.stream = stream
	p.running = true
	p.logger.Info("microphone started",
		"sample_rate", p.cfg.SampleRate,
		"frames_per_buffer", p.cfg.FramesPerBuffer,
	)
	return nil
}

// capture runs on the PortAudio callback thread.
func (p *PortAudioSource) capture(in []float32) {
	samples := make([]float32, len(in))
	copy(samples, in)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	select {
	case p.streamCh <- AudioChunk{Samples: samples, SampleRate: p.cfg.SampleRate, Channels: p.cfg.Channels}:
		p.chunksRead.Add(1)
		p.samplesRead.Add(int64(len(samples)))
	default:
		p.overruns.Add(1)
	}
}

// Stop halts capture and closes the device stream.
func (p *PortAudioSource) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stream := p.stream
	p.stream = nil
	close(p.streamCh)
	p.mu.Unlock()

	// Stop waits for the callback to return, so it must run unlocked.
	var err error
	if stream != nil {
		err = stream.Stop()
		stream.Close()
	}
	portaudio.Terminate()
	p.logger.Info("microphone stopped")
	return err
}

// Read reads the next audio chunk.
func (p *PortAudioSource) Read(ctx context.Context) (AudioChunk, error) {
	stream := p.Stream()
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
func (p *PortAudioSource) Stream() <-chan AudioChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streamCh
}

// Config returns the audio configuration.
func (p *PortAudioSource) Config() Config { return p.cfg }

// Name returns "portaudio".
func (p *PortAudioSource) Name() string { return "portaudio" }

// Close releases the device.
func (p *PortAudioSource) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.Stop()
}

// Stats returns source statistics.
func (p *PortAudioSource) Stats() SourceStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return SourceStats{
		ChunksRead:  p.chunksRead.Load(),
		SamplesRead: p.samplesRead.Load(),
		Overruns:    p.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

// PortAudioSink renders a Timeline to the default output device.
type PortAudioSink struct {
	cfg      Config
	logger   *slog.Logger
	timeline *Timeline

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
	closed  bool

	framesRendered atomic.Int64
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return &PortAudioSink{
		cfg:      cfg,
		logger:   logger,
		timeline: NewTimeline(cfg.SampleRate),
	}, nil
}

// Start opens the default output stream.
func (p *PortAudioSink) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return io.ErrClosedPipe
	}
	if p.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(
		0,
		1,
		float64(p.cfg.SampleRate),
		p.cfg.FramesPerBuffer,
		p.render,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting output stream: %w", err)
	}

	p.stream = stream
	p.running = true
	p.logger.Info("speaker started", "sample_rate", p.cfg.SampleRate)
	return nil
}

// render runs on the PortAudio callback thread.
func (p *PortAudioSink) render(out []float32) {
	p.timeline.Render(out)
	p.framesRendered.Add(int64(len(out)))
}

// Stop halts playback.
func (p *PortAudioSink) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.Stop()
		stream.Close()
	}
	portaudio.Terminate()
	p.logger.Info("speaker stopped")
	return err
}

// Timeline returns the sink's output clock and mixer.
func (p *PortAudioSink) Timeline() *Timeline { return p.timeline }

// Config returns the audio configuration.
func (p *PortAudioSink) Config() Config { return p.cfg }

// Name returns "portaudio".
func (p *PortAudioSink) Name() string { return "portaudio" }

// Close releases the device.
func (p *PortAudioSink) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.Stop()
}

// Stats returns sink statistics.
func (p *PortAudioSink) Stats() SinkStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return SinkStats{
		FramesRendered: p.framesRendered.Load(),
		ActiveVoices:   p.timeline.Active(),
		Running:        running,
		Backend:        "portaudio",
	}
}
