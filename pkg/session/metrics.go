package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Metrics counts activity for the current session and tracks response
// latency, measured from the last user transcript to the first audio chunk
// of the reply.
type Metrics struct {
	ChunksReceived  int64 `json:"chunks_received"`
	ChunksScheduled int64 `json:"chunks_scheduled"`
	DecodeErrors    int64 `json:"decode_errors"`
	AudioFramesSent int64 `json:"audio_frames_sent"`
	ImageFramesSent int64 `json:"image_frames_sent"`
	ToolCalls       int64 `json:"tool_calls"`
	ToolErrors      int64 `json:"tool_errors"`
	Interruptions   int64 `json:"interruptions"`
	Turns           int64 `json:"turns"`

	FirstAudioLatency time.Duration `json:"first_audio_latency"`
	AvgAudioLatency   time.Duration `json:"avg_audio_latency"`
}

// MetricsCollector collects Metrics. It is goroutine-safe.
type MetricsCollector struct {
	clock clock.Clock

	mu         sync.Mutex
	current    Metrics
	speechEnd  time.Time
	firstAudio bool
	history    []time.Duration // recent first-audio latencies
}

// NewMetricsCollector creates a collector reading time from c.
func NewMetricsCollector(c clock.Clock) *MetricsCollector {
	if c == nil {
		c = clock.New()
	}
	return &MetricsCollector{clock: c, history: make([]time.Duration, 0, 100)}
}

// Reset clears all counters for a new session.
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{}
	m.speechEnd = time.Time{}
	m.firstAudio = false
	m.history = m.history[:0]
}

// MarkSpeechEnd records that the user finished a phrase.
// This is the reference point for latency.
func (m *MetricsCollector) MarkSpeechEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speechEnd = m.clock.Now()
	m.firstAudio = false
}

// MarkChunk records an inbound audio chunk.
func (m *MetricsCollector) MarkChunk() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ChunksReceived++
	if m.firstAudio || m.speechEnd.IsZero() {
		return
	}
	m.firstAudio = true
	lat := m.clock.Now().Sub(m.speechEnd)
	m.current.FirstAudioLatency = lat
	m.history = append(m.history, lat)
	if len(m.history) > 100 {
		m.history = m.history[1:]
	}
	var sum time.Duration
	for _, h := range m.history {
		sum += h
	}
	m.current.AvgAudioLatency = sum / time.Duration(len(m.history))
}

// MarkTurnComplete records the end of a model turn.
func (m *MetricsCollector) MarkTurnComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Turns++
}

func (m *MetricsCollector) add(field *int64) {
	m.mu.Lock()
	*field++
	m.mu.Unlock()
}

// IncrementScheduled counts a chunk placed on the output clock.
func (m *MetricsCollector) IncrementScheduled() { m.add(&m.current.ChunksScheduled) }

// IncrementDecodeErrors counts a dropped malformed chunk.
func (m *MetricsCollector) IncrementDecodeErrors() { m.add(&m.current.DecodeErrors) }

// IncrementAudioSent counts an outbound microphone frame.
func (m *MetricsCollector) IncrementAudioSent() { m.add(&m.current.AudioFramesSent) }

// IncrementToolCalls counts a tool invocation.
func (m *MetricsCollector) IncrementToolCalls() { m.add(&m.current.ToolCalls) }

// IncrementToolErrors counts a tool invocation answered with a failure.
func (m *MetricsCollector) IncrementToolErrors() { m.add(&m.current.ToolErrors) }

// IncrementInterruptions counts a barge-in.
func (m *MetricsCollector) IncrementInterruptions() { m.add(&m.current.Interruptions) }

// Current returns a copy of the counters.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// FormatLatency returns a one-line latency summary.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.FirstAudioLatency) + " first audio | " +
		formatDuration(m.AvgAudioLatency) + " avg"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
