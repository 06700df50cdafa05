package audioio

import (
	"math"
	"sync"

	"github.com/teslashibe/go-neo/pkg/pcm"
)

// Voice is a buffer placed on a Timeline.
type Voice interface {
	// Stop removes the voice immediately. Its end callback does not run.
	// Stopping a finished or stopped voice is a no-op.
	Stop()
}

// Timeline is a mono output clock with a voice mixer.
//
// Time is measured in rendered frames divided by the sample rate, so it only
// advances while a sink pulls audio. Voices are placed at absolute times and
// mixed sample-accurately; a voice whose start time has already passed
// begins at the next rendered frame.
type Timeline struct {
	rate int

	mu     sync.Mutex
	frames int64
	nextID uint64
	voices map[uint64]*voice
}

type voice struct {
	t       *Timeline
	id      uint64
	start   int64
	samples []float32
	onEnded func()
}

func (v *voice) Stop() {
	v.t.mu.Lock()
	delete(v.t.voices, v.id)
	v.t.mu.Unlock()
}

func (v *voice) end() int64 {
	return v.start + int64(len(v.samples))
}

// NewTimeline creates a timeline at the given sample rate.
func NewTimeline(sampleRate int) *Timeline {
	if sampleRate <= 0 {
		sampleRate = pcm.PlaybackRate
	}
	return &Timeline{
		rate:   sampleRate,
		voices: make(map[uint64]*voice),
	}
}

// SampleRate returns the output sample rate.
func (t *Timeline) SampleRate() int {
	return t.rate
}

// CurrentTime returns the output clock in seconds.
func (t *Timeline) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.frames) / float64(t.rate)
}

// Active returns the number of voices still on the timeline.
func (t *Timeline) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Start places buf on the timeline at time at (seconds). onEnded runs once
// the last frame of the voice has been rendered, outside the timeline lock.
// Multi-channel buffers are downmixed.
func (t *Timeline) Start(buf *pcm.Buffer, at float64, onEnded func()) Voice {
	samples := downmix(buf)
	if buf != nil && buf.SampleRate > 0 && buf.SampleRate != t.rate {
		samples = ResampleFloat(samples, buf.SampleRate, t.rate)
	}

	t.mu.Lock()
	start := int64(math.Round(at * float64(t.rate)))
	if start < t.frames {
		start = t.frames
	}
	t.nextID++
	v := &voice{t: t, id: t.nextID, start: start, samples: samples, onEnded: onEnded}
	t.voices[v.id] = v
	t.mu.Unlock()

	return v
}

// Render mixes the next len(out) frames into out and advances the clock.
// Voices that finish inside this block are removed and their callbacks run
// after the lock is released.
func (t *Timeline) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	t.mu.Lock()
	from := t.frames
	to := from + int64(len(out))
	var ended []func()
	for id, v := range t.voices {
		lo := max(v.start, from)
		hi := min(v.end(), to)
		for f := lo; f < hi; f++ {
			out[f-from] += v.samples[f-v.start]
		}
		if v.end() <= to {
			delete(t.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	t.frames = to
	t.mu.Unlock()

	for i := range out {
		if out[i] > 1 {
			out[i] = 1
		} else if out[i] < -1 {
			out[i] = -1
		}
	}
	for _, fn := range ended {
		fn()
	}
}

// Advance renders and discards d seconds of output.
func (t *Timeline) Advance(seconds float64) {
	n := int(math.Round(seconds * float64(t.rate)))
	if n <= 0 {
		return
	}
	t.Render(make([]float32, n))
}

func downmix(buf *pcm.Buffer) []float32 {
	if buf == nil || len(buf.Channels) == 0 {
		return nil
	}
	if len(buf.Channels) == 1 {
		return buf.Channels[0]
	}
	n := buf.Frames()
	out := make([]float32, n)
	for _, ch := range buf.Channels {
		for i := 0; i < n && i < len(ch); i++ {
			out[i] += ch[i]
		}
	}
	scale := 1 / float32(len(buf.Channels))
	for i := range out {
		out[i] *= scale
	}
	return out
}
