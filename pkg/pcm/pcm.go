// Package pcm converts between float audio samples and the base64 PCM16
// frames carried by the live channel.
//
// Outbound audio is always mono 16 kHz. Inbound audio arrives as
// interleaved little-endian int16 at the rate the remote side announces
// (24 kHz mono for Gemini Live).
package pcm

import (
	"encoding/base64"
	"fmt"
	"math"
)

// Sample rates used on the wire.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// MIMEType tags outbound microphone frames.
const MIMEType = "audio/pcm;rate=16000"

const scale = 32768

// Frame is one outbound audio frame ready for the channel.
type Frame struct {
	Data     string // base64 of little-endian int16 samples
	MIMEType string
}

// Bytes returns the decoded PCM payload of the frame.
func (f Frame) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(f.Data)
}

// Buffer is a decoded multi-channel float buffer.
// Channels[c][i] holds sample i of channel c in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// EncodeOutbound converts float samples to a base64 PCM16 frame.
// Samples outside [-1, 1] are clamped to the int16 range.
func EncodeOutbound(samples []float32) Frame {
	return Frame{
		Data:     base64.StdEncoding.EncodeToString(FloatToBytes(samples)),
		MIMEType: MIMEType,
	}
}

// DecodeInbound decodes a base64 PCM16 payload into a float buffer,
// de-interleaving channelCount channels.
func DecodeInbound(payload string, sampleRate, channelCount int) (*Buffer, error) {
	if channelCount <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channelCount)}
	}
	if sampleRate <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Cause: err}
	}
	return DecodeBytes(raw, sampleRate, channelCount)
}

// DecodeBytes is DecodeInbound without the base64 layer.
func DecodeBytes(raw []byte, sampleRate, channelCount int) (*Buffer, error) {
	if channelCount <= 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("invalid channel count %d", channelCount)}
	}
	stride := channelCount * 2
	if len(raw)%stride != 0 {
		return nil, &DecodeError{
			Length: len(raw),
			Reason: fmt.Sprintf("length not a multiple of %d bytes", stride),
		}
	}

	frames := len(raw) / stride
	buf := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channelCount)}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channelCount; c++ {
			off := (i*channelCount + c) * 2
			s := int16(uint16(raw[off]) | uint16(raw[off+1])<<8)
			buf.Channels[c][i] = float32(s) / scale
		}
	}
	return buf, nil
}

// FloatToBytes scales float samples by 32768 and packs them as
// little-endian int16.
func FloatToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		s := FloatToInt16(f)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// FloatToInt16 converts one sample, truncating toward zero and clamping.
// NaN maps to 0.
func FloatToInt16(f float32) int16 {
	if f != f {
		return 0
	}
	v := float64(f) * scale
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Int16ToFloat converts int16 samples to floats in [-1, 1).
func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / scale
	}
	return out
}

// Loudness returns the mean absolute amplitude of the first channel,
// clamped to [0, 1].
func Loudness(buf *Buffer) float64 {
	if buf == nil || len(buf.Channels) == 0 || len(buf.Channels[0]) == 0 {
		return 0
	}
	var sum float64
	for _, s := range buf.Channels[0] {
		sum += math.Abs(float64(s))
	}
	level := sum / float64(len(buf.Channels[0]))
	if level > 1 {
		return 1
	}
	return level
}
