//go:build !portaudio

package audioio

import "log/slog"

const portaudioAvailable = false

func newPortAudioSource(Config, *slog.Logger) (Source, error) {
	return nil, ErrPortAudioUnavailable
}

func newPortAudioSink(Config, *slog.Logger) (Sink, error) {
	return nil, ErrPortAudioUnavailable
}
