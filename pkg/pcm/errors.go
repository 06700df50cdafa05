package pcm

import "errors"

// DecodeError reports a malformed inbound audio payload.
type DecodeError struct {
	Length int
	Reason string
	Cause  error
}

func (e *DecodeError) Error() string {
	msg := "pcm: decode failed: " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
