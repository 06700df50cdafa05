package live

import (
	"errors"
	"fmt"
)

// Common errors returned by channels and dialers.
var (
	ErrClosed           = errors.New("live: channel closed")
	ErrMissingAPIKey    = errors.New("live: missing API key")
	ErrUnknownTransport = errors.New("live: unknown transport")
)

// ChannelError is an open, send or receive failure on the channel.
// It always ends the session.
type ChannelError struct {
	Op    string
	Cause error
}

func (e *ChannelError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("live: %s failed", e.Op)
	}
	return fmt.Sprintf("live: %s failed: %v", e.Op, e.Cause)
}

func (e *ChannelError) Unwrap() error {
	return e.Cause
}

// IsChannelError reports whether err is a ChannelError.
func IsChannelError(err error) bool {
	var ce *ChannelError
	return errors.As(err, &ce)
}
