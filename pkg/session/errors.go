package session

import (
	"errors"
	"fmt"
)

// Errors returned by the Controller.
var (
	ErrMissingCredential = errors.New("session: missing API key (set NEO_API_KEY, GEMINI_API_KEY or API_KEY)")
	ErrNoDialer          = errors.New("session: no live transport configured")
	ErrClosed            = errors.New("session: controller closed")
	ErrUnknownVoice      = errors.New("session: unknown voice")

	// errRemoteClosed ends a session the service closed cleanly.
	errRemoteClosed = errors.New("session: channel closed by remote")
)

// ToolInvocationError is a tool call neo could not honor. The call is
// answered with a failure result and the session continues.
type ToolInvocationError struct {
	Name   string
	Reason string
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("session: tool %q: %s", e.Name, e.Reason)
}

// IsToolInvocation reports whether err is a ToolInvocationError.
func IsToolInvocation(err error) bool {
	var te *ToolInvocationError
	return errors.As(err, &te)
}
