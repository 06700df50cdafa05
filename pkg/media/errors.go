package media

import (
	"errors"
	"fmt"
)

// Errors returned by the Acquirer.
var (
	ErrBusy     = errors.New("media: acquisition already outstanding")
	ErrTimeout  = errors.New("media: acquisition timed out")
	ErrReleased = errors.New("media: handle released")
)

// Kind is the stream kind being acquired.
type Kind string

const (
	Microphone Kind = "microphone"
	Camera     Kind = "camera"
)

// AcquisitionError reports that a device could not be acquired.
type AcquisitionError struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *AcquisitionError) Error() string {
	msg := fmt.Sprintf("media: %s unavailable", e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AcquisitionError) Unwrap() error {
	return e.Cause
}

// IsAcquisition reports whether err is or wraps an *AcquisitionError.
func IsAcquisition(err error) bool {
	var ae *AcquisitionError
	return errors.As(err, &ae)
}
