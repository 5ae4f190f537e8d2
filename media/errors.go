package media

import (
	"errors"
	"fmt"
)

var (
	ErrDenied          = errors.New("capture permission denied")
	ErrNoDevice        = errors.New("no capture device available")
	ErrOverconstrained = errors.New("capture constraints cannot be satisfied")
	ErrStreamHeld      = errors.New("a capture stream is already held; release it first")
)

// PermissionError is returned by RequestAccess when the user denied access or
// no usable device exists. The session cannot begin until it is resolved.
type PermissionError struct {
	Reason string
	Err    error
}

func (e *PermissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media permission: %s (%v)", e.Reason, e.Err)
	}
	return fmt.Sprintf("media permission: %s", e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// UserMessage is the blocking alert shown by the host view.
func (e *PermissionError) UserMessage() string {
	if errors.Is(e.Err, ErrNoDevice) {
		return "No microphone or camera was found. Connect a device and try again."
	}
	return "Camera and microphone access is required to record your answers. Please allow access and try again."
}
