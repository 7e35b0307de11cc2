package core

import (
	"errors"
	"fmt"
)

var (
	ErrPipelineClosed = errors.New("pipeline closed")
	ErrCallbackPanic  = errors.New("capture callback panicked")
	ErrInvalidConfig  = errors.New("invalid config")
)

// DeviceActivationError is returned by Pipeline.Start when the capture device
// cannot be started. The pipeline stays idle.
type DeviceActivationError struct {
	Err error
}

func (e *DeviceActivationError) Error() string {
	return fmt.Sprintf("activate capture device: %v", e.Err)
}

func (e *DeviceActivationError) Unwrap() error { return e.Err }
