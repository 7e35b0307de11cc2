// audio/controller.go
package audio

import "sync"

// State is the capture lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
)

// controller guards the Idle/Capturing transitions.
type controller struct {
	mu        sync.Mutex
	capturing bool
}

// NewController returns a controller in the idle state.
func NewController() Controller {
	return &controller{}
}

// StartCapturing moves to capturing and reports whether a transition happened.
func (c *controller) StartCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return false
	}
	c.capturing = true
	return true
}

// StopCapturing moves to idle and reports whether a transition happened.
func (c *controller) StopCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return false
	}
	c.capturing = false
	return true
}

func (c *controller) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

func (c *controller) State() State {
	if c.IsCapturing() {
		return StateCapturing
	}
	return StateIdle
}
