package utils

import "time"

type ReconnectStrategy interface {
	NextDelay() time.Duration
	Reset()
}

type ExponentialBackoff struct {
	initialDelay time.Duration
	currentDelay time.Duration
	maxDelay     time.Duration
}

func NewExponentialBackoff() *ExponentialBackoff {
	return NewExponentialBackoffWith(1*time.Second, 30*time.Second)
}

// NewExponentialBackoffWith starts at initial and doubles up to max.
func NewExponentialBackoffWith(initial, max time.Duration) *ExponentialBackoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &ExponentialBackoff{
		initialDelay: initial,
		currentDelay: initial,
		maxDelay:     max,
	}
}

func (e *ExponentialBackoff) NextDelay() time.Duration {
	delay := e.currentDelay
	e.currentDelay *= 2
	if e.currentDelay > e.maxDelay {
		e.currentDelay = e.maxDelay
	}
	return delay
}

// Reset restarts the sequence after a successful connection.
func (e *ExponentialBackoff) Reset() {
	e.currentDelay = e.initialDelay
}
