package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestControllerTransitions(t *testing.T) {
	c := NewController()
	assert.Equal(t, StateIdle, c.State())

	assert.True(t, c.StartCapturing())
	assert.False(t, c.StartCapturing())
	assert.Equal(t, StateCapturing, c.State())

	assert.True(t, c.StopCapturing())
	assert.False(t, c.StopCapturing())
	assert.False(t, c.IsCapturing())
}

func TestMonotonicClock(t *testing.T) {
	c := NewMonotonicClock()
	a := c.Now()
	b := c.Now()
	assert.GreaterOrEqual(t, b, a)

	var f ClockSource = ClockFunc(func() time.Duration { return 5 * time.Second })
	assert.Equal(t, 5*time.Second, f.Now())
}
