package audio

import "time"

// MonotonicClock reads the Go runtime's monotonic clock relative to the
// moment the clock was created.
type MonotonicClock struct {
	origin time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{origin: time.Now()}
}

func (c *MonotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}

// ClockFunc adapts a function to ClockSource.
type ClockFunc func() time.Duration

func (f ClockFunc) Now() time.Duration { return f() }

type clockMode int

const (
	clockUndecided clockMode = iota
	clockStream
	clockFallback
)

// streamClock stamps callbacks with one time base per session. The first
// callback decides: a positive stream time selects the stream clock for the
// rest of the session, otherwise the fallback clock is used throughout. A
// stream reading that is missing or goes backwards is replaced by the
// previous stamp advanced by the previous callback's frames.
type streamClock struct {
	fallback ClockSource
	rate     float64

	mode       clockMode
	last       time.Duration
	lastFrames int
}

func newStreamClock(fallback ClockSource, rate float64) *streamClock {
	return &streamClock{fallback: fallback, rate: rate}
}

func (c *streamClock) reset() {
	c.mode = clockUndecided
	c.last = 0
	c.lastFrames = 0
}

// next returns the host time of a callback holding frames frames whose
// stream reading is stream.
func (c *streamClock) next(stream time.Duration, frames int) time.Duration {
	if c.mode == clockUndecided {
		c.mode = clockFallback
		if stream > 0 {
			c.mode = clockStream
		}
	}

	var t time.Duration
	switch c.mode {
	case clockStream:
		t = stream
		if t <= 0 || t < c.last {
			t = c.last + framesDuration(c.lastFrames, c.rate)
		}
	default:
		t = c.fallback.Now()
	}
	c.last = t
	c.lastFrames = frames
	return t
}

func framesDuration(frames int, rate float64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(frames) * float64(time.Second) / rate)
}
