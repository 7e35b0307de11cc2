package audio

import (
	"fmt"
	"time"
)

// DefaultTimescale expresses presentation times in milliseconds.
const DefaultTimescale int32 = 1000

// Timestamp is a rational presentation time: Value ticks of 1/Timescale s.
type Timestamp struct {
	Value     int64
	Timescale int32
}

// Seconds returns the timestamp as floating point seconds.
func (t Timestamp) Seconds() float64 {
	if t.Timescale == 0 {
		return 0
	}
	return float64(t.Value) / float64(t.Timescale)
}

// Duration converts the timestamp back to a time.Duration.
func (t Timestamp) Duration() time.Duration {
	if t.Timescale == 0 {
		return 0
	}
	ts := int64(t.Timescale)
	return time.Duration(t.Value/ts)*time.Second + time.Duration(t.Value%ts)*time.Second/time.Duration(ts)
}

// Compare returns -1, 0 or +1 depending on whether t is before, equal to or
// after u. Timestamps with different timescales are compared exactly.
func (t Timestamp) Compare(u Timestamp) int {
	if t.Timescale == u.Timescale {
		switch {
		case t.Value < u.Value:
			return -1
		case t.Value > u.Value:
			return 1
		}
		return 0
	}
	a, b := t.Duration(), u.Duration()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d/%d", t.Value, t.Timescale)
}

// TimestampDeriver turns host clock readings into presentation timestamps.
// The result is truncated toward zero, so a monotonic clock yields
// non-decreasing timestamps.
type TimestampDeriver struct {
	timescale int32
}

// NewTimestampDeriver returns a deriver for the given timescale, falling back
// to DefaultTimescale when timescale is not positive.
func NewTimestampDeriver(timescale int32) TimestampDeriver {
	if timescale <= 0 {
		timescale = DefaultTimescale
	}
	return TimestampDeriver{timescale: timescale}
}

// Timescale returns the number of ticks per second.
func (d TimestampDeriver) Timescale() int32 {
	if d.timescale <= 0 {
		return DefaultTimescale
	}
	return d.timescale
}

// Derive converts hostTime into ticks. Whole seconds and the sub-second part
// are scaled separately so that hosts with long uptimes do not overflow.
func (d TimestampDeriver) Derive(hostTime time.Duration) Timestamp {
	ts := int64(d.Timescale())
	secs := int64(hostTime / time.Second)
	frac := int64(hostTime % time.Second)
	return Timestamp{
		Value:     secs*ts + frac*ts/int64(time.Second),
		Timescale: int32(ts),
	}
}
