package audio

import "time"

// blocker accumulates backend callbacks of arbitrary size into periods of
// exactly periodFrames frames. The host time of a period is the arrival time
// of the callback that carried its first frame, advanced by that frame's
// offset inside the callback. All storage is allocated up front.
type blocker struct {
	rate         float64
	channels     int
	periodFrames int

	pending   []int16
	fill      int // samples in pending
	startTime time.Duration
}

func newBlocker(rate float64, channels, periodFrames int) *blocker {
	return &blocker{
		rate:         rate,
		channels:     channels,
		periodFrames: periodFrames,
		pending:      make([]int16, periodFrames*channels),
	}
}

// push consumes samples that arrived at hostTime and calls emit once for
// every completed period. The buffer passed to emit is reused afterwards.
func (b *blocker) push(samples []int16, hostTime time.Duration, emit CaptureFunc) {
	consumed := 0
	for consumed < len(samples) {
		if b.fill == 0 {
			b.startTime = hostTime + b.offset(consumed/b.channels)
		}
		n := copy(b.pending[b.fill:], samples[consumed:])
		b.fill += n
		consumed += n

		if b.fill == len(b.pending) {
			emit(RawBuffer{SampleRate: b.rate, Channels: b.channels, Samples: b.pending}, b.startTime)
			b.fill = 0
		}
	}
}

// reset drops a partially filled period.
func (b *blocker) reset() {
	b.fill = 0
}

func (b *blocker) offset(frames int) time.Duration {
	return framesDuration(frames, b.rate)
}
