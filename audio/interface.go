// audio/interface.go
package audio

import "time"

// Controller tracks the capture lifecycle of a pipeline.
type Controller interface {
	StartCapturing() bool
	StopCapturing() bool
	IsCapturing() bool
	State() State
}

// CaptureFunc receives one period of samples together with the host clock
// reading taken when the period became available. It runs on the device's
// realtime thread and must not block.
type CaptureFunc func(buf RawBuffer, hostTime time.Duration)

// Device is a capture backend delivering fixed-size periods of mono s16
// samples.
type Device interface {
	SampleRate() float64
	PeriodFrames() int
	Start(fn CaptureFunc) error
	Stop() error
	Close() error
}

// ClockSource supplies monotonic host time readings.
type ClockSource interface {
	Now() time.Duration
}

// InputStatus is the answer of an InputSupplier to a pull request.
type InputStatus int

const (
	InputHaveData InputStatus = iota
	InputNoDataNow
)

func (s InputStatus) String() string {
	if s == InputHaveData {
		return "have_data"
	}
	return "no_data_now"
}

// InputSupplier hands input to the converter on request. It answers
// InputHaveData only when it can provide at least maxFrames frames.
type InputSupplier interface {
	RequestInput(maxFrames int) (RawBuffer, InputStatus)
}

// PacketEncoder encodes one packet worth of interleaved samples into out and
// returns the number of bytes written. pcm holds at most FramesPerPacket
// frames; len(out) is at least MaxPacketSize.
type PacketEncoder interface {
	Encode(pcm []int16, out []byte) (int, error)
	Close() error
}
