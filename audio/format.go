package audio

import (
	"fmt"
	"time"
)

// DefaultFramesPerPacket is the packet size the codecs aim for when they are
// free to choose one.
const DefaultFramesPerPacket = 1024

// DefaultPeriod is the capture buffer period.
const DefaultPeriod = 100 * time.Millisecond

// CodecID names a compressed output format.
type CodecID string

const (
	CodecOpus      CodecID = "opus"       // libopus via github.com/hraban/opus
	CodecOpusGopus CodecID = "opus-gopus" // libopus via layeh.com/gopus
	CodecLPCM      CodecID = "lpcm"       // little-endian s16 packets, no compression
)

// RawBuffer is one block of interleaved signed 16-bit samples delivered by a
// capture device. The samples are only valid for the duration of the callback
// that received them.
type RawBuffer struct {
	SampleRate float64
	Channels   int
	Samples    []int16
}

// Frames returns the number of sample frames held by the buffer.
func (b RawBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback time covered by the buffer.
func (b RawBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / b.SampleRate * float64(time.Second))
}

// InputFormat describes what the capture device produces.
type InputFormat struct {
	SampleRate float64
	Channels   int
}

// CodecFormat describes the compressed stream produced by the converter. It is
// derived once at pipeline construction and shared read-only afterwards.
type CodecFormat struct {
	SampleRate      float64
	Channels        int
	FramesPerPacket int
	Codec           CodecID
	Flags           uint32 // codec specific, the Opus application for opus codecs
	MaxPacketSize   int    // upper bound of one encoded packet in bytes
}

func (f CodecFormat) String() string {
	return fmt.Sprintf("%s %gHz %dch %d frames/packet", f.Codec, f.SampleRate, f.Channels, f.FramesPerPacket)
}

// PacketDuration returns the time covered by one full packet.
func (f CodecFormat) PacketDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(f.FramesPerPacket) / f.SampleRate * float64(time.Second))
}

// PacketDescriptor locates one encoded packet inside a contiguous byte region.
// Frames is the number of input frames the packet covers; only the final
// packet of a conversion may cover fewer than FramesPerPacket.
type PacketDescriptor struct {
	Offset int
	Length int
	Frames int
}

// PeriodFrames returns the number of frames in one buffer period at rate,
// truncated (48000 Hz and 100 ms give 4800).
func PeriodFrames(rate float64, period time.Duration) int {
	if period <= 0 {
		period = DefaultPeriod
	}
	return int(rate * period.Seconds())
}
