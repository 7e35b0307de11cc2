package audio

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// Opus application modes, stored in CodecFormat.Flags. The values match the
// OPUS_APPLICATION_* constants of libopus.
const (
	OpusAppVoIP               uint32 = 2048
	OpusAppAudio              uint32 = 2049
	OpusAppRestrictedLowDelay uint32 = 2051
)

const (
	opusMaxPacketSize = 4000 // recommended libopus output bound
	defaultBitrate    = 32000
)

var opusSampleRates = []float64{8000, 12000, 16000, 24000, 48000}

// CodecOptions selects and tunes the output codec.
type CodecOptions struct {
	Codec           CodecID
	Bitrate         int    // bits per second, opus codecs only
	Application     string // voip, audio or lowdelay, opus codecs only
	FramesPerPacket int    // requested packet size, DefaultFramesPerPacket when zero
}

// ParseOpusApplication maps an application name to its flag value.
func ParseOpusApplication(name string) (uint32, error) {
	switch strings.ToLower(name) {
	case "", "voip":
		return OpusAppVoIP, nil
	case "audio":
		return OpusAppAudio, nil
	case "lowdelay", "restricted_lowdelay":
		return OpusAppRestrictedLowDelay, nil
	}
	return 0, fmt.Errorf("unknown opus application %q", name)
}

// NegotiateFormat derives the output format for a capture format. Capture is
// mono only. Opus codecs pick the largest legal Opus frame not exceeding the
// requested packet size, since 1024 frames is not an Opus frame duration.
func NegotiateFormat(in InputFormat, opts CodecOptions) (*CodecFormat, error) {
	fail := func(err error) (*CodecFormat, error) {
		return nil, &FormatNegotiationError{Input: in, Codec: opts.Codec, Err: err}
	}

	if math.IsNaN(in.SampleRate) || math.IsInf(in.SampleRate, 0) || in.SampleRate <= 0 {
		return fail(fmt.Errorf("%w: %g", ErrSampleRateUnsupported, in.SampleRate))
	}
	if in.Channels != 1 {
		return fail(fmt.Errorf("%w: %d, capture is mono", ErrChannelsUnsupported, in.Channels))
	}
	fpp := opts.FramesPerPacket
	if fpp <= 0 {
		fpp = DefaultFramesPerPacket
	}

	format := &CodecFormat{
		SampleRate: in.SampleRate,
		Channels:   in.Channels,
		Codec:      opts.Codec,
	}

	switch opts.Codec {
	case CodecOpus, CodecOpusGopus:
		if !isOpusRate(in.SampleRate) {
			return fail(fmt.Errorf("%w: %gHz for opus", ErrSampleRateUnsupported, in.SampleRate))
		}
		app, err := ParseOpusApplication(opts.Application)
		if err != nil {
			return fail(err)
		}
		frames := opusFrameSize(in.SampleRate, fpp)
		if frames == 0 {
			return fail(fmt.Errorf("no opus frame fits in %d frames", fpp))
		}
		format.FramesPerPacket = frames
		format.Flags = app
		format.MaxPacketSize = opusMaxPacketSize
	case CodecLPCM:
		format.FramesPerPacket = fpp
		format.MaxPacketSize = fpp * in.Channels * 2
	default:
		return fail(fmt.Errorf("%w: %q", ErrCodecUnsupported, opts.Codec))
	}
	return format, nil
}

// NewPacketEncoder builds the encoder for a negotiated format.
func NewPacketEncoder(format *CodecFormat, opts CodecOptions, logger *slog.Logger) (PacketEncoder, error) {
	bitrate := opts.Bitrate
	if bitrate <= 0 {
		bitrate = defaultBitrate
	}
	switch format.Codec {
	case CodecOpus:
		return NewOpusEncoder(format, bitrate, logger)
	case CodecOpusGopus:
		return newGopusEncoder(format, bitrate)
	case CodecLPCM:
		return newPCMEncoder(format), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrCodecUnsupported, format.Codec)
}

func isOpusRate(rate float64) bool {
	for _, r := range opusSampleRates {
		if rate == r {
			return true
		}
	}
	return false
}

// opusFrameSizes returns the 60, 40, 20, 10, 5 and 2.5 ms frame sizes at rate,
// largest first.
func opusFrameSizes(rate float64) []int {
	r := int(rate)
	return []int{r * 3 / 50, r / 25, r / 50, r / 100, r / 200, r / 400}
}

// opusFrameSize returns the largest legal frame size at rate that is not
// larger than limit, or zero.
func opusFrameSize(rate float64, limit int) int {
	for _, n := range opusFrameSizes(rate) {
		if n <= limit {
			return n
		}
	}
	return 0
}

// PacketPlan splits frames into the packet sizes one conversion produces.
// Linear PCM uses full packets and a short final one. Opus fills packets of
// FramesPerPacket and encodes the remainder with the largest legal frames
// that fit, so every packet decodes to exactly the frames it covers.
// leftover is the tail no legal frame can hold; it is not encoded.
func PacketPlan(format *CodecFormat, frames int) (plan []int, leftover int) {
	fpp := format.FramesPerPacket
	if fpp <= 0 || frames <= 0 {
		return nil, max(frames, 0)
	}
	switch format.Codec {
	case CodecOpus, CodecOpusGopus:
		for frames > 0 {
			n := opusFrameSize(format.SampleRate, min(fpp, frames))
			if n == 0 {
				break
			}
			plan = append(plan, n)
			frames -= n
		}
		return plan, frames
	}
	for frames > 0 {
		n := min(fpp, frames)
		plan = append(plan, n)
		frames -= n
	}
	return plan, 0
}
