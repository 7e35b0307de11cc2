package audio

import (
	"errors"
	"fmt"
)

var (
	ErrCodecUnsupported      = errors.New("codec not supported")
	ErrSampleRateUnsupported = errors.New("sample rate not supported")
	ErrChannelsUnsupported   = errors.New("channel count not supported")
	ErrFormatMismatch        = errors.New("input format mismatch")
	ErrEncoderClosed         = errors.New("encoder closed")
)

// FormatNegotiationError is returned when no converter can be built between
// the capture format and the requested codec.
type FormatNegotiationError struct {
	Input InputFormat
	Codec CodecID
	Err   error
}

func (e *FormatNegotiationError) Error() string {
	return fmt.Sprintf("negotiate %s from %gHz/%dch: %v", e.Codec, e.Input.SampleRate, e.Input.Channels, e.Err)
}

func (e *FormatNegotiationError) Unwrap() error { return e.Err }

// ConversionError reports a buffer the converter could not encode. The
// converter remains usable for the next buffer.
type ConversionError struct {
	Codec  CodecID
	Frames int // frames offered by the failing buffer
	Packet int // index of the packet being encoded, -1 when input was rejected
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Packet < 0 {
		return fmt.Sprintf("%s conversion of %d frames: %v", e.Codec, e.Frames, e.Err)
	}
	return fmt.Sprintf("%s conversion of %d frames, packet %d: %v", e.Codec, e.Frames, e.Packet, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
