package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// gopusEncoder is the layeh.com/gopus binding of libopus. gopus returns a
// fresh slice per packet, which is copied into the converter's arena.
type gopusEncoder struct {
	enc           *gopus.Encoder
	channels      int
	maxPacketSize int
}

func newGopusEncoder(format *CodecFormat, bitrate int) (*gopusEncoder, error) {
	enc, err := gopus.NewEncoder(int(format.SampleRate), format.Channels, gopusApplication(format.Flags))
	if err != nil {
		return nil, fmt.Errorf("gopus: create encoder: %w", err)
	}
	enc.SetBitrate(bitrate)
	return &gopusEncoder{
		enc:           enc,
		channels:      format.Channels,
		maxPacketSize: format.MaxPacketSize,
	}, nil
}

func (e *gopusEncoder) Encode(pcm []int16, out []byte) (int, error) {
	if e.enc == nil {
		return 0, ErrEncoderClosed
	}
	packet, err := e.enc.Encode(pcm, len(pcm)/e.channels, min(len(out), e.maxPacketSize))
	if err != nil {
		return 0, fmt.Errorf("gopus: encode: %w", err)
	}
	if len(packet) > len(out) {
		return 0, fmt.Errorf("gopus: packet of %d bytes exceeds %d", len(packet), len(out))
	}
	return copy(out, packet), nil
}

func (e *gopusEncoder) Close() error {
	e.enc = nil
	return nil
}

func gopusApplication(flags uint32) gopus.Application {
	switch flags {
	case OpusAppAudio:
		return gopus.Audio
	case OpusAppRestrictedLowDelay:
		return gopus.RestrictedLowDelay
	}
	return gopus.Voip
}
