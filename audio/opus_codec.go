package audio

import (
	"fmt"
	"log/slog"

	"github.com/hraban/opus"
)

// OpusEncoder encodes frames with libopus. Every chunk handed to Encode must
// be a legal Opus frame size; the converter's packet plan guarantees that.
type OpusEncoder struct {
	encoder         *opus.Encoder
	framesPerPacket int
	channels        int
	logger          *slog.Logger
}

// NewOpusEncoder creates an encoder for a negotiated opus format.
func NewOpusEncoder(format *CodecFormat, bitrate int, logger *slog.Logger) (*OpusEncoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := opus.NewEncoder(int(format.SampleRate), format.Channels, opusApplication(format.Flags))
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}

	logger.Debug("Opus encoder ready",
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"frame_size", format.FramesPerPacket,
		"bitrate", bitrate)

	return &OpusEncoder{
		encoder:         enc,
		framesPerPacket: format.FramesPerPacket,
		channels:        format.Channels,
		logger:          logger,
	}, nil
}

// Encode writes one opus packet for pcm into out.
func (e *OpusEncoder) Encode(pcm []int16, out []byte) (int, error) {
	if e.encoder == nil {
		return 0, ErrEncoderClosed
	}
	if len(pcm) > e.framesPerPacket*e.channels {
		return 0, fmt.Errorf("opus: %d samples exceed packet size %d", len(pcm), e.framesPerPacket)
	}

	n, err := e.encoder.Encode(pcm, out)
	if err != nil {
		return 0, fmt.Errorf("opus encode failed: %w", err)
	}
	return n, nil
}

// Close releases the encoder.
func (e *OpusEncoder) Close() error {
	e.encoder = nil
	return nil
}

func opusApplication(flags uint32) opus.Application {
	switch flags {
	case OpusAppAudio:
		return opus.AppAudio
	case OpusAppRestrictedLowDelay:
		return opus.AppRestrictedLowdelay
	}
	return opus.AppVoIP
}
