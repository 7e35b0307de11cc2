package audio

import (
	"encoding/binary"
	"fmt"
)

// pcmEncoder packs samples as little-endian s16. A short chunk produces a
// short packet.
type pcmEncoder struct {
	maxSamples int
}

func newPCMEncoder(format *CodecFormat) *pcmEncoder {
	return &pcmEncoder{maxSamples: format.FramesPerPacket * format.Channels}
}

func (e *pcmEncoder) Encode(pcm []int16, out []byte) (int, error) {
	if len(pcm) > e.maxSamples {
		return 0, fmt.Errorf("lpcm: %d samples exceed packet size %d", len(pcm), e.maxSamples)
	}
	if len(out) < len(pcm)*2 {
		return 0, fmt.Errorf("lpcm: output of %d bytes too small", len(out))
	}
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return len(pcm) * 2, nil
}

func (e *pcmEncoder) Close() error { return nil }
