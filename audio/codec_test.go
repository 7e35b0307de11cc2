package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateOpus(t *testing.T) {
	f, err := NegotiateFormat(InputFormat{SampleRate: 48000, Channels: 1}, CodecOptions{Codec: CodecOpus})
	require.NoError(t, err)

	assert.Equal(t, 960, f.FramesPerPacket)
	assert.Equal(t, OpusAppVoIP, f.Flags)
	assert.Equal(t, opusMaxPacketSize, f.MaxPacketSize)
	assert.InDelta(t, float64(20*time.Millisecond), float64(f.PacketDuration()), float64(time.Microsecond))
	assert.Equal(t, "opus 48000Hz 1ch 960 frames/packet", f.String())
}

func TestNegotiateLPCM(t *testing.T) {
	f, err := NegotiateFormat(InputFormat{SampleRate: 44100, Channels: 1}, CodecOptions{Codec: CodecLPCM})
	require.NoError(t, err)

	assert.Equal(t, DefaultFramesPerPacket, f.FramesPerPacket)
	assert.Equal(t, 2048, f.MaxPacketSize)
	assert.Equal(t, 44100.0, f.SampleRate)
}

func TestNegotiateFailures(t *testing.T) {
	tests := []struct {
		name string
		in   InputFormat
		opts CodecOptions
		want error
	}{
		{"nan rate", InputFormat{SampleRate: math.NaN(), Channels: 1}, CodecOptions{Codec: CodecLPCM}, ErrSampleRateUnsupported},
		{"zero rate", InputFormat{SampleRate: 0, Channels: 1}, CodecOptions{Codec: CodecLPCM}, ErrSampleRateUnsupported},
		{"stereo", InputFormat{SampleRate: 48000, Channels: 2}, CodecOptions{Codec: CodecOpus}, ErrChannelsUnsupported},
		{"opus rate", InputFormat{SampleRate: 44100, Channels: 1}, CodecOptions{Codec: CodecOpusGopus}, ErrSampleRateUnsupported},
		{"unknown codec", InputFormat{SampleRate: 48000, Channels: 1}, CodecOptions{Codec: "aac"}, ErrCodecUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NegotiateFormat(tt.in, tt.opts)
			assert.Nil(t, f)
			var negErr *FormatNegotiationError
			require.ErrorAs(t, err, &negErr)
			assert.Equal(t, tt.in.Channels, negErr.Input.Channels)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NegotiateFormat(InputFormat{SampleRate: 48000, Channels: 1}, CodecOptions{Codec: CodecOpus, FramesPerPacket: 100})
	assert.Error(t, err, "no opus frame fits in 100 frames at 48kHz")
}

func TestOpusFrameSize(t *testing.T) {
	assert.Equal(t, 960, opusFrameSize(48000, 1024))
	assert.Equal(t, 2880, opusFrameSize(48000, 4800))
	assert.Equal(t, 960, opusFrameSize(16000, 1024))
	assert.Equal(t, 80, opusFrameSize(8000, 100))
	assert.Zero(t, opusFrameSize(48000, 119))
}

func TestPacketPlan(t *testing.T) {
	opusAt := func(rate float64) *CodecFormat {
		return &CodecFormat{SampleRate: rate, Channels: 1, FramesPerPacket: opusFrameSize(rate, DefaultFramesPerPacket), Codec: CodecOpus}
	}
	tests := []struct {
		name     string
		format   *CodecFormat
		frames   int
		plan     []int
		leftover int
	}{
		{"opus 48k", opusAt(48000), 4800, []int{960, 960, 960, 960, 960}, 0},
		{"opus 24k", opusAt(24000), 2400, []int{960, 960, 480}, 0},
		{"opus 16k", opusAt(16000), 1600, []int{960, 640}, 0},
		{"opus 12k", opusAt(12000), 1200, []int{720, 480}, 0},
		{"opus 8k", opusAt(8000), 800, []int{480, 320}, 0},
		{"opus 48k 7ms", opusAt(48000), 336, []int{240}, 96},
		{"lpcm", &CodecFormat{SampleRate: 48000, Channels: 1, FramesPerPacket: 1024, Codec: CodecLPCM}, 4800, []int{1024, 1024, 1024, 1024, 704}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, leftover := PacketPlan(tt.format, tt.frames)
			assert.Equal(t, tt.plan, plan)
			assert.Equal(t, tt.leftover, leftover)
		})
	}
}

func TestParseOpusApplication(t *testing.T) {
	for name, want := range map[string]uint32{
		"":         OpusAppVoIP,
		"VoIP":     OpusAppVoIP,
		"audio":    OpusAppAudio,
		"lowdelay": OpusAppRestrictedLowDelay,
	} {
		got, err := ParseOpusApplication(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseOpusApplication("music")
	assert.Error(t, err)
}

func TestPeriodFrames(t *testing.T) {
	assert.Equal(t, 4800, PeriodFrames(48000, 100*time.Millisecond))
	assert.Equal(t, 4410, PeriodFrames(44100, 0))
	assert.Equal(t, 1600, PeriodFrames(16000, 100*time.Millisecond))
}

func TestPCMEncoder(t *testing.T) {
	enc := newPCMEncoder(&CodecFormat{FramesPerPacket: 2, Channels: 1})
	out := make([]byte, 4)

	n, err := enc.Encode([]int16{1, -2}, out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x01, 0x00, 0xfe, 0xff}, out)

	_, err = enc.Encode([]int16{1, 2, 3}, make([]byte, 6))
	assert.Error(t, err)
	_, err = enc.Encode([]int16{1, 2}, make([]byte, 3))
	assert.Error(t, err)
}
