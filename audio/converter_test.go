package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEncoder writes one byte per sample frame, each byte the packet index,
// and fails on packet failAt.
type stubEncoder struct {
	calls  int
	failAt int
	closed bool
}

func (e *stubEncoder) Encode(pcm []int16, out []byte) (int, error) {
	idx := e.calls
	e.calls++
	if idx == e.failAt {
		return 0, errors.New("boom")
	}
	n := len(pcm) / 4
	for i := 0; i < n; i++ {
		out[i] = byte(idx)
	}
	return n, nil
}

func (e *stubEncoder) Close() error {
	e.closed = true
	return nil
}

func lpcmFormat(t *testing.T, rate float64) *CodecFormat {
	t.Helper()
	f, err := NegotiateFormat(InputFormat{SampleRate: rate, Channels: 1}, CodecOptions{Codec: CodecLPCM})
	require.NoError(t, err)
	return f
}

func ramp(frames int) RawBuffer {
	s := make([]int16, frames)
	for i := range s {
		s[i] = int16(i)
	}
	return RawBuffer{SampleRate: 48000, Channels: 1, Samples: s}
}

func TestConverterPeriodSizing(t *testing.T) {
	conv, err := NewConverter(lpcmFormat(t, 48000), newPCMEncoder(lpcmFormat(t, 48000)), 4800, nil)
	require.NoError(t, err)

	assert.Equal(t, 4800, conv.RequiredFrames())
	assert.Equal(t, 5, conv.PacketCapacity())
	assert.Equal(t, 5*2048, conv.ArenaSize())
}

func TestConverterFullPeriod(t *testing.T) {
	format := lpcmFormat(t, 48000)
	conv, err := NewConverter(format, newPCMEncoder(format), 4800, nil)
	require.NoError(t, err)

	data, packets, err := conv.Convert(ramp(4800))
	require.NoError(t, err)
	require.Len(t, packets, 5)

	wantFrames := []int{1024, 1024, 1024, 1024, 704}
	offset := 0
	for i, p := range packets {
		assert.Equal(t, offset, p.Offset, "packet %d offset", i)
		assert.Equal(t, wantFrames[i], p.Frames, "packet %d frames", i)
		assert.Equal(t, wantFrames[i]*2, p.Length, "packet %d length", i)
		offset += p.Length
	}
	assert.Len(t, data, 9600)

	// first sample of the last packet is frame 4096
	last := packets[4]
	assert.Equal(t, byte(4096&0xff), data[last.Offset])
	assert.Equal(t, byte(4096>>8), data[last.Offset+1])
}

func TestConverterShortBufferProducesNothing(t *testing.T) {
	format := lpcmFormat(t, 48000)
	enc := &stubEncoder{failAt: -1}
	conv, err := NewConverter(format, enc, 4800, nil)
	require.NoError(t, err)

	data, packets, err := conv.Convert(ramp(4799))
	assert.NoError(t, err)
	assert.Nil(t, data)
	assert.Empty(t, packets)
	assert.Zero(t, enc.calls)
}

func TestConverterIgnoresFramesBeyondPeriod(t *testing.T) {
	format := lpcmFormat(t, 48000)
	conv, err := NewConverter(format, newPCMEncoder(format), 4800, nil)
	require.NoError(t, err)

	_, packets, err := conv.Convert(ramp(5000))
	require.NoError(t, err)
	require.Len(t, packets, 5)

	total := 0
	for _, p := range packets {
		total += p.Frames
	}
	assert.Equal(t, 4800, total)
}

func TestConverterEncoderFailure(t *testing.T) {
	format := lpcmFormat(t, 48000)
	enc := &stubEncoder{failAt: 2}
	conv, err := NewConverter(format, enc, 4800, nil)
	require.NoError(t, err)

	data, packets, err := conv.Convert(ramp(4800))
	assert.Nil(t, data)
	assert.Nil(t, packets)

	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, 2, convErr.Packet)
	assert.Equal(t, 4800, convErr.Frames)
	assert.Equal(t, CodecLPCM, convErr.Codec)

	// the converter stays usable
	_, packets, err = conv.Convert(ramp(4800))
	require.NoError(t, err)
	assert.Len(t, packets, 5)
}

func TestConverterRejectsOversizedPacket(t *testing.T) {
	format := lpcmFormat(t, 48000)
	conv, err := NewConverter(format, oversizeEncoder{limit: format.MaxPacketSize}, 4800, nil)
	require.NoError(t, err)

	_, _, err = conv.Convert(ramp(4800))
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, 0, convErr.Packet)
}

type oversizeEncoder struct{ limit int }

func (e oversizeEncoder) Encode([]int16, []byte) (int, error) { return e.limit + 1, nil }
func (e oversizeEncoder) Close() error                         { return nil }

func TestConverterFormatMismatch(t *testing.T) {
	format := lpcmFormat(t, 48000)
	conv, err := NewConverter(format, newPCMEncoder(format), 4800, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		buf  RawBuffer
	}{
		{"channels", RawBuffer{SampleRate: 48000, Channels: 2, Samples: make([]int16, 9600)}},
		{"sample rate", RawBuffer{SampleRate: 44100, Channels: 1, Samples: make([]int16, 4800)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := conv.Convert(tt.buf)
			var convErr *ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Equal(t, -1, convErr.Packet)
			assert.ErrorIs(t, err, ErrFormatMismatch)
		})
	}
}

func TestConverterReusesArena(t *testing.T) {
	format := lpcmFormat(t, 48000)
	conv, err := NewConverter(format, newPCMEncoder(format), 4800, nil)
	require.NoError(t, err)

	first, _, err := conv.Convert(ramp(4800))
	require.NoError(t, err)
	second, _, err := conv.Convert(ramp(4800))
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
}

// repeatSupplier offers the same buffer a fixed number of times.
type repeatSupplier struct {
	buf      RawBuffer
	left     int
	requests []int
}

func (s *repeatSupplier) RequestInput(maxFrames int) (RawBuffer, InputStatus) {
	s.requests = append(s.requests, maxFrames)
	if s.left == 0 {
		return RawBuffer{}, InputNoDataNow
	}
	s.left--
	return s.buf, InputHaveData
}

func TestConverterStopsAtPacketCapacity(t *testing.T) {
	format := lpcmFormat(t, 48000)
	conv, err := NewConverter(format, newPCMEncoder(format), 4800, nil)
	require.NoError(t, err)

	s := &repeatSupplier{buf: ramp(4800), left: 3}
	_, packets, err := conv.ConvertFrom(s)
	require.NoError(t, err)
	assert.Len(t, packets, conv.PacketCapacity())
	assert.Equal(t, []int{4800}, s.requests)
	assert.Equal(t, 2, s.left)
}

func TestConverterRejectsShortSupply(t *testing.T) {
	format := lpcmFormat(t, 48000)
	conv, err := NewConverter(format, newPCMEncoder(format), 4800, nil)
	require.NoError(t, err)

	_, _, err = conv.ConvertFrom(&repeatSupplier{buf: ramp(100), left: 1})
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, -1, convErr.Packet)
	assert.Equal(t, 100, convErr.Frames)
}

func TestBufferSupplierOffersOnce(t *testing.T) {
	s := bufferSupplier{buf: ramp(4800)}

	_, status := s.RequestInput(4801)
	assert.Equal(t, InputNoDataNow, status)

	buf, status := s.RequestInput(4800)
	assert.Equal(t, InputHaveData, status)
	assert.Equal(t, 4800, buf.Frames())

	_, status = s.RequestInput(4800)
	assert.Equal(t, InputNoDataNow, status)
}

func TestNewConverterValidation(t *testing.T) {
	format := lpcmFormat(t, 48000)

	_, err := NewConverter(nil, newPCMEncoder(format), 4800, nil)
	assert.Error(t, err)
	_, err = NewConverter(format, nil, 4800, nil)
	assert.Error(t, err)
	_, err = NewConverter(format, newPCMEncoder(format), 0, nil)
	assert.Error(t, err)
	_, err = NewConverter(&CodecFormat{Codec: CodecLPCM, Channels: 1}, newPCMEncoder(format), 4800, nil)
	assert.Error(t, err)
}

func TestConverterCloseClosesEncoder(t *testing.T) {
	enc := &stubEncoder{failAt: -1}
	conv, err := NewConverter(lpcmFormat(t, 48000), enc, 4800, nil)
	require.NoError(t, err)
	require.NoError(t, conv.Close())
	assert.True(t, enc.closed)
}

func TestNewConverterOpusShortPeriod(t *testing.T) {
	format := opusFormat(t, CodecOpus)
	enc, err := NewPacketEncoder(format, CodecOptions{Codec: CodecOpus}, nil)
	require.NoError(t, err)

	conv, err := NewConverter(format, enc, 336, nil)
	require.NoError(t, err)
	defer conv.Close()
	assert.Equal(t, 1, conv.PacketCapacity())
	assert.Equal(t, format.MaxPacketSize, conv.ArenaSize())

	_, packets, err := conv.Convert(RawBuffer{SampleRate: 48000, Channels: 1, Samples: sine(336, 48000)})
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, 240, packets[0].Frames)
}
