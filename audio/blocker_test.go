package audio

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type period struct {
	samples []int16
	host    time.Duration
}

func collect(out *[]period) CaptureFunc {
	return func(buf RawBuffer, host time.Duration) {
		*out = append(*out, period{samples: slices.Clone(buf.Samples), host: host})
	}
}

func TestBlockerReblocks(t *testing.T) {
	// 4 Hz so one frame is 250ms
	b := newBlocker(4, 1, 4)
	var got []period

	b.push([]int16{0, 1, 2}, 0, collect(&got))
	assert.Empty(t, got)

	b.push([]int16{3, 4, 5, 6, 7, 8}, time.Second, collect(&got))
	require.Len(t, got, 2)
	assert.Equal(t, []int16{0, 1, 2, 3}, got[0].samples)
	assert.Equal(t, time.Duration(0), got[0].host)
	assert.Equal(t, []int16{4, 5, 6, 7}, got[1].samples)
	assert.Equal(t, 1250*time.Millisecond, got[1].host)

	b.push([]int16{9, 10, 11}, 2*time.Second, collect(&got))
	require.Len(t, got, 3)
	assert.Equal(t, []int16{8, 9, 10, 11}, got[2].samples)
	assert.Equal(t, 2250*time.Millisecond, got[2].host)
}

func TestBlockerExactPeriods(t *testing.T) {
	b := newBlocker(48000, 1, 4800)
	var got []period
	for i := 0; i < 3; i++ {
		b.push(make([]int16, 4800), time.Duration(i)*100*time.Millisecond, collect(&got))
	}
	require.Len(t, got, 3)
	for i, p := range got {
		assert.Len(t, p.samples, 4800)
		assert.Equal(t, time.Duration(i)*100*time.Millisecond, p.host)
	}
}

func TestBlockerReset(t *testing.T) {
	b := newBlocker(4, 1, 2)
	var got []period

	b.push([]int16{1}, 0, collect(&got))
	b.reset()
	b.push([]int16{2, 3}, time.Second, collect(&got))

	require.Len(t, got, 1)
	assert.Equal(t, []int16{2, 3}, got[0].samples)
	assert.Equal(t, time.Second, got[0].host)
}

func TestDecodeS16(t *testing.T) {
	dst := make([]int16, 0, 1)
	dst = decodeS16(dst, []byte{0x01, 0x00, 0xfe, 0xff})
	assert.Equal(t, []int16{1, -2}, dst)
}
