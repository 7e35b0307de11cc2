package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeriveMilliseconds(t *testing.T) {
	d := NewTimestampDeriver(0)
	assert.Equal(t, DefaultTimescale, d.Timescale())

	tests := []struct {
		host time.Duration
		want int64
	}{
		{0, 0},
		{999 * time.Microsecond, 0},
		{time.Millisecond, 1},
		{1500 * time.Millisecond, 1500},
		{42*time.Second + 123456789*time.Nanosecond, 42123},
	}
	for _, tt := range tests {
		assert.Equal(t, Timestamp{Value: tt.want, Timescale: 1000}, d.Derive(tt.host), "host %s", tt.host)
	}
}

func TestDeriveLongUptime(t *testing.T) {
	d := NewTimestampDeriver(48000)
	host := 100*24*time.Hour + 500*time.Millisecond

	got := d.Derive(host)
	assert.Equal(t, int64(8640000)*48000+24000, got.Value)
	assert.Equal(t, int32(48000), got.Timescale)
	assert.Equal(t, host, got.Duration())
}

func TestDeriveIsMonotonic(t *testing.T) {
	d := NewTimestampDeriver(1000)
	prev := d.Derive(0)
	for host := time.Duration(0); host < 3*time.Second; host += 7 * time.Millisecond / 3 {
		ts := d.Derive(host)
		assert.GreaterOrEqual(t, ts.Compare(prev), 0)
		prev = ts
	}
}

func TestTimestampCompare(t *testing.T) {
	assert.Equal(t, 0, Timestamp{1, 1}.Compare(Timestamp{1000, 1000}))
	assert.Equal(t, -1, Timestamp{999, 1000}.Compare(Timestamp{1, 1}))
	assert.Equal(t, 1, Timestamp{2, 1000}.Compare(Timestamp{1, 1000}))
}

func TestTimestampConversions(t *testing.T) {
	ts := Timestamp{Value: 1500, Timescale: 1000}
	assert.Equal(t, 1.5, ts.Seconds())
	assert.Equal(t, 1500*time.Millisecond, ts.Duration())
	assert.Equal(t, "1500/1000", ts.String())

	var zero Timestamp
	assert.Zero(t, zero.Seconds())
	assert.Zero(t, zero.Duration())
}
