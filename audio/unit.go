package audio

import "time"

// SampleUnit is one emitted block of encoded audio: the packets produced from
// a single capture period, their layout, and the presentation time of the
// first frame. A unit is immutable once assembled; callers must not modify
// the slice returned by Data.
type SampleUnit struct {
	data     []byte
	packets  []PacketDescriptor
	pts      Timestamp
	format   *CodecFormat
	sequence uint64
}

// Data returns the encoded bytes of all packets back to back.
func (u *SampleUnit) Data() []byte { return u.data }

// Len is the number of encoded bytes.
func (u *SampleUnit) Len() int { return len(u.data) }

// PacketCount is the number of packets in the unit.
func (u *SampleUnit) PacketCount() int { return len(u.packets) }

// Packets returns a copy of the packet descriptors in playback order.
func (u *SampleUnit) Packets() []PacketDescriptor {
	out := make([]PacketDescriptor, len(u.packets))
	copy(out, u.packets)
	return out
}

// Packet returns the encoded bytes of packet i.
func (u *SampleUnit) Packet(i int) []byte {
	p := u.packets[i]
	return u.data[p.Offset : p.Offset+p.Length : p.Offset+p.Length]
}

// PTS is the presentation timestamp of the unit.
func (u *SampleUnit) PTS() Timestamp { return u.pts }

// Format is the shared codec format of the stream.
func (u *SampleUnit) Format() *CodecFormat { return u.format }

// Sequence is the arrival index of the source buffer within its pipeline.
func (u *SampleUnit) Sequence() uint64 { return u.sequence }

// Frames is the number of input frames covered by all packets.
func (u *SampleUnit) Frames() int {
	n := 0
	for _, p := range u.packets {
		n += p.Frames
	}
	return n
}

// Duration is the playback time covered by the unit.
func (u *SampleUnit) Duration() time.Duration {
	if u.format == nil || u.format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(u.Frames()) / u.format.SampleRate * float64(time.Second))
}

// Allocator returns a zeroed buffer of n bytes, or nil when memory for the
// copy cannot be obtained.
type Allocator func(n int) []byte

func defaultAllocator(n int) []byte { return make([]byte, n) }

// Assembler copies converter output into owned SampleUnits.
type Assembler struct {
	alloc Allocator
}

// NewAssembler returns an assembler using alloc for the byte copies. A nil
// alloc uses the Go heap.
func NewAssembler(alloc Allocator) *Assembler {
	if alloc == nil {
		alloc = defaultAllocator
	}
	return &Assembler{alloc: alloc}
}

// Assemble builds a unit from the converter's output. It returns nil when
// there are no packets, when the descriptors do not tile data exactly, or
// when the allocator refuses the copy. seq is stored as the unit's sequence.
func (a *Assembler) Assemble(data []byte, packets []PacketDescriptor, pts Timestamp, format *CodecFormat, seq uint64) *SampleUnit {
	if len(packets) == 0 || format == nil {
		return nil
	}
	if !tiles(data, packets) {
		return nil
	}

	owned := a.alloc(len(data))
	if owned == nil || len(owned) < len(data) {
		return nil
	}
	owned = owned[:len(data):len(data)]
	copy(owned, data)

	layout := make([]PacketDescriptor, len(packets))
	copy(layout, packets)

	return &SampleUnit{
		data:     owned,
		packets:  layout,
		pts:      pts,
		format:   format,
		sequence: seq,
	}
}

// tiles reports whether packets cover data contiguously from offset zero.
func tiles(data []byte, packets []PacketDescriptor) bool {
	next := 0
	for _, p := range packets {
		if p.Offset != next || p.Length < 0 {
			return false
		}
		next += p.Length
	}
	return next == len(data)
}
