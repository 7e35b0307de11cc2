package websocket

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lisuiheng/micunit/audio"
)

// Binary unit layout, big endian:
//
//	magic    [2]byte "MU"
//	version  uint8
//	sequence uint64
//	pts      int64
//	scale    int32
//	count    uint16
//	count x { length uint32, frames uint32 }
//	data     []byte
const (
	envelopeVersion    = 1
	envelopeHeaderSize = 2 + 1 + 8 + 8 + 4 + 2
	envelopePacketSize = 4 + 4
)

var envelopeMagic = [2]byte{'M', 'U'}

var ErrMalformedEnvelope = errors.New("malformed unit envelope")

// Envelope is the decoded form of a binary unit message.
type Envelope struct {
	Sequence uint64
	PTS      audio.Timestamp
	Packets  []audio.PacketDescriptor
	Data     []byte
}

// EncodeUnit serialises a unit into one binary websocket message.
func EncodeUnit(u *audio.SampleUnit) []byte {
	packets := u.Packets()
	buf := make([]byte, envelopeHeaderSize+len(packets)*envelopePacketSize+u.Len())

	copy(buf, envelopeMagic[:])
	buf[2] = envelopeVersion
	binary.BigEndian.PutUint64(buf[3:], u.Sequence())
	binary.BigEndian.PutUint64(buf[11:], uint64(u.PTS().Value))
	binary.BigEndian.PutUint32(buf[19:], uint32(u.PTS().Timescale))
	binary.BigEndian.PutUint16(buf[23:], uint16(len(packets)))

	off := envelopeHeaderSize
	for _, p := range packets {
		binary.BigEndian.PutUint32(buf[off:], uint32(p.Length))
		binary.BigEndian.PutUint32(buf[off+4:], uint32(p.Frames))
		off += envelopePacketSize
	}
	copy(buf[off:], u.Data())
	return buf
}

// DecodeUnit parses a message produced by EncodeUnit. Data aliases b.
func DecodeUnit(b []byte) (Envelope, error) {
	if len(b) < envelopeHeaderSize {
		return Envelope{}, fmt.Errorf("%w: %d bytes", ErrMalformedEnvelope, len(b))
	}
	if b[0] != envelopeMagic[0] || b[1] != envelopeMagic[1] {
		return Envelope{}, fmt.Errorf("%w: bad magic", ErrMalformedEnvelope)
	}
	if b[2] != envelopeVersion {
		return Envelope{}, fmt.Errorf("%w: version %d", ErrMalformedEnvelope, b[2])
	}

	env := Envelope{
		Sequence: binary.BigEndian.Uint64(b[3:]),
		PTS: audio.Timestamp{
			Value:     int64(binary.BigEndian.Uint64(b[11:])),
			Timescale: int32(binary.BigEndian.Uint32(b[19:])),
		},
	}
	count := int(binary.BigEndian.Uint16(b[23:]))
	off := envelopeHeaderSize
	if len(b) < off+count*envelopePacketSize {
		return Envelope{}, fmt.Errorf("%w: truncated packet table", ErrMalformedEnvelope)
	}

	env.Packets = make([]audio.PacketDescriptor, count)
	data := 0
	for i := range env.Packets {
		length := int(binary.BigEndian.Uint32(b[off:]))
		env.Packets[i] = audio.PacketDescriptor{
			Offset: data,
			Length: length,
			Frames: int(binary.BigEndian.Uint32(b[off+4:])),
		}
		data += length
		off += envelopePacketSize
	}
	if len(b)-off != data {
		return Envelope{}, fmt.Errorf("%w: %d data bytes, packets describe %d", ErrMalformedEnvelope, len(b)-off, data)
	}
	env.Data = b[off:]
	return env, nil
}
