package audio

import (
	"errors"
	"fmt"
	"log/slog"
)

// Converter turns period-sized blocks of samples into codec packets using a
// pull protocol: it asks an InputSupplier for RequiredFrames frames and
// encodes them, following a packet plan fixed at construction, into a byte
// arena allocated once.
//
// A Converter is not safe for concurrent use. The slices returned by Convert
// and ConvertFrom alias internal storage and are overwritten by the next call.
type Converter struct {
	format         *CodecFormat
	encoder        PacketEncoder
	requiredFrames int
	packetCapacity int
	plan           []int

	arena   []byte
	packets []PacketDescriptor
	supply  bufferSupplier
}

// NewConverter creates a converter pulling requiredFrames frames per call and
// encoding them with enc into the packets given by PacketPlan. Frames beyond
// requiredFrames in a supplied buffer are ignored.
func NewConverter(format *CodecFormat, enc PacketEncoder, requiredFrames int, logger *slog.Logger) (*Converter, error) {
	if format == nil || enc == nil {
		return nil, errors.New("converter needs a format and an encoder")
	}
	if format.FramesPerPacket <= 0 || format.MaxPacketSize <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid codec format: %s", format)
	}
	if requiredFrames <= 0 {
		return nil, fmt.Errorf("invalid required frame count: %d", requiredFrames)
	}
	if logger == nil {
		logger = slog.Default()
	}

	plan, leftover := PacketPlan(format, requiredFrames)
	if len(plan) == 0 {
		return nil, fmt.Errorf("no %s packet fits in %d frames", format.Codec, requiredFrames)
	}
	if leftover > 0 {
		logger.Warn("Period does not split into legal packets, tail frames are dropped",
			"codec", format.Codec,
			"period_frames", requiredFrames,
			"dropped_frames", leftover)
	}

	capacity := len(plan)
	return &Converter{
		format:         format,
		encoder:        enc,
		requiredFrames: requiredFrames,
		packetCapacity: capacity,
		plan:           plan,
		arena:          make([]byte, capacity*format.MaxPacketSize),
		packets:        make([]PacketDescriptor, 0, capacity),
	}, nil
}

// Format returns the output format.
func (c *Converter) Format() *CodecFormat { return c.format }

// RequiredFrames is the frame count requested from the supplier per pull.
func (c *Converter) RequiredFrames() int { return c.requiredFrames }

// PacketCapacity is the maximum number of packets one call can produce.
// It equals the length of the packet plan.
func (c *Converter) PacketCapacity() int { return c.packetCapacity }

// ArenaSize is the size of the reusable output buffer in bytes.
func (c *Converter) ArenaSize() int { return len(c.arena) }

// Convert encodes buf. A buffer holding fewer than RequiredFrames frames
// yields no packets and no error.
func (c *Converter) Convert(buf RawBuffer) ([]byte, []PacketDescriptor, error) {
	c.supply = bufferSupplier{buf: buf}
	data, packets, err := c.ConvertFrom(&c.supply)
	c.supply = bufferSupplier{}
	return data, packets, err
}

// ConvertFrom pulls input from s until the supplier has nothing more to give
// or the packet capacity is used up.
func (c *Converter) ConvertFrom(s InputSupplier) ([]byte, []PacketDescriptor, error) {
	c.packets = c.packets[:0]
	used := 0

	for len(c.packets) < c.packetCapacity {
		in, status := s.RequestInput(c.requiredFrames)
		if status != InputHaveData {
			break
		}
		if err := c.checkInput(in); err != nil {
			c.packets = c.packets[:0]
			return nil, nil, err
		}

		ch := c.format.Channels
		off := 0
		for _, frames := range c.plan {
			if len(c.packets) == c.packetCapacity {
				break
			}
			chunk := in.Samples[off : off+frames*ch]
			off += frames * ch
			n, err := c.encoder.Encode(chunk, c.arena[used:used+c.format.MaxPacketSize])
			if err != nil {
				failed := len(c.packets)
				c.packets = c.packets[:0]
				return nil, nil, &ConversionError{Codec: c.format.Codec, Frames: in.Frames(), Packet: failed, Err: err}
			}
			if n < 0 || n > c.format.MaxPacketSize {
				failed := len(c.packets)
				c.packets = c.packets[:0]
				return nil, nil, &ConversionError{
					Codec:  c.format.Codec,
					Frames: in.Frames(),
					Packet: failed,
					Err:    fmt.Errorf("encoder wrote %d bytes, limit %d", n, c.format.MaxPacketSize),
				}
			}
			c.packets = append(c.packets, PacketDescriptor{Offset: used, Length: n, Frames: frames})
			used += n
		}
	}

	if len(c.packets) == 0 {
		return nil, nil, nil
	}
	return c.arena[:used], c.packets, nil
}

func (c *Converter) checkInput(in RawBuffer) error {
	if in.Channels != c.format.Channels {
		return &ConversionError{
			Codec:  c.format.Codec,
			Frames: in.Frames(),
			Packet: -1,
			Err:    fmt.Errorf("%w: %d channels, want %d", ErrFormatMismatch, in.Channels, c.format.Channels),
		}
	}
	if in.SampleRate != c.format.SampleRate {
		return &ConversionError{
			Codec:  c.format.Codec,
			Frames: in.Frames(),
			Packet: -1,
			Err:    fmt.Errorf("%w: %gHz, want %gHz", ErrFormatMismatch, in.SampleRate, c.format.SampleRate),
		}
	}
	if in.Frames() < c.requiredFrames {
		return &ConversionError{
			Codec:  c.format.Codec,
			Frames: in.Frames(),
			Packet: -1,
			Err:    fmt.Errorf("supplier returned %d frames for a request of %d", in.Frames(), c.requiredFrames),
		}
	}
	return nil
}

// Close releases the encoder.
func (c *Converter) Close() error {
	return c.encoder.Close()
}

// bufferSupplier offers a single buffer once per conversion.
type bufferSupplier struct {
	buf      RawBuffer
	consumed bool
}

func (s *bufferSupplier) RequestInput(maxFrames int) (RawBuffer, InputStatus) {
	if s.consumed || s.buf.Frames() < maxFrames {
		return RawBuffer{}, InputNoDataNow
	}
	s.consumed = true
	return s.buf, InputHaveData
}
