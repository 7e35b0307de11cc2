package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lisuiheng/micunit/audio"
	"github.com/lisuiheng/micunit/observe"
	"github.com/rs/xid"
)

const defaultErrorBuffer = 16

// Options tunes a Pipeline. The zero value encodes Opus with default settings.
type Options struct {
	Codec audio.CodecOptions

	// Encoder replaces the encoder built from Codec. It must produce packets
	// of the negotiated format and is closed with the pipeline.
	Encoder audio.PacketEncoder

	// Timescale is the number of presentation time ticks per second,
	// 1000 when zero.
	Timescale int32

	// ErrorBuffer is the capacity of the Errors channel, 16 when zero.
	ErrorBuffer int

	// Allocator provides the memory of unit copies, the Go heap when nil.
	Allocator audio.Allocator

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Buffers   uint64
	Emitted   uint64
	Skipped   uint64
	Discarded uint64
	Failed    uint64
	Dropped   uint64
}

// Pipeline captures from a Device, converts every period with a pull
// converter and hands the resulting SampleUnits to the registered Sink.
type Pipeline struct {
	device    audio.Device
	input     audio.InputFormat
	format    *audio.CodecFormat
	converter *audio.Converter
	assembler *audio.Assembler
	deriver   audio.TimestampDeriver

	sink atomic.Pointer[sinkHolder]
	errs chan error

	// confined to the capture thread
	seq uint64

	mu      sync.Mutex
	ctrl    audio.Controller
	session string
	closed  bool

	buffers, emitted, skipped, discarded, failed, dropped atomic.Uint64

	metrics *observe.Metrics
	ctx     context.Context
	logger  *slog.Logger
}

// NewPipeline negotiates the codec format for dev and builds the converter.
// It fails with *audio.FormatNegotiationError when no converter can be built.
func NewPipeline(dev audio.Device, opts Options) (*Pipeline, error) {
	if dev == nil {
		return nil, errors.New("pipeline needs a capture device")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Codec.Codec == "" {
		opts.Codec.Codec = audio.CodecOpus
	}
	if opts.ErrorBuffer <= 0 {
		opts.ErrorBuffer = defaultErrorBuffer
	}
	met := opts.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}

	input := audio.InputFormat{SampleRate: dev.SampleRate(), Channels: 1}
	format, err := audio.NegotiateFormat(input, opts.Codec)
	if err != nil {
		return nil, err
	}

	enc := opts.Encoder
	if enc == nil {
		enc, err = audio.NewPacketEncoder(format, opts.Codec, log)
		if err != nil {
			return nil, &audio.FormatNegotiationError{Input: input, Codec: format.Codec, Err: err}
		}
	}
	conv, err := audio.NewConverter(format, enc, dev.PeriodFrames(), log)
	if err != nil {
		_ = enc.Close()
		return nil, &audio.FormatNegotiationError{Input: input, Codec: format.Codec, Err: err}
	}

	log.Info("Pipeline ready",
		"format", format.String(),
		"period_frames", conv.RequiredFrames(),
		"packet_capacity", conv.PacketCapacity(),
		"arena_bytes", conv.ArenaSize())

	return &Pipeline{
		device:    dev,
		input:     input,
		format:    format,
		converter: conv,
		assembler: audio.NewAssembler(opts.Allocator),
		deriver:   audio.NewTimestampDeriver(opts.Timescale),
		errs:      make(chan error, opts.ErrorBuffer),
		ctrl:      audio.NewController(),
		metrics:   met,
		ctx:       context.Background(),
		logger:    log,
	}, nil
}

// Format returns the negotiated output format.
func (p *Pipeline) Format() *audio.CodecFormat { return p.format }

// InputFormat returns the capture format.
func (p *Pipeline) InputFormat() audio.InputFormat { return p.input }

// State reports whether the pipeline is capturing.
func (p *Pipeline) State() audio.State { return p.ctrl.State() }

// SessionID identifies the current or last capture session.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Errors delivers conversion failures. Events are dropped when the channel
// is full so the capture thread never blocks.
func (p *Pipeline) Errors() <-chan error { return p.errs }

// SetSink registers the sink for subsequent buffers. A nil sink clears the
// registration; units produced while no sink is set are discarded.
func (p *Pipeline) SetSink(s Sink) {
	if s == nil {
		p.sink.Store(nil)
		return
	}
	p.sink.Store(&sinkHolder{sink: s})
}

// Start activates the capture device. Starting a capturing pipeline is a
// no-op. On failure the pipeline stays idle and a *DeviceActivationError is
// returned.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPipelineClosed
	}
	if p.ctrl.IsCapturing() {
		return nil
	}
	if err := p.device.Start(p.HandleBuffer); err != nil {
		p.logger.Error("Failed to start capture", "error", err)
		return &DeviceActivationError{Err: err}
	}
	p.ctrl.StartCapturing()
	p.session = xid.New().String()
	p.metrics.ActiveCaptures.Add(p.ctx, 1)
	p.logger.Info("Capture session started", "session_id", p.session, "format", p.format.String())
	return nil
}

// Stop detaches the pipeline from the device. A callback already running
// completes and may still emit its unit. Stop is idempotent.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Pipeline) stopLocked() error {
	if !p.ctrl.StopCapturing() {
		return nil
	}
	p.metrics.ActiveCaptures.Add(p.ctx, -1)
	err := p.device.Stop()
	st := p.Stats()
	p.logger.Info("Capture session stopped",
		"session_id", p.session,
		"buffers", st.Buffers,
		"emitted", st.Emitted,
		"failed", st.Failed)
	if err != nil {
		return fmt.Errorf("stop capture device: %w", err)
	}
	return nil
}

// Close stops capture and releases the device and the encoder.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return errors.Join(p.stopLocked(), p.device.Close(), p.converter.Close())
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Buffers:   p.buffers.Load(),
		Emitted:   p.emitted.Load(),
		Skipped:   p.skipped.Load(),
		Discarded: p.discarded.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// HandleBuffer processes one capture period. It is the device callback and
// runs on the realtime thread: no locks, no blocking, nothing escapes.
func (p *Pipeline) HandleBuffer(buf audio.RawBuffer, hostTime time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.report(fmt.Errorf("%w: %v", ErrCallbackPanic, r))
		}
	}()

	pts := p.deriver.Derive(hostTime)
	seq := p.seq
	p.seq++
	p.buffers.Add(1)

	start := time.Now()
	data, packets, err := p.converter.Convert(buf)
	p.metrics.RecordConversion(p.ctx, time.Since(start).Seconds())

	if err != nil {
		p.failed.Add(1)
		p.metrics.RecordBuffer(p.ctx, observe.ResultFailed)
		p.report(err)
		return
	}
	if len(packets) == 0 {
		p.skipped.Add(1)
		p.metrics.RecordBuffer(p.ctx, observe.ResultSkipped)
		return
	}

	unit := p.assembler.Assemble(data, packets, pts, p.format, seq)
	if unit == nil {
		p.dropped.Add(1)
		p.metrics.RecordBuffer(p.ctx, observe.ResultDropped)
		return
	}

	holder := p.sink.Load()
	if holder == nil {
		p.discarded.Add(1)
		p.metrics.RecordBuffer(p.ctx, observe.ResultDiscarded)
		return
	}
	holder.sink.OnUnit(unit)
	p.emitted.Add(1)
	p.metrics.RecordEmitted(p.ctx, unit.Len())
}

func (p *Pipeline) report(err error) {
	select {
	case p.errs <- err:
	default:
		p.metrics.ObservationDropped.Add(p.ctx, 1)
	}
}
