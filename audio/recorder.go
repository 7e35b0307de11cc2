package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Config describes how a capture device is opened.
type Config struct {
	SampleRate    int    // 0 selects the backend default
	Channels      int    // only 1 is supported by the pipeline
	FrameDuration int    // buffer period in milliseconds
	Device        string // device name, empty for the system default
}

func (c Config) period() time.Duration {
	if c.FrameDuration <= 0 {
		return DefaultPeriod
	}
	return time.Duration(c.FrameDuration) * time.Millisecond
}

const malgoDefaultSampleRate = 48000

// MalgoDevice captures through miniaudio. Periods are re-blocked so that
// every delivered buffer holds exactly PeriodFrames frames.
type MalgoDevice struct {
	config       Config
	sampleRate   float64
	periodFrames int
	logger       *slog.Logger
	clock        ClockSource

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	blocker *blocker
	scratch []int16
	capture CaptureFunc
}

var _ Device = (*MalgoDevice)(nil)

// NewMalgoDevice initialises the miniaudio context. The device itself is
// opened by Start.
func NewMalgoDevice(cfg Config, clock ClockSource, logger *slog.Logger) (*MalgoDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = NewMonotonicClock()
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	rate := float64(cfg.SampleRate)
	if rate <= 0 {
		rate = malgoDefaultSampleRate
	}
	frames := PeriodFrames(rate, cfg.period())
	if frames <= 0 {
		return nil, fmt.Errorf("invalid period size: %d", frames)
	}

	ctxMalgo, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &MalgoDevice{
		config:       cfg,
		sampleRate:   rate,
		periodFrames: frames,
		logger:       logger,
		clock:        clock,
		ctx:          ctxMalgo,
		blocker:      newBlocker(rate, cfg.Channels, frames),
		scratch:      make([]int16, frames*cfg.Channels),
	}, nil
}

func (r *MalgoDevice) SampleRate() float64 { return r.sampleRate }

func (r *MalgoDevice) PeriodFrames() int { return r.periodFrames }

// Start opens the capture device and begins delivering periods to fn.
func (r *MalgoDevice) Start(fn CaptureFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil {
		return errors.New("audio context closed")
	}
	if r.device != nil {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(r.config.Channels)
	deviceConfig.SampleRate = uint32(r.sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(r.periodFrames)

	if r.config.Device != "" {
		info, err := r.findDevice(r.config.Device)
		if err != nil {
			return err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	r.capture = fn
	r.blocker.reset()

	device, err := malgo.InitDevice(r.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: r.onData,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start audio device: %w", err)
	}
	r.device = device

	r.logger.Info("Audio capture started",
		"backend", "malgo",
		"device", r.config.Device,
		"sample_rate", r.sampleRate,
		"channels", r.config.Channels,
		"period_frames", r.periodFrames)
	return nil
}

// onData runs on the miniaudio capture thread.
func (r *MalgoDevice) onData(_, pcmData []byte, _ uint32) {
	now := r.clock.Now()
	r.scratch = decodeS16(r.scratch, pcmData)
	r.blocker.push(r.scratch, now, r.capture)
}

// Stop halts delivery. miniaudio returns from Stop only once the data
// callback has finished.
func (r *MalgoDevice) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device == nil {
		return nil
	}
	err := r.device.Stop()
	r.device.Uninit()
	r.device = nil
	r.blocker.reset()
	if err != nil {
		return fmt.Errorf("failed to stop audio device: %w", err)
	}
	r.logger.Info("Audio capture stopped", "backend", "malgo")
	return nil
}

// Close stops capture and releases the context.
func (r *MalgoDevice) Close() error {
	err := r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx != nil {
		_ = r.ctx.Uninit()
		r.ctx.Free()
		r.ctx = nil
	}
	return err
}

func (r *MalgoDevice) findDevice(name string) (malgo.DeviceInfo, error) {
	infos, err := r.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceInfo{}, fmt.Errorf("failed to list capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			return info, nil
		}
	}
	return malgo.DeviceInfo{}, fmt.Errorf("capture device %q not found", name)
}

// DeviceDescription names a capture device for listings.
type DeviceDescription struct {
	Name       string
	Default    bool
	SampleRate float64 // zero when the backend does not report one
}

// MalgoCaptureDevices lists the capture devices miniaudio can open.
func MalgoCaptureDevices(logger *slog.Logger) ([]DeviceDescription, error) {
	ctxMalgo, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		if logger != nil {
			logger.Debug("malgo", "message", message)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = ctxMalgo.Uninit()
		ctxMalgo.Free()
	}()

	infos, err := ctxMalgo.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	out := make([]DeviceDescription, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceDescription{Name: info.Name(), Default: info.IsDefault != 0})
	}
	return out, nil
}

// decodeS16 converts little-endian s16 bytes into dst, growing it only when
// the backend delivers more samples than dst can hold.
func decodeS16(dst []int16, b []byte) []int16 {
	n := len(b) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return dst
}
