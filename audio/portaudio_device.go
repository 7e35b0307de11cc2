package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice captures through PortAudio and stamps periods with the ADC
// time PortAudio reports for the first sample of each callback. When the host
// API reports no ADC time on the first callback of a session the injected
// clock is used for the whole session.
type PortAudioDevice struct {
	config       Config
	info         *portaudio.DeviceInfo
	sampleRate   float64
	periodFrames int
	logger       *slog.Logger
	stamp        *streamClock

	mu      sync.Mutex
	stream  *portaudio.Stream
	blocker *blocker
	capture CaptureFunc
	closed  bool
}

var _ Device = (*PortAudioDevice)(nil)

// NewPortAudioDevice initialises PortAudio and resolves the input device.
// A zero sample rate selects the device's default rate.
func NewPortAudioDevice(cfg Config, clock ClockSource, logger *slog.Logger) (*PortAudioDevice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = NewMonotonicClock()
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	info, err := portaudioInput(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	rate := float64(cfg.SampleRate)
	if rate <= 0 {
		rate = info.DefaultSampleRate
	}
	frames := PeriodFrames(rate, cfg.period())
	if frames <= 0 {
		portaudio.Terminate()
		return nil, fmt.Errorf("invalid period size: %d", frames)
	}

	return &PortAudioDevice{
		config:       cfg,
		info:         info,
		sampleRate:   rate,
		periodFrames: frames,
		logger:       logger,
		stamp:        newStreamClock(clock, rate),
		blocker:      newBlocker(rate, cfg.Channels, frames),
	}, nil
}

func (p *PortAudioDevice) SampleRate() float64 { return p.sampleRate }

func (p *PortAudioDevice) PeriodFrames() int { return p.periodFrames }

// Start opens and starts an input-only stream delivering periods to fn.
func (p *PortAudioDevice) Start(fn CaptureFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("audio device closed")
	}
	if p.stream != nil {
		return nil
	}

	params := portaudio.LowLatencyParameters(p.info, nil)
	params.Input.Channels = p.config.Channels
	params.Output.Channels = 0
	params.SampleRate = p.sampleRate
	params.FramesPerBuffer = p.periodFrames

	p.capture = fn
	p.blocker.reset()
	p.stamp.reset()

	stream, err := portaudio.OpenStream(params, p.onInput)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	p.stream = stream

	p.logger.Info("Audio capture started",
		"backend", "portaudio",
		"device", p.info.Name,
		"sample_rate", p.sampleRate,
		"channels", p.config.Channels,
		"period_frames", p.periodFrames)
	return nil
}

// onInput runs on the PortAudio callback thread.
func (p *PortAudioDevice) onInput(in []int16, timeInfo portaudio.StreamCallbackTimeInfo) {
	hostTime := p.stamp.next(timeInfo.InputBufferAdcTime, len(in)/p.config.Channels)
	p.blocker.push(in, hostTime, p.capture)
}

// Stop stops the stream. PortAudio waits for the callback to return.
func (p *PortAudioDevice) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return nil
	}
	var errs []error
	if err := p.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop audio stream: %w", err))
	}
	if err := p.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audio stream: %w", err))
	}
	p.stream = nil
	p.blocker.reset()
	p.stamp.reset()
	p.logger.Info("Audio capture stopped", "backend", "portaudio")
	return errors.Join(errs...)
}

// Close stops capture and terminates PortAudio.
func (p *PortAudioDevice) Close() error {
	err := p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return err
	}
	p.closed = true
	if terr := portaudio.Terminate(); terr != nil {
		p.logger.Error("failed to terminate PortAudio", "error", terr)
		err = errors.Join(err, terr)
	}
	return err
}

func portaudioInput(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		info, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return info, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", name)
}

// PortAudioCaptureDevices lists the PortAudio devices with input channels.
func PortAudioCaptureDevices() ([]DeviceDescription, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	var def string
	if info, err := portaudio.DefaultInputDevice(); err == nil {
		def = info.Name
	}

	var out []DeviceDescription
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, DeviceDescription{
			Name:       d.Name,
			Default:    d.Name == def,
			SampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}
