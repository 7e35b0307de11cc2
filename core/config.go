package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lisuiheng/micunit/audio"
	"github.com/lisuiheng/micunit/observe"
	"github.com/lisuiheng/micunit/protocols/websocket"
	"github.com/rs/xid"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MICUNIT_AUDIO_CODEC.
const EnvPrefix = "MICUNIT"

// Config mirrors the YAML configuration file.
type Config struct {
	Audio struct {
		Backend         string `mapstructure:"backend"` // malgo or portaudio
		Device          string `mapstructure:"device"`
		SampleRate      int    `mapstructure:"sample_rate"`
		Channels        int    `mapstructure:"channels"`
		FrameDuration   int    `mapstructure:"frame_duration"` // capture period in ms
		Codec           string `mapstructure:"codec"`
		Bitrate         int    `mapstructure:"bitrate"`
		Application     string `mapstructure:"application"`
		FramesPerPacket int    `mapstructure:"frames_per_packet"`
		Timescale       int32  `mapstructure:"timescale"`
		ErrorBuffer     int    `mapstructure:"error_buffer"`
	} `mapstructure:"audio"`

	Sink struct {
		Transport string           `mapstructure:"transport"` // websocket or none
		DeviceID  string           `mapstructure:"device_id"`
		ClientID  string           `mapstructure:"client_id"`
		Websocket *WebsocketConfig `mapstructure:"websocket"`
	} `mapstructure:"sink"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Listen  string `mapstructure:"listen"`
	} `mapstructure:"metrics"`

	Logging struct {
		Level   string   `mapstructure:"level"`
		Format  string   `mapstructure:"format"`
		Outputs []string `mapstructure:"outputs"`
	} `mapstructure:"logging"`
}

type WebsocketConfig struct {
	URL              string        `mapstructure:"url"`
	AccessToken      string        `mapstructure:"access_token"`
	ProtocolVersion  int           `mapstructure:"protocol_version"`
	QueueSize        int           `mapstructure:"queue_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

const (
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"

	TransportWebsocket = "websocket"
	TransportNone      = "none"
)

// SetDefaults registers the built-in configuration on v.
func SetDefaults(v *viper.Viper) {
	// Keys without a default are invisible to AutomaticEnv during Unmarshal,
	// so every key gets one, even when it is empty.
	v.SetDefault("audio.backend", BackendMalgo)
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.frame_duration", int(audio.DefaultPeriod/time.Millisecond))
	v.SetDefault("audio.codec", string(audio.CodecOpus))
	v.SetDefault("audio.bitrate", 32000)
	v.SetDefault("audio.application", "voip")
	v.SetDefault("audio.frames_per_packet", audio.DefaultFramesPerPacket)
	v.SetDefault("audio.timescale", audio.DefaultTimescale)
	v.SetDefault("audio.error_buffer", defaultErrorBuffer)
	v.SetDefault("sink.transport", TransportNone)
	v.SetDefault("sink.device_id", "")
	v.SetDefault("sink.client_id", "")
	v.SetDefault("sink.websocket.url", "")
	v.SetDefault("sink.websocket.access_token", "")
	v.SetDefault("sink.websocket.protocol_version", 1)
	v.SetDefault("sink.websocket.queue_size", 64)
	v.SetDefault("sink.websocket.handshake_timeout", 10*time.Second)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9464")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputs", []string{"stdout"})
}

// LoadConfig reads path, or config.yaml from the search paths when path is
// empty, applies environment overrides and validates the result. A missing
// config file is not an error when searching.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/micunit")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	switch c.Audio.Backend {
	case "", BackendMalgo, BackendPortAudio:
	default:
		add("audio.backend %q", c.Audio.Backend)
	}
	if c.Audio.SampleRate < 0 {
		add("audio.sample_rate %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 0 && c.Audio.Channels != 1 {
		add("audio.channels %d, capture is mono", c.Audio.Channels)
	}
	if c.Audio.FrameDuration < 0 {
		add("audio.frame_duration %d", c.Audio.FrameDuration)
	}
	switch audio.CodecID(c.Audio.Codec) {
	case "", audio.CodecOpus, audio.CodecOpusGopus, audio.CodecLPCM:
	default:
		add("audio.codec %q", c.Audio.Codec)
	}
	if _, err := audio.ParseOpusApplication(c.Audio.Application); err != nil {
		add("audio.application %q", c.Audio.Application)
	}
	if c.Audio.Timescale < 0 {
		add("audio.timescale %d", c.Audio.Timescale)
	}

	switch c.Sink.Transport {
	case "", TransportNone:
	case TransportWebsocket:
		if c.Sink.Websocket == nil || c.Sink.Websocket.URL == "" {
			add("sink.websocket.url is required for the websocket transport")
		}
	default:
		add("sink.transport %q", c.Sink.Transport)
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		add("metrics.listen is required when metrics are enabled")
	}
	return errors.Join(errs...)
}

// DeviceConfig returns the capture device settings.
func (c *Config) DeviceConfig() audio.Config {
	return audio.Config{
		SampleRate:    c.Audio.SampleRate,
		Channels:      1,
		FrameDuration: c.Audio.FrameDuration,
		Device:        c.Audio.Device,
	}
}

// PipelineOptions returns the pipeline settings.
func (c *Config) PipelineOptions(log *slog.Logger, met *observe.Metrics) Options {
	return Options{
		Codec: audio.CodecOptions{
			Codec:           audio.CodecID(c.Audio.Codec),
			Bitrate:         c.Audio.Bitrate,
			Application:     c.Audio.Application,
			FramesPerPacket: c.Audio.FramesPerPacket,
		},
		Timescale:   c.Audio.Timescale,
		ErrorBuffer: c.Audio.ErrorBuffer,
		Metrics:     met,
		Logger:      log,
	}
}

// SinkConfig returns the websocket transport settings. A missing client id is
// replaced by a fresh one.
func (c *Config) SinkConfig() websocket.Config {
	clientID := c.Sink.ClientID
	if clientID == "" {
		clientID = xid.New().String()
	}
	wc := websocket.Config{
		DeviceID: c.Sink.DeviceID,
		ClientID: clientID,
	}
	if ws := c.Sink.Websocket; ws != nil {
		wc.URL = ws.URL
		wc.AccessToken = ws.AccessToken
		wc.ProtocolVersion = ws.ProtocolVersion
		wc.QueueSize = ws.QueueSize
		wc.HandshakeTimeout = ws.HandshakeTimeout
	}
	return wc
}

// NewDevice opens the capture backend selected by the config.
func NewDevice(c *Config, log *slog.Logger) (audio.Device, error) {
	clock := audio.NewMonotonicClock()
	switch c.Audio.Backend {
	case "", BackendMalgo:
		dev, err := audio.NewMalgoDevice(c.DeviceConfig(), clock, log)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case BackendPortAudio:
		dev, err := audio.NewPortAudioDevice(c.DeviceConfig(), clock, log)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
	return nil, fmt.Errorf("%w: audio.backend %q", ErrInvalidConfig, c.Audio.Backend)
}
