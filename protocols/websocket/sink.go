package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lisuiheng/micunit/audio"
	"github.com/lisuiheng/micunit/observe"
	"github.com/lisuiheng/micunit/pkg/interfaces"
	"github.com/lisuiheng/micunit/utils"
)

const defaultQueueSize = 64

// Hello 握手消息, sent as the first text frame of every connection.
type Hello struct {
	Type        string      `json:"type"`
	Version     int         `json:"version"`
	Transport   string      `json:"transport"`
	SessionID   string      `json:"session_id,omitempty"`
	AudioParams AudioParams `json:"audio_params"`
}

type AudioParams struct {
	Format          string  `json:"format"`
	SampleRate      float64 `json:"sample_rate"`
	Channels        int     `json:"channels"`
	FramesPerPacket int     `json:"frames_per_packet"`
	Timescale       int32   `json:"timescale"`
}

// Sink streams SampleUnits to a websocket server. OnUnit only enqueues, so
// it is safe on the capture thread; Run owns the connection.
type Sink struct {
	config    Config
	format    *audio.CodecFormat
	timescale int32
	session   atomic.Value // string

	queue   chan *audio.SampleUnit
	dropped atomic.Uint64
	sent    atomic.Uint64

	dial    func(Config) interfaces.TransportProtocol
	backoff utils.ReconnectStrategy
	metrics *observe.Metrics
	logger  *slog.Logger
}

type SinkOption func(*Sink)

// WithMetrics reports dropped units on met.
func WithMetrics(met *observe.Metrics) SinkOption {
	return func(s *Sink) { s.metrics = met }
}

// WithReconnectStrategy replaces the default exponential backoff.
func WithReconnectStrategy(r utils.ReconnectStrategy) SinkOption {
	return func(s *Sink) { s.backoff = r }
}

// WithSessionID tags the hello message with the capture session.
func WithSessionID(id string) SinkOption {
	return func(s *Sink) { s.session.Store(id) }
}

func NewSink(config Config, format *audio.CodecFormat, timescale int32, log *slog.Logger, opts ...SinkOption) (*Sink, error) {
	if config.URL == "" {
		return nil, errors.New("websocket sink needs a url")
	}
	if format == nil {
		return nil, errors.New("websocket sink needs a codec format")
	}
	if log == nil {
		log = slog.Default()
	}
	if timescale <= 0 {
		timescale = audio.DefaultTimescale
	}
	size := config.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	s := &Sink{
		config:    config,
		format:    format,
		timescale: timescale,
		queue:     make(chan *audio.SampleUnit, size),
		dial: func(c Config) interfaces.TransportProtocol {
			return NewWebSocketProtocol(c)
		},
		backoff: utils.NewExponentialBackoff(),
		logger:  log.With("component", "websocket_sink", "url", config.URL),
	}
	s.session.Store("")
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OnUnit queues u for sending and drops it when the queue is full.
func (s *Sink) OnUnit(u *audio.SampleUnit) {
	select {
	case s.queue <- u:
	default:
		s.dropped.Add(1)
		if s.metrics != nil {
			s.metrics.SinkQueueDropped.Add(context.Background(), 1)
		}
	}
}

// SetSessionID updates the session announced on the next connection.
func (s *Sink) SetSessionID(id string) { s.session.Store(id) }

// Dropped returns the number of units lost to a full queue.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Sent returns the number of units written to the server.
func (s *Sink) Sent() uint64 { return s.sent.Load() }

// Run connects, sends the hello and streams queued units until ctx is done,
// reconnecting with backoff whenever the connection fails.
func (s *Sink) Run(ctx context.Context) error {
	for {
		err := s.serve(ctx)
		if ctx.Err() != nil {
			return nil
		}

		delay := s.backoff.NextDelay()
		s.logger.Warn("Connection lost, reconnecting", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (s *Sink) serve(ctx context.Context) error {
	conn := s.dial(s.config)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Close()

	hello, err := json.Marshal(s.hello())
	if err != nil {
		return fmt.Errorf("marshal hello: %w", err)
	}
	if err := conn.Send(hello, interfaces.MsgText); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	s.backoff.Reset()
	s.logger.Info("Connected", "format", s.format.String())

	incoming := conn.Receive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-incoming:
			if !ok {
				return interfaces.ErrConnectionLost
			}
			s.handleMessage(msg)
		case u := <-s.queue:
			if err := conn.Send(EncodeUnit(u), interfaces.MsgBinary); err != nil {
				return fmt.Errorf("%w: %v", interfaces.ErrConnectionLost, err)
			}
			s.sent.Add(1)
		}
	}
}

func (s *Sink) hello() Hello {
	return Hello{
		Type:      "hello",
		Version:   s.config.ProtocolVersion,
		Transport: "websocket",
		SessionID: s.session.Load().(string),
		AudioParams: AudioParams{
			Format:          string(s.format.Codec),
			SampleRate:      s.format.SampleRate,
			Channels:        s.format.Channels,
			FramesPerPacket: s.format.FramesPerPacket,
			Timescale:       s.timescale,
		},
	}
}

func (s *Sink) handleMessage(msg interfaces.Message) {
	switch msg.Type {
	case interfaces.MsgText:
		var m struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			s.logger.Debug("Ignoring malformed server message", "error", err)
			return
		}
		s.logger.Debug("Server message", "type", m.Type)
	default:
		s.logger.Debug("Ignoring server message", "type", msg.Type, "bytes", len(msg.Payload))
	}
}
