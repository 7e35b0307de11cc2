package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisuiheng/micunit/audio"
	"github.com/lisuiheng/micunit/core"
	"github.com/lisuiheng/micunit/logger"
	"github.com/lisuiheng/micunit/observe"
	"github.com/lisuiheng/micunit/protocols/websocket"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the microphone until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runCapture(ctx, cfg)
	},
}

func runCapture(ctx context.Context, cfg *core.Config) error {
	log := logger.Logger()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		handler, shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info("Serving metrics", "listen", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return errors.Join(srv.Shutdown(sctx), shutdown(sctx))
		})
	}

	met, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	dev, err := core.NewDevice(cfg, log)
	if err != nil {
		return err
	}
	pipeline, err := core.NewPipeline(dev, cfg.PipelineOptions(log, met))
	if err != nil {
		_ = dev.Close()
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Error("Failed to close pipeline", "error", err)
		}
	}()

	var ws *websocket.Sink
	if cfg.Sink.Transport == core.TransportWebsocket {
		ws, err = websocket.NewSink(cfg.SinkConfig(), pipeline.Format(), cfg.Audio.Timescale, log,
			websocket.WithMetrics(met))
		if err != nil {
			return err
		}
		pipeline.SetSink(ws)
	} else {
		pipeline.SetSink(core.SinkFunc(func(u *audio.SampleUnit) {
			log.Debug("Unit", "sequence", u.Sequence(), "pts", u.PTS().String(), "packets", u.PacketCount(), "bytes", u.Len())
		}))
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-pipeline.Errors():
				log.Warn("Conversion error observed", "error", err)
			}
		}
	})

	if err := pipeline.Start(); err != nil {
		return err
	}
	if ws != nil {
		// the hello carries the session id, so the sink dials only now
		ws.SetSessionID(pipeline.SessionID())
		g.Go(func() error { return ws.Run(ctx) })
	}
	log.Info("Capturing, press Ctrl+C to stop", "session_id", pipeline.SessionID())

	<-ctx.Done()
	stopErr := pipeline.Stop()
	st := pipeline.Stats()
	log.Info("Capture summary",
		"buffers", st.Buffers,
		"emitted", st.Emitted,
		"skipped", st.Skipped,
		"discarded", st.Discarded,
		"failed", st.Failed,
		"dropped", st.Dropped)
	return errors.Join(stopErr, g.Wait())
}
