// Package app wires the listener pipeline together with fx.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"les02bridge/internal/bridge"
	"les02bridge/internal/can"
	"les02bridge/internal/config"
	"les02bridge/internal/event"
	"les02bridge/internal/hub"
	"les02bridge/internal/logging"
	"les02bridge/internal/metrics"
	"les02bridge/internal/mock"
	"les02bridge/internal/server"
)

// Module provides every pipeline component and starts them in order:
// hub, WebSocket server, bridge. fx stops them in reverse, so the bridge
// drains into a running hub before subscribers are closed.
func Module(cfg config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			NewLogger,
			NewRegistry,
			NewMetrics,
			NewSource,
			NewHub,
			NewBridge,
			NewServer,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		fx.Invoke(startHub, startServer, startBridge),
	)
}

func NewLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}

// NewRegistry returns a private registry with the Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// NewSource opens the configured frame source. Failing to open it is fatal.
func NewSource(cfg config.Config, log *zap.Logger) (can.Source, error) {
	sc := cfg.Source
	switch sc.Kind {
	case config.SourceSocketCAN:
		bus, err := can.OpenSocketCAN(sc.Interface)
		if err != nil {
			return nil, err
		}
		return bus, nil

	case config.SourceReplay:
		in := os.Stdin
		if sc.ReplayFile != "-" {
			f, err := os.Open(sc.ReplayFile)
			if err != nil {
				return nil, fmt.Errorf("open replay: %w", err)
			}
			in = f
		}
		opts := []can.ReplayOption{can.WithReplayLogger(log.Named("replay"))}
		if sc.ReplayPace {
			opts = append(opts, can.WithPacing(clock.New()))
		}
		return can.NewReplay(in, opts...), nil

	case config.SourceMockCounter:
		return mock.NewCounter(sc.MockInterval, nil), nil

	case config.SourceMockTrip:
		trip, err := mock.NewTrip(mock.DefaultProfile(), nil)
		if err != nil {
			return nil, err
		}
		return trip, nil

	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

func NewHub(cfg config.Config, m *metrics.Metrics, log *zap.Logger) (*hub.Hub, error) {
	codec, err := event.CodecByName(cfg.WS.Codec)
	if err != nil {
		return nil, err
	}
	return hub.New(codec, hub.WithMetrics(m), hub.WithLogger(log)), nil
}

func NewBridge(cfg config.Config, src can.Source, m *metrics.Metrics, log *zap.Logger) *bridge.Bridge {
	return bridge.New(src,
		bridge.WithCapacity(cfg.Bridge.HandoffCapacity),
		bridge.WithMetrics(m),
		bridge.WithLogger(log))
}

func NewServer(cfg config.Config, h *hub.Hub, reg *prometheus.Registry, log *zap.Logger) *server.Server {
	return server.New(cfg.WS, h, reg, log)
}

// runner runs fn in the background and lets OnStop cancel and wait for it.
type runner struct {
	cancel context.CancelFunc
	done   chan error
}

func start(fn func(ctx context.Context) error) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- fn(ctx) }()
	return r
}

func (r *runner) stop(ctx context.Context) error {
	r.cancel()
	select {
	case err := <-r.done:
		r.done <- err
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startHub(lc fx.Lifecycle, h *hub.Hub) {
	var r *runner
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r = start(h.Run)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return r.stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, s *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  s.Shutdown,
	})
}

// startBridge runs the bridge and shuts the application down with exit
// code 1 when the frame source ends.
func startBridge(lc fx.Lifecycle, b *bridge.Bridge, h *hub.Hub, sd fx.Shutdowner, log *zap.Logger) {
	var r *runner
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r = start(func(ctx context.Context) error {
				err := b.Run(ctx, h)
				if errors.Is(err, bridge.ErrSourceExhausted) {
					log.Error("pipeline terminated", zap.Error(err))
					if serr := sd.Shutdown(fx.ExitCode(1)); serr != nil {
						log.Error("request shutdown", zap.Error(serr))
					}
				}
				return err
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := r.stop(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, bridge.ErrSourceExhausted) {
				return nil
			}
			return err
		},
	})
}
