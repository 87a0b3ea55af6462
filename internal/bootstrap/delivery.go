package bootstrap

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/eleven-am/voice-capture/internal/delivery"
	"github.com/eleven-am/voice-capture/internal/sink"
)

func ProvideSink(cfg *Config, logger *slog.Logger) sink.Sink {
	if cfg.SinkTransport == "ws" {
		return sink.NewWSSink(sink.WSConfig{
			URL: cfg.SinkURL,
		}, logger.With("component", "sink"))
	}
	return sink.NewHTTPSink(sink.HTTPConfig{
		BaseURL:        cfg.SinkURL,
		StreamPath:     cfg.SinkStreamPath,
		RequestTimeout: cfg.SinkTimeout,
	}, logger.With("component", "sink"))
}

func ProvideMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func ProvideDeliveryMetrics(reg *prometheus.Registry) *delivery.Metrics {
	return delivery.NewMetrics(reg)
}

func ProvideStore(cfg *Config, logger *slog.Logger) (*delivery.Store, error) {
	return delivery.OpenStore(cfg.CacheDir, logger.With("component", "store"))
}

func ProvideEngine(snk sink.Sink, store *delivery.Store, cfg *Config, logger *slog.Logger, metrics *delivery.Metrics) *delivery.Engine {
	return delivery.NewEngine(snk, store, delivery.Config{
		QueueCapacity:     cfg.QueueCapacity,
		FailureThreshold:  cfg.FailureThreshold,
		RetryInterval:     cfg.RetryInterval,
		OfflineMultiplier: cfg.OfflineMultiplier,
		ScanBatch:         cfg.ScanBatch,
		StopTimeout:       cfg.StopTimeout,
	}, logger.With("component", "delivery"), metrics)
}

// ProbeBackend checks reachability once at startup. Unlike a hard dependency
// this only logs: an unreachable backend means the engine buffers from the
// first chunk, it does not stop the agent from capturing.
func ProbeBackend(lc fx.Lifecycle, snk sink.Sink, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p, ok := snk.(interface{ Probe(context.Context) error })
			if !ok {
				return nil
			}
			if err := p.Probe(ctx); err != nil {
				logger.Warn("backend unreachable at startup, chunks will buffer", "error", err)
				return nil
			}
			logger.Info("backend reachable")
			return nil
		},
		OnStop: func(context.Context) error {
			if c, ok := snk.(io.Closer); ok {
				return c.Close()
			}
			return nil
		},
	})
}

// StartEngine registers the engine lifecycle before the pipeline's so fx
// stops the pipeline first: sources quiesce, then the engine flushes.
func StartEngine(lc fx.Lifecycle, engine *delivery.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return engine.Start()
		},
		OnStop: func(ctx context.Context) error {
			engine.Stop()
			return nil
		},
	})
}

var DeliveryModule = fx.Options(
	fx.Provide(
		ProvideSink,
		ProvideMetricsRegistry,
		ProvideDeliveryMetrics,
		ProvideStore,
		ProvideEngine,
	),
	fx.Invoke(ProbeBackend, StartEngine),
)
