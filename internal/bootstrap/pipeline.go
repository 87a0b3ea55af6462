package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"go.uber.org/fx"

	"github.com/eleven-am/voice-capture/internal/capture"
	"github.com/eleven-am/voice-capture/internal/codec"
	"github.com/eleven-am/voice-capture/internal/delivery"
	"github.com/eleven-am/voice-capture/internal/mic"
	"github.com/eleven-am/voice-capture/internal/peripheral"
	"github.com/eleven-am/voice-capture/internal/pipeline"
	"github.com/eleven-am/voice-capture/internal/shared"
)

func ProvidePipeline(
	perp *peripheral.Source,
	m *mic.Source,
	dec codec.Decoder,
	engine *delivery.Engine,
	cfg *Config,
	logger *slog.Logger,
) *pipeline.Pipeline {
	// Assign through locals so a disabled source stays a nil interface
	// instead of a non-nil interface wrapping a nil pointer.
	var primary, secondary capture.Source
	if perp != nil {
		primary = perp
	}
	if m != nil {
		secondary = m
	}
	return pipeline.New(primary, secondary, dec, engine, pipeline.Config{
		FrameBuffer: cfg.FrameBuffer,
		Bypass:      cfg.BypassFiltering,
	}, logger.With("component", "pipeline"))
}

// StartPipeline runs the capture loop for the whole process lifetime. A
// terminal ErrNoSource shuts the application down so the supervisor can
// restart it; buffered audio survives on disk either way.
func StartPipeline(lc fx.Lifecycle, sd fx.Shutdowner, p *pipeline.Pipeline, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				err := p.Run(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("capture pipeline terminated", "error", err)
					if errors.Is(err, shared.ErrNoSource) {
						_ = sd.Shutdown()
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

var PipelineModule = fx.Options(
	fx.Provide(ProvidePipeline),
	fx.Invoke(StartPipeline),
)
