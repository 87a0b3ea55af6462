package bootstrap

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/eleven-am/voice-capture/internal/codec"
	"github.com/eleven-am/voice-capture/internal/mic"
	"github.com/eleven-am/voice-capture/internal/peripheral"
	"github.com/eleven-am/voice-capture/internal/shared"
)

// ProvidePeripheralSource builds the wearable source, or nil when the
// peripheral is disabled or the BLE stack is unavailable. A nil source just
// means the pipeline starts on the fallback microphone.
func ProvidePeripheralSource(cfg *Config, logger *slog.Logger) *peripheral.Source {
	if !cfg.PeripheralEnabled {
		return nil
	}
	link, err := peripheral.NewBLELink(peripheral.BLEConfig{
		DeviceName:         cfg.DeviceName,
		DeviceAddress:      cfg.DeviceAddress,
		ServiceUUID:        cfg.ServiceUUID,
		CharacteristicUUID: cfg.CharacteristicUUID,
	}, logger.With("component", "ble"))
	if err != nil {
		logger.Warn("ble link unavailable, wearable source disabled", "error", err)
		return nil
	}
	mgr := peripheral.NewManager(link, peripheral.ManagerConfig{
		Retry: shared.RetryConfig{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay,
		},
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger.With("component", "peripheral"))
	return peripheral.NewSource(mgr, cfg.DeviceName, logger.With("component", "peripheral"))
}

func ProvideMicSource(cfg *Config, logger *slog.Logger) *mic.Source {
	if !cfg.MicEnabled {
		return nil
	}
	return mic.NewSource(mic.Config{
		SampleRate:  uint32(cfg.MicSampleRate),
		FrameMillis: uint32(cfg.MicFrameMillis),
	}, logger.With("component", "mic"))
}

func ProvideDecoder(logger *slog.Logger) (codec.Decoder, error) {
	return codec.NewOpusDecoder(logger.With("component", "codec"))
}

var CaptureModule = fx.Options(
	fx.Provide(
		ProvidePeripheralSource,
		ProvideMicSource,
		ProvideDecoder,
	),
)
