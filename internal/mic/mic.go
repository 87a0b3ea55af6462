// Package mic captures audio from the host microphone through miniaudio.
// It is the fallback source when no wearable is reachable, and it emits
// frames in the same shape the wearable does so the rest of the pipeline
// cannot tell them apart.
package mic

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/eleven-am/voice-capture/internal/capture"
	"github.com/eleven-am/voice-capture/internal/codec"
	"github.com/eleven-am/voice-capture/internal/shared"
)

type Config struct {
	SampleRate uint32
	Channels   uint32
	// FrameMillis is the capture period per callback. 30ms at 16kHz keeps
	// frames close to the wearable's notification size.
	FrameMillis uint32
}

func (c *Config) normalize() {
	if c.SampleRate == 0 {
		c.SampleRate = codec.SampleRate
	}
	if c.Channels == 0 {
		c.Channels = codec.Channels
	}
	if c.FrameMillis == 0 {
		c.FrameMillis = 30
	}
}

// Source is a capture.Source backed by the default capture device.
type Source struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	started bool
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	done    chan error
}

func NewSource(cfg Config, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	cfg.normalize()
	return &Source{cfg: cfg, log: log, done: make(chan error, 1)}
}

func (s *Source) Name() string { return "microphone" }

func (s *Source) Start(handler capture.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("microphone already started")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		s.log.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %v: %w", err, shared.ErrSourceUnavailable)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = s.cfg.Channels
	devCfg.SampleRate = s.cfg.SampleRate
	devCfg.PeriodSizeInMilliseconds = s.cfg.FrameMillis
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if len(input) == 0 {
				return
			}
			// The device owns input; frame the copied PCM like the
			// wearable does so header stripping stays uniform downstream.
			handler(capture.Frame{
				SourceID: s.Name(),
				Data:     capture.PrependPlaceholderHeader(input),
			})
		},
	}

	device, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("init capture device: %v: %w", err, shared.ErrSourceUnavailable)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("start capture device: %v: %w", err, shared.ErrSourceUnavailable)
	}

	s.mctx = mctx
	s.device = device
	s.started = true
	s.log.Info("microphone capture started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels)
	return nil
}

func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		_ = s.mctx.Uninit()
		s.mctx.Free()
		s.mctx = nil
	}
	s.done <- nil
	close(s.done)
	s.log.Info("microphone capture stopped")
}

func (s *Source) Done() <-chan error { return s.done }
