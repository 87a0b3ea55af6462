// Package pipeline wires a capture source to the delivery engine: frames in,
// decoded PCM chunks out. It owns source failover, so the rest of the system
// only ever sees one stream of chunks regardless of where the audio came from.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eleven-am/voice-capture/internal/capture"
	"github.com/eleven-am/voice-capture/internal/codec"
	"github.com/eleven-am/voice-capture/internal/delivery"
	"github.com/eleven-am/voice-capture/internal/shared"
)

const defaultFrameBuffer = 128

// deliverer is the slice of delivery.Engine the pipeline needs.
type deliverer interface {
	Send(delivery.Chunk) error
}

type Config struct {
	// FrameBuffer sizes the channel between the source callback and the
	// decode loop. A full buffer drops the newest frame rather than block
	// the radio or audio callback.
	FrameBuffer int
	// Bypass marks every chunk to skip server-side filtering.
	Bypass bool
}

type Pipeline struct {
	primary   capture.Source
	secondary capture.Source
	dec       codec.Decoder
	eng       deliverer
	bypass    bool
	log       *slog.Logger

	frames   chan capture.Frame
	overruns atomic.Uint64

	mu     sync.Mutex
	active string
}

func New(primary, secondary capture.Source, dec codec.Decoder, eng deliverer, cfg Config, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = defaultFrameBuffer
	}
	return &Pipeline{
		primary:   primary,
		secondary: secondary,
		dec:       dec,
		eng:       eng,
		bypass:    cfg.Bypass,
		log:       log,
		frames:    make(chan capture.Frame, cfg.FrameBuffer),
	}
}

// ActiveSource names the source currently feeding the pipeline, or "" when
// none is running.
func (p *Pipeline) ActiveSource() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Overruns counts frames dropped because the decode loop fell behind.
func (p *Pipeline) Overruns() uint64 {
	return p.overruns.Load()
}

// Run starts the primary source and fails over to the secondary when the
// primary terminates. It returns shared.ErrNoSource once every source is
// exhausted, or ctx.Err() on cancellation. The delivery engine is managed by
// the caller and keeps running across failovers.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go p.consume(ctx, consumerDone)
	defer func() {
		cancel()
		<-consumerDone
	}()

	for _, src := range []capture.Source{p.primary, p.secondary} {
		if src == nil {
			continue
		}
		if err := src.Start(p.handleFrame); err != nil {
			p.log.Error("source failed to start, trying next", "source", src.Name(), "error", err)
			continue
		}
		p.setActive(src.Name())
		p.log.Info("capture source active", "source", src.Name())

		select {
		case <-ctx.Done():
			src.Stop()
			p.setActive("")
			return ctx.Err()
		case err := <-src.Done():
			src.Stop()
			p.setActive("")
			p.log.Warn("capture source terminated, failing over", "source", src.Name(), "error", err)
		}
	}
	return shared.ErrNoSource
}

// handleFrame runs on the source's callback goroutine, so it must never
// block: a full buffer counts an overrun and drops the frame.
func (p *Pipeline) handleFrame(f capture.Frame) {
	select {
	case p.frames <- f:
	default:
		if n := p.overruns.Add(1); n%100 == 1 {
			p.log.Warn("frame buffer full, dropping", "dropped_total", n)
		}
	}
}

func (p *Pipeline) consume(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-p.frames:
			p.process(f)
		}
	}
}

func (p *Pipeline) process(f capture.Frame) {
	payload, ok := capture.StripHeader(f.Data)
	if !ok {
		return
	}
	pcm := p.dec.Decode(payload)
	if len(pcm) == 0 {
		return
	}
	if err := p.eng.Send(delivery.Chunk{Data: pcm, Bypass: p.bypass}); err != nil {
		p.log.Error("chunk handoff failed", "source", f.SourceID, "error", err)
	}
}

func (p *Pipeline) setActive(name string) {
	p.mu.Lock()
	p.active = name
	p.mu.Unlock()
}
