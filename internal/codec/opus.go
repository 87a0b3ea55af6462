package codec

import (
	"log/slog"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

const (
	SampleRate = 16000
	Channels   = 1
	FrameSize  = 960

	// After this many consecutive decode errors the decoder state is assumed
	// poisoned and is recreated.
	maxConsecutiveErrors = 5
)

// OpusDecoder decodes 16 kHz mono Opus payloads to little-endian PCM16.
type OpusDecoder struct {
	log *slog.Logger

	mu       sync.Mutex
	dec      *opus.Decoder
	errCount int
}

func NewOpusDecoder(log *slog.Logger) (*OpusDecoder, error) {
	if log == nil {
		log = slog.Default()
	}
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, err
	}
	return &OpusDecoder{log: log, dec: dec}, nil
}

// Decode returns PCM bytes, or an empty slice when the payload cannot be
// decoded. Decode errors are non-fatal: the frame is dropped and, after a run
// of maxConsecutiveErrors, the underlying decoder is recreated.
func (d *OpusDecoder) Decode(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	pcm := make([]int16, FrameSize*Channels)
	n, err := d.dec.Decode(raw, pcm)
	if err != nil {
		d.errCount++
		d.log.Warn("opus decode failed", "error", err, "consecutive", d.errCount)
		if d.errCount >= maxConsecutiveErrors {
			d.reset()
		}
		return nil
	}

	d.errCount = 0
	return pcmToBytes(pcm[:n*Channels])
}

func (d *OpusDecoder) reset() {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		d.log.Error("opus decoder reinit failed", "error", err)
		return
	}
	d.dec = dec
	d.errCount = 0
	d.log.Warn("opus decoder recreated after sustained errors")
}

func pcmToBytes(pcm []int16) []byte {
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}
