package codec

// Decoder turns one raw audio payload into PCM bytes. An empty result means
// the frame could not be decoded and should be dropped; decoders never
// surface per-frame errors to the pipeline.
type Decoder interface {
	Decode(raw []byte) []byte
}
