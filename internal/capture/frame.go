package capture

// HeaderSize is the fixed device framing header each raw notification starts
// with (sequence/metadata bytes the peripheral prepends to every packet).
const HeaderSize = 3

var placeholderHeader = [HeaderSize]byte{0x00, 0x00, 0x00}

// StripHeader removes the device framing header. It returns false for frames
// too short to carry any payload; those are dropped upstream of the decoder.
func StripHeader(raw []byte) ([]byte, bool) {
	if len(raw) <= HeaderSize {
		return nil, false
	}
	return raw[HeaderSize:], true
}

// PrependPlaceholderHeader normalizes audio from a non-peripheral source into
// the peripheral framing, so the decode stage stays source-agnostic.
func PrependPlaceholderHeader(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	copy(out, placeholderHeader[:])
	copy(out[HeaderSize:], payload)
	return out
}
