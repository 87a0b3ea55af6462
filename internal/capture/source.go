package capture

// Frame is one raw notification from a capture source, still carrying the
// device framing header.
type Frame struct {
	SourceID string
	Data     []byte
}

// Handler receives frames pushed by a running source. Implementations must
// not block: sources call it from their capture callback.
type Handler func(Frame)

// Source produces raw framed audio. Start installs the handler and begins
// capture; Stop is idempotent and releases hardware resources. Done yields
// the terminal error once capture ends on its own (nil after a clean Stop),
// which is how the pipeline observes a source dying underneath it.
type Source interface {
	Start(Handler) error
	Stop()
	Done() <-chan error
	Name() string
}
