// Package sink holds the network sink boundary: the one interface the
// delivery engine sends through, plus the HTTP and websocket transports that
// implement it.
package sink

import "context"

// Sink delivers one audio payload to the backend. There is no error
// contract: false means the payload was not accepted and the caller decides
// what to do with it. Implementations must not panic across this boundary.
type Sink interface {
	Send(ctx context.Context, payload []byte, bypass bool) bool
}
