// Package peripheral owns the wearable's connection lifecycle: a state
// machine that connects, subscribes to the audio characteristic, listens for
// the disconnect event and retries with a bounded budget. The wireless stack
// itself sits behind the Link interface.
package peripheral

import (
	"context"
	"time"
)

// NotificationHandler receives one raw framed notification from the link.
type NotificationHandler func(data []byte)

// Link is the narrow boundary to the wireless transport. One Link represents
// one peripheral; Connect may be called again after a disconnect.
type Link interface {
	// Connect opens the link, bounded by timeout.
	Connect(ctx context.Context, timeout time.Duration) error
	// Subscribe installs the notification handler on the audio
	// characteristic. Once it returns nil, notifications are flowing.
	Subscribe(fn NotificationHandler) error
	// Unsubscribe stops notification delivery. Called before Close during a
	// cooperative teardown so no notification races the close.
	Unsubscribe() error
	// Close tears the link down. Safe after a remote disconnect.
	Close() error
	// Disconnected is closed when the peripheral drops the current
	// connection. The channel is fresh per Connect.
	Disconnected() <-chan struct{}
}

// ConnState is the manager-owned connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
