// Package delivery guarantees that an accepted audio chunk is eventually
// delivered to the network sink or durably persisted: direct send while the
// backend is healthy, a bounded in-memory queue on transient failures, disk
// overflow when the queue is full, and an offline mode that persists
// directly until a connectivity probe succeeds.
package delivery

import "time"

// Chunk is one decoded audio payload accepted by the engine. Bypass tells
// the sink to skip optional downstream filtering for this chunk.
type Chunk struct {
	Data      []byte
	Bypass    bool
	CreatedAt time.Time
}

// State reports how the engine currently routes new chunks.
type State string

const (
	// StateOnline sends directly and buffers on failure.
	StateOnline State = "online"
	// StateOffline persists directly, bypassing the memory queue, until a
	// probe send succeeds.
	StateOffline State = "offline"
)
