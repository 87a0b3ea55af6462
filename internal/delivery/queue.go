package delivery

import (
	"sync"

	"github.com/eleven-am/voice-capture/internal/shared"
)

const DefaultQueueCapacity = 1000

// Queue is the bounded FIFO shared by the producer path (Engine.Send) and
// the retry worker. It is the single synchronization point between them:
// push, peek and pop are all safe to call concurrently. A full queue rejects
// the push rather than blocking or dropping, so the caller can overflow to
// disk.
type Queue struct {
	mu       sync.Mutex
	items    []Chunk
	capacity int
	wake     chan struct{}
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Push appends a chunk and wakes the worker. Returns shared.ErrQueueFull at
// capacity.
func (q *Queue) Push(c Chunk) error {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return shared.ErrQueueFull
	}
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Peek returns the head chunk without removing it, so a failed retry keeps
// it at the front of the line.
func (q *Queue) Peek() (Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Chunk{}, false
	}
	return q.items[0], true
}

func (q *Queue) Pop() (Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Chunk{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Cap() int {
	return q.capacity
}

// Wake signals once per Push so the worker's timed wait can cut short when
// new work arrives.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}
