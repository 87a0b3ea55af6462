package delivery

import (
	"errors"
	"sync"
	"testing"

	"github.com/eleven-am/voice-capture/internal/shared"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(10)
	for i := byte(0); i < 3; i++ {
		if err := q.Push(Chunk{Data: []byte{i}}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	for i := byte(0); i < 3; i++ {
		head, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if head.Data[0] != i {
			t.Errorf("expected chunk %d at head, got %d", i, head.Data[0])
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("queue should be empty")
	}
}

func TestQueue_PeekDoesNotRemove(t *testing.T) {
	q := NewQueue(10)
	_ = q.Push(Chunk{Data: []byte{0xAA}})

	first, ok := q.Peek()
	if !ok {
		t.Fatal("peek on non-empty queue")
	}
	second, ok := q.Peek()
	if !ok {
		t.Fatal("second peek on non-empty queue")
	}
	if first.Data[0] != second.Data[0] {
		t.Error("peek must not remove the head")
	}
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}
}

func TestQueue_CapacityNeverExceeded(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 3; i++ {
		if err := q.Push(Chunk{}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	err := q.Push(Chunk{})
	if !errors.Is(err, shared.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Len() != 3 {
		t.Errorf("queue length %d exceeds capacity", q.Len())
	}
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := NewQueue(0)
	if q.Cap() != DefaultQueueCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultQueueCapacity, q.Cap())
	}
}

func TestQueue_PushSignalsWake(t *testing.T) {
	q := NewQueue(10)
	_ = q.Push(Chunk{})

	select {
	case <-q.Wake():
	default:
		t.Error("push should signal the wake channel")
	}

	// Repeated pushes must not block on the full signal buffer.
	for i := 0; i < 5; i++ {
		if err := q.Push(Chunk{}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
}

func TestQueue_ConcurrentPushPop(t *testing.T) {
	q := NewQueue(1000)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = q.Push(Chunk{Data: []byte{byte(i)}})
		}
	}()

	popped := 0
	go func() {
		defer wg.Done()
		for popped < n {
			if _, ok := q.Pop(); ok {
				popped++
			}
		}
	}()
	wg.Wait()

	if q.Len() != 0 {
		t.Errorf("expected drained queue, %d left", q.Len())
	}
}
