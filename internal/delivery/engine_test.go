package delivery

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// scriptedSink returns the scripted results in call order, then the default.
type scriptedSink struct {
	mu       sync.Mutex
	script   []bool
	fallback bool
	calls    []Chunk
	panics   bool
}

func (s *scriptedSink) Send(_ context.Context, payload []byte, bypass bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("sink exploded")
	}
	s.calls = append(s.calls, Chunk{Data: append([]byte(nil), payload...), Bypass: bypass})
	if len(s.script) > 0 {
		result := s.script[0]
		s.script = s.script[1:]
		return result
	}
	return s.fallback
}

func (s *scriptedSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedSink) call(i int) Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func newTestEngine(t *testing.T, snk *scriptedSink, cfg Config) *Engine {
	t.Helper()
	store, err := OpenStore(t.TempDir(), quietLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 5 * time.Millisecond
	}
	return NewEngine(snk, store, cfg, quietLogger(), nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestEngine_SendOnline_SingleSinkCall(t *testing.T) {
	snk := &scriptedSink{fallback: true}
	e := newTestEngine(t, snk, Config{})

	if err := e.Send(Chunk{Data: []byte{0x01}, Bypass: true}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if snk.callCount() != 1 {
		t.Fatalf("expected exactly one sink call, got %d", snk.callCount())
	}
	if !snk.call(0).Bypass {
		t.Error("bypass flag should reach the sink")
	}
	if e.QueueDepth() != 0 || e.Backlog() != 0 {
		t.Error("delivered chunk must not linger in queue or on disk")
	}
}

func TestEngine_OfflineAfterConsecutiveFailures(t *testing.T) {
	snk := &scriptedSink{fallback: false}
	e := newTestEngine(t, snk, Config{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		if err := e.Send(Chunk{Data: []byte{byte(i)}}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if e.State() != StateOffline {
		t.Fatalf("expected offline after 3 failures, state %s", e.State())
	}
	queuedBefore := e.QueueDepth()

	// The next chunk must bypass the queue and go straight to disk.
	if err := e.Send(Chunk{Data: []byte{0xFF}}); err != nil {
		t.Fatalf("offline send: %v", err)
	}
	if e.QueueDepth() != queuedBefore {
		t.Errorf("offline send grew the queue: %d -> %d", queuedBefore, e.QueueDepth())
	}
	if e.Backlog() != 1 {
		t.Errorf("expected one persisted record, got %d", e.Backlog())
	}
	if snk.callCount() != 3 {
		t.Errorf("offline send must not touch the sink, %d calls", snk.callCount())
	}
}

func TestEngine_FailureCounterResetsOnSuccess(t *testing.T) {
	snk := &scriptedSink{script: []bool{false, false, true, false}, fallback: false}
	e := newTestEngine(t, snk, Config{FailureThreshold: 3})

	for i := 0; i < 4; i++ {
		_ = e.Send(Chunk{Data: []byte{byte(i)}})
	}
	if e.State() != StateOnline {
		t.Error("a success inside the run must reset the failure counter")
	}
}

func TestEngine_QueueOverflowGoesToDisk(t *testing.T) {
	snk := &scriptedSink{fallback: false}
	e := newTestEngine(t, snk, Config{QueueCapacity: 2, FailureThreshold: 100})

	for i := 0; i < 3; i++ {
		if err := e.Send(Chunk{Data: []byte{byte(i)}}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	if e.QueueDepth() != 2 {
		t.Errorf("queue should cap at 2, got %d", e.QueueDepth())
	}
	if e.Backlog() != 1 {
		t.Errorf("overflow chunk should be on disk, backlog %d", e.Backlog())
	}
}

func TestEngine_RestartRecovery(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir, quietLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for i := byte(0); i < 5; i++ {
		if err := store.Save(Chunk{Data: []byte{i}}); err != nil {
			t.Fatalf("seed record %d: %v", i, err)
		}
	}

	// Simulate restart: fresh store over the same directory.
	store2, err := OpenStore(dir, quietLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	snk := &scriptedSink{fallback: false}
	e := NewEngine(snk, store2, Config{RetryInterval: time.Hour}, quietLogger(), nil)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	if e.QueueDepth() != 5 {
		t.Fatalf("expected 5 recovered chunks, got %d", e.QueueDepth())
	}
	if e.Backlog() != 0 {
		t.Errorf("recovered records should be removed from disk, %d left", e.Backlog())
	}
	for i := byte(0); i < 5; i++ {
		c, ok := e.queue.Pop()
		if !ok {
			t.Fatalf("queue exhausted at %d", i)
		}
		if c.Data[0] != i {
			t.Errorf("recovery out of order: expected %d, got %d", i, c.Data[0])
		}
	}
}

func TestEngine_RecoveryStopsWhenQueueFills(t *testing.T) {
	dir := t.TempDir()
	store, _ := OpenStore(dir, quietLogger())
	for i := byte(0); i < 5; i++ {
		_ = store.Save(Chunk{Data: []byte{i}})
	}

	store2, _ := OpenStore(dir, quietLogger())
	snk := &scriptedSink{fallback: false}
	e := NewEngine(snk, store2, Config{QueueCapacity: 3, RetryInterval: time.Hour}, quietLogger(), nil)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	if e.QueueDepth() != 3 {
		t.Errorf("expected queue filled to capacity, got %d", e.QueueDepth())
	}
	if e.Backlog() != 2 {
		t.Errorf("expected 2 records left for the worker, got %d", e.Backlog())
	}
}

func TestEngine_WorkerRetriesHeadUntilDelivered(t *testing.T) {
	snk := &scriptedSink{script: []bool{false, false, true}, fallback: true}
	e := newTestEngine(t, snk, Config{FailureThreshold: 100})

	if err := e.queue.Push(Chunk{Data: []byte{0x42}}); err != nil {
		t.Fatalf("seed queue: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	waitFor(t, 2*time.Second, func() bool { return e.QueueDepth() == 0 })

	if snk.callCount() != 3 {
		t.Errorf("expected 3 sink calls for the retried chunk, got %d", snk.callCount())
	}
	for i := 0; i < 3; i++ {
		if snk.call(i).Data[0] != 0x42 {
			t.Errorf("call %d was not the head chunk", i)
		}
	}
	if e.Backlog() != 0 {
		t.Error("delivered chunk must not be persisted")
	}
}

func TestEngine_ProbeExitsOfflineAndDrains(t *testing.T) {
	snk := &scriptedSink{fallback: false}
	e := newTestEngine(t, snk, Config{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		_ = e.Send(Chunk{Data: []byte{byte(i)}})
	}
	if e.State() != StateOffline {
		t.Fatal("engine should be offline")
	}

	// Backend comes back: every call, probe included, succeeds.
	snk.mu.Lock()
	snk.fallback = true
	snk.mu.Unlock()

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return e.State() == StateOnline && e.QueueDepth() == 0
	})

	snk.mu.Lock()
	var probe *Chunk
	for i := range snk.calls {
		if len(snk.calls[i].Data) == 0 {
			probe = &snk.calls[i]
			break
		}
	}
	snk.mu.Unlock()
	if probe == nil {
		t.Fatal("expected a zero-length probe send")
	}
	if !probe.Bypass {
		t.Error("probe should set the bypass flag")
	}
}

func TestEngine_WorkerDrainsPersistedBacklog(t *testing.T) {
	dir := t.TempDir()
	store, _ := OpenStore(dir, quietLogger())
	snk := &scriptedSink{fallback: true}
	e := NewEngine(snk, store, Config{QueueCapacity: 2, RetryInterval: 5 * time.Millisecond}, quietLogger(), nil)

	// 7 records on disk, queue capacity 2: recovery loads 2, the worker must
	// drain the remaining 5 from disk in batches.
	for i := byte(0); i < 7; i++ {
		_ = store.Save(Chunk{Data: []byte{i}})
	}

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return e.QueueDepth() == 0 && e.Backlog() == 0
	})
	if snk.callCount() != 7 {
		t.Errorf("expected all 7 chunks delivered, got %d sink calls", snk.callCount())
	}
}

func TestEngine_CorruptRecordQuarantinedDuringRecovery(t *testing.T) {
	dir := t.TempDir()
	store, _ := OpenStore(dir, quietLogger())
	_ = store.Save(Chunk{Data: []byte{0x01}})
	garbage := recordPrefix + "00000000000000000099" + recordSuffix
	if err := os.WriteFile(filepath.Join(dir, garbage), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	store2, _ := OpenStore(dir, quietLogger())
	snk := &scriptedSink{fallback: false}
	e := NewEngine(snk, store2, Config{RetryInterval: time.Hour}, quietLogger(), nil)
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Stop()

	if e.QueueDepth() != 1 {
		t.Errorf("valid record should be recovered, queue %d", e.QueueDepth())
	}
	if e.Backlog() != 0 {
		t.Errorf("corrupt record must not stay in the replay set, backlog %d", e.Backlog())
	}
	if _, err := os.Stat(filepath.Join(dir, quarantinePrefix+garbage)); err != nil {
		t.Errorf("corrupt record should be quarantined, not deleted: %v", err)
	}
}

func TestEngine_SinkPanicIsAFailure(t *testing.T) {
	snk := &scriptedSink{panics: true}
	e := newTestEngine(t, snk, Config{FailureThreshold: 100})

	if err := e.Send(Chunk{Data: []byte{0x01}}); err != nil {
		t.Fatalf("send must absorb sink panics: %v", err)
	}
	if e.QueueDepth() != 1 {
		t.Error("chunk from a panicking sink should be buffered")
	}
}

func TestEngine_StopLeavesBacklogInPlace(t *testing.T) {
	snk := &scriptedSink{fallback: false}
	e := newTestEngine(t, snk, Config{FailureThreshold: 100, RetryInterval: time.Hour})

	_ = e.Send(Chunk{Data: []byte{0x01}})
	_ = e.Send(Chunk{Data: []byte{0x02}})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop must respect its bounded timeout")
	}

	if e.QueueDepth() == 0 {
		t.Error("stop must not drain the queue")
	}
}

func TestEngine_StartIdempotent(t *testing.T) {
	snk := &scriptedSink{fallback: true}
	e := newTestEngine(t, snk, Config{})
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	e.Stop()
}
