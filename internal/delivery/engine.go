package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-capture/internal/sink"
)

type Config struct {
	// QueueCapacity bounds the in-memory buffer; overflow goes to disk.
	QueueCapacity int
	// FailureThreshold is the run of consecutive send failures that flips
	// the engine offline.
	FailureThreshold int
	// RetryInterval paces the background worker between failed attempts.
	RetryInterval time.Duration
	// OfflineMultiplier stretches the interval between offline probes.
	OfflineMultiplier int
	// ScanBatch is how many persisted records one disk pass attempts.
	ScanBatch int
	// StopTimeout bounds the worker join on shutdown.
	StopTimeout time.Duration
}

func normalizeConfig(cfg Config) Config {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.OfflineMultiplier <= 0 {
		cfg.OfflineMultiplier = 2
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 5
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}
	return cfg
}

// Engine accepts decoded chunks from the capture pipeline and guarantees
// each one is delivered to the sink or durably persisted. Producers never
// see delivery failures: Send errors only when persistence itself fails.
// A single background worker drains the queue and the disk backlog.
type Engine struct {
	snk     sink.Sink
	queue   *Queue
	store   *Store
	cfg     Config
	log     *slog.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	failures int
	offline  bool
	started  bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewEngine(snk sink.Sink, store *Store, cfg Config, log *slog.Logger, metrics *Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	cfg = normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		snk:     snk,
		queue:   NewQueue(cfg.QueueCapacity),
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start reloads the persisted backlog into the queue (oldest first, up to
// capacity; the rest stays on disk for the worker) and launches the worker.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	e.recoverFromDisk()
	go e.worker()
	e.log.Info("delivery engine started",
		"queue_capacity", e.queue.Cap(),
		"queued", e.queue.Len(),
		"persisted_backlog", e.store.Count())
	return nil
}

// Stop signals the worker and waits for it up to StopTimeout. Queued and
// persisted chunks stay where they are for the next run.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })

	select {
	case <-e.done:
	case <-time.After(e.cfg.StopTimeout):
		e.log.Warn("delivery worker did not finish in time, abandoning")
	}
	e.cancel()
	e.log.Info("delivery engine stopped", "queued", e.queue.Len(), "persisted_backlog", e.store.Count())
}

// Send accepts one chunk. Offline mode persists directly; online mode sends
// and falls back to the queue, then to disk. The returned error is only ever
// a persistence failure.
func (e *Engine) Send(c Chunk) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	if e.State() == StateOffline {
		return e.persist(c)
	}

	if e.trySend(c) {
		e.resetFailures()
		if e.metrics != nil {
			e.metrics.ChunksSent.Inc()
		}
		return nil
	}
	e.recordFailure()

	if err := e.queue.Push(c); err == nil {
		if e.metrics != nil {
			e.metrics.ChunksBuffered.Inc()
			e.metrics.QueueDepth.Set(float64(e.queue.Len()))
		}
		return nil
	}
	return e.persist(c)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.offline {
		return StateOffline
	}
	return StateOnline
}

func (e *Engine) QueueDepth() int {
	return e.queue.Len()
}

// Backlog reports the number of persisted records awaiting delivery.
func (e *Engine) Backlog() int {
	return e.store.Count()
}

// trySend invokes the sink with the engine context. A panicking sink is
// treated exactly like a false return.
func (e *Engine) trySend(c Chunk) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("sink panicked", "panic", r)
			ok = false
		}
	}()
	return e.snk.Send(e.ctx, c.Data, c.Bypass)
}

func (e *Engine) persist(c Chunk) error {
	if err := e.store.Save(c); err != nil {
		e.log.Error("persist failed, chunk lost", "error", err)
		return err
	}
	if e.metrics != nil {
		e.metrics.ChunksPersisted.Inc()
	}
	return nil
}

func (e *Engine) resetFailures() {
	e.mu.Lock()
	e.failures = 0
	e.mu.Unlock()
}

func (e *Engine) recordFailure() {
	e.mu.Lock()
	e.failures++
	flipped := e.failures >= e.cfg.FailureThreshold && !e.offline
	if flipped {
		e.offline = true
	}
	failures := e.failures
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.SendFailures.Inc()
		if flipped {
			e.metrics.Offline.Set(1)
		}
	}
	if flipped {
		e.log.Warn("entering offline mode", "consecutive_failures", failures)
	}
}

func (e *Engine) setOnline() {
	e.mu.Lock()
	e.offline = false
	e.failures = 0
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.Offline.Set(0)
	}
	e.log.Info("connectivity restored, exiting offline mode")
}

func (e *Engine) recoverFromDisk() {
	names, err := e.store.List()
	if err != nil {
		e.log.Error("persisted record scan failed", "error", err)
		return
	}
	if len(names) == 0 {
		return
	}

	loaded := 0
	for _, name := range names {
		c, err := e.store.Load(name)
		if err != nil {
			e.quarantine(name)
			continue
		}
		if err := e.queue.Push(c); err != nil {
			// Queue filled up; the rest stays on disk for the worker.
			break
		}
		if err := e.store.Remove(name); err != nil {
			e.log.Error("loaded record removal failed", "record", name, "error", err)
		}
		loaded++
	}
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(float64(e.queue.Len()))
	}
	e.log.Info("persisted records recovered", "loaded", loaded, "remaining", e.store.Count())
}

func (e *Engine) worker() {
	defer close(e.done)

	for {
		select {
		case <-e.stop:
			return
		default:
		}

		if e.State() == StateOffline {
			if e.probe() {
				e.setOnline()
				continue
			}
			if !e.wait(e.cfg.RetryInterval*time.Duration(e.cfg.OfflineMultiplier), false) {
				return
			}
			continue
		}

		if head, ok := e.queue.Peek(); ok {
			if e.trySend(head) {
				e.queue.Pop()
				e.resetFailures()
				if e.metrics != nil {
					e.metrics.ChunksSent.Inc()
					e.metrics.QueueDepth.Set(float64(e.queue.Len()))
				}
				continue
			}
			e.recordFailure()
			if !e.wait(e.cfg.RetryInterval, false) {
				return
			}
			continue
		}

		if e.drainPersisted() > 0 {
			continue
		}
		if !e.wait(e.cfg.RetryInterval, true) {
			return
		}
	}
}

// probe sends the zero-length sentinel that gates the offline → online
// transition.
func (e *Engine) probe() bool {
	e.log.Debug("probing sink to exit offline mode")
	return e.trySend(Chunk{Bypass: true})
}

// drainPersisted attempts one batch of persisted records, oldest first, and
// stops at the first failure so the record is retried later. Returns the
// number of records delivered.
func (e *Engine) drainPersisted() int {
	names, err := e.store.List()
	if err != nil {
		e.log.Error("persisted record scan failed", "error", err)
		return 0
	}
	if len(names) == 0 {
		return 0
	}
	if len(names) > e.cfg.ScanBatch {
		names = names[:e.cfg.ScanBatch]
	}

	sent := 0
	for _, name := range names {
		c, err := e.store.Load(name)
		if err != nil {
			e.quarantine(name)
			continue
		}
		if !e.trySend(c) {
			e.recordFailure()
			break
		}
		if err := e.store.Remove(name); err != nil {
			e.log.Error("sent record removal failed", "record", name, "error", err)
		}
		e.resetFailures()
		sent++
		if e.metrics != nil {
			e.metrics.ChunksSent.Inc()
		}
	}
	return sent
}

func (e *Engine) quarantine(name string) {
	e.store.Quarantine(name)
	if e.metrics != nil {
		e.metrics.ChunksQuarantined.Inc()
	}
}

// wait sleeps for d unless stopped; when wakeable, a new queue item cuts the
// sleep short so fresh chunks are retried without the full interval latency.
func (e *Engine) wait(d time.Duration, wakeable bool) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	if wakeable {
		select {
		case <-e.stop:
			return false
		case <-timer.C:
			return true
		case <-e.queue.Wake():
			return true
		}
	}
	select {
	case <-e.stop:
		return false
	case <-timer.C:
		return true
	}
}
