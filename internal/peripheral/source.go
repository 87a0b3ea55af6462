package peripheral

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/voice-capture/internal/capture"
)

// Source adapts a Manager-driven Link into the capture.Source the pipeline
// consumes. Its Done channel yields the manager's terminal error, which is
// how the pipeline notices the retry budget ran out and fails over.
type Source struct {
	mgr *Manager
	id  string
	log *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	done    chan error
}

func NewSource(mgr *Manager, id string, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		mgr:  mgr,
		id:   id,
		log:  log,
		done: make(chan error, 1),
	}
}

func (s *Source) Name() string { return s.id }

func (s *Source) State() ConnState { return s.mgr.State() }

func (s *Source) Start(handler capture.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("source %s already started", s.id)
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		err := s.mgr.Run(ctx, func(data []byte) {
			handler(capture.Frame{SourceID: s.id, Data: data})
		})
		if err != nil && ctx.Err() == nil {
			s.log.Error("peripheral source terminated", "source", s.id, "error", err)
		}
		// Send then close so one reader sees the error and any later
		// receive (Stop joining after the pipeline drained it) returns.
		s.done <- err
		close(s.done)
	}()
	return nil
}

func (s *Source) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()
	if !started || cancel == nil {
		return
	}
	cancel()
	<-s.done

	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
}

func (s *Source) Done() <-chan error { return s.done }
