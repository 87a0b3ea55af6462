package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkFatal is returned once the peripheral connect budget is
	// exhausted. The pipeline treats it as a failover trigger, never as a
	// process-level failure.
	ErrLinkFatal = errors.New("peripheral link: retries exhausted")

	// ErrSourceUnavailable marks a capture source that could not be started.
	ErrSourceUnavailable = errors.New("capture source unavailable")

	// ErrNoSource is returned when no capture source remains to fail over to.
	ErrNoSource = errors.New("no capture source available")

	// ErrRecordCorrupted marks an unreadable persisted chunk record.
	ErrRecordCorrupted = errors.New("persisted record corrupted")

	// ErrQueueFull is returned by the bounded queue when at capacity.
	ErrQueueFull = errors.New("delivery queue full")
)

// LinkError wraps a transient wireless-link failure with the attempt that
// produced it, so exhaustion can be reported with context.
type LinkError struct {
	Attempt int
	Err     error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link attempt %d: %v", e.Attempt, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}
