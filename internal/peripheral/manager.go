package peripheral

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-capture/internal/shared"
)

const defaultConnectTimeout = 10 * time.Second

type ManagerConfig struct {
	Retry          shared.RetryConfig
	ConnectTimeout time.Duration
}

// Manager drives one Link through Disconnected → Connecting → Connected
// cycles. A cycle counts as successful only once Subscribe returns, so a
// failure at any earlier point burns one retry attempt; after a successful
// cycle the attempt budget is restored and a later disconnect re-enters the
// retry loop instead of terminating.
type Manager struct {
	link  Link
	cfg   ManagerConfig
	log   *slog.Logger
	state atomic.Int32
}

func NewManager(link Link, cfg ManagerConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	cfg.Retry = shared.NormalizeRetry(cfg.Retry)
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &Manager{link: link, cfg: cfg, log: log}
}

func (m *Manager) State() ConnState {
	return ConnState(m.state.Load())
}

func (m *Manager) setState(s ConnState) {
	m.state.Store(int32(s))
}

// Run connects and listens until ctx is canceled. It returns ctx.Err() on
// cancellation and a shared.ErrLinkFatal-wrapped error once the retry budget
// is exhausted; it never panics the pipeline.
func (m *Manager) Run(ctx context.Context, handler NotificationHandler) error {
	defer m.setState(StateDisconnected)

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.setState(StateConnecting)
		attempts++

		err := m.link.Connect(ctx, m.cfg.ConnectTimeout)
		if err == nil {
			if err = m.link.Subscribe(handler); err != nil {
				_ = m.link.Close()
			}
		}
		if err != nil {
			m.setState(StateDisconnected)
			lnkErr := &shared.LinkError{Attempt: attempts, Err: err}
			m.log.Error("peripheral connect failed",
				"attempt", attempts,
				"max_attempts", m.cfg.Retry.MaxAttempts,
				"error", lnkErr)

			if attempts >= m.cfg.Retry.MaxAttempts {
				return fmt.Errorf("connect failed after %d attempts: %w", attempts, shared.ErrLinkFatal)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.Retry.Delay):
			}
			continue
		}

		m.setState(StateConnected)
		attempts = 0
		m.log.Info("peripheral connected, notifications flowing")

		select {
		case <-ctx.Done():
			// Unsubscribe before close so no notification races the teardown.
			_ = m.link.Unsubscribe()
			_ = m.link.Close()
			return ctx.Err()
		case <-m.link.Disconnected():
			m.log.Warn("peripheral disconnected, reconnecting")
			_ = m.link.Close()
			m.setState(StateDisconnected)
		}
	}
}
