package shared

import (
	"time"
)

// RetryConfig bounds a reconnect loop: at most MaxAttempts tries with a fixed
// Delay between them.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

func NormalizeRetry(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}
	return cfg
}
