package membership

import (
	"log/slog"
	"time"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
)

// Config holds the fixed subscription terms.
//
// LockTimeout bounds the wait for the per-user lease. OperationTimeout bounds
// the work done while holding it and must stay below the locker's lease TTL.
type Config struct {
	Price            billing.Money
	Description      string
	LockTimeout      time.Duration
	OperationTimeout time.Duration
	NotifyTimeout    time.Duration
}

type Option func(*Manager)

func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		if cfg.Price.Amount > 0 && cfg.Price.Currency != "" {
			m.cfg.Price = cfg.Price
		}
		if cfg.Description != "" {
			m.cfg.Description = cfg.Description
		}
		if cfg.LockTimeout > 0 {
			m.cfg.LockTimeout = cfg.LockTimeout
		}
		if cfg.OperationTimeout > 0 {
			m.cfg.OperationTimeout = cfg.OperationTimeout
		}
		if cfg.NotifyTimeout > 0 {
			m.cfg.NotifyTimeout = cfg.NotifyTimeout
		}
	}
}

// WithLocker replaces the in-process locker, e.g. with a Redis one when
// several replicas serve the same users.
func WithLocker(l Locker) Option {
	return func(m *Manager) {
		if l != nil {
			m.locker = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}
