// ABOUTME: Backend selection for the session store from configuration
// ABOUTME: Also hosts the periodic expiry sweeper goroutine

package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-voice/internal/config"
)

// Open builds the Store selected by cfg.Backend.
func Open(cfg config.SessionsConfig) (Store, error) {
	opts := Options{IdleTimeout: cfg.IdleTimeout}

	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(opts), nil
	case config.BackendSQLite:
		return NewSQLiteStore(cfg.Path, opts)
	case config.BackendBadger:
		return NewBadgerStore(BadgerOptions{Options: opts, Dir: cfg.Path})
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func RunSweeper(ctx context.Context, s Store, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sweeper")
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				logger.Warn("sweeping expired sessions failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired idle sessions", "count", n)
			}
		}
	}
}
