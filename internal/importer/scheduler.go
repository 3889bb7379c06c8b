package importer

import (
	"context"
	"log/slog"
	"time"
)

// CleanupConfig controls the transaction eviction loop.
type CleanupConfig struct {
	Retention     time.Duration // Age after which finished transactions are evicted (default 24h)
	CheckInterval time.Duration // How often to run (default 1h)
}

// StartCleanupScheduler evicts old finished transactions immediately and
// then every CheckInterval until ctx is cancelled. It blocks; run it in a
// goroutine.
func (m *Manager) StartCleanupScheduler(ctx context.Context, cfg CleanupConfig) {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}

	slog.Info("cleanup scheduler started",
		"retention", cfg.Retention.String(),
		"interval", cfg.CheckInterval.String(),
	)

	m.runCleanup(cfg.Retention)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup scheduler stopped")
			return
		case <-ticker.C:
			m.runCleanup(cfg.Retention)
		}
	}
}

func (m *Manager) runCleanup(retention time.Duration) {
	start := time.Now()
	removed := m.CleanupTransactions(retention)
	slog.Debug("transaction cleanup completed",
		"evicted", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
