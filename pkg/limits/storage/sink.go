package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/governor/pkg/config"
	"mercator-hq/governor/pkg/limits/usage"
)

// Open creates the alert store selected by cfg.
func Open(cfg config.AlertStorageConfig) (AlertStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.MaxAlerts), nil
	case "sqlite":
		return NewSQLiteStore(SQLiteConfig{Path: cfg.Path, Driver: cfg.Driver})
	default:
		return nil, fmt.Errorf("unsupported alert storage backend %q", cfg.Backend)
	}
}

// Sink adapts an AlertStore to usage.AlertSink.
type Sink struct {
	Store AlertStore
}

// HandleAlert implements usage.AlertSink.
func (s Sink) HandleAlert(ctx context.Context, alert usage.Alert) error {
	_, err := s.Store.Save(ctx, alert)
	return err
}

// Pruner returns a usage cleanup hook that deletes stored alerts older than
// retention.
func Pruner(store AlertStore, retention time.Duration, logger *slog.Logger) func(time.Time) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(now time.Time) {
		n, err := store.Cleanup(context.Background(), now.Add(-retention))
		if err != nil {
			logger.Warn("Alert retention cleanup failed", "error", err)
			return
		}
		logger.Info("Alert retention cleanup completed", "deleted", n)
	}
}
