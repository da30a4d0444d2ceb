// Package storage persists usage alerts.
//
// # Backends
//
//   - Memory: bounded ring of the most recent alerts (default, no persistence)
//   - SQLite: file-backed table in WAL mode, using either the pure Go
//     "sqlite" driver or the cgo "sqlite3" driver
//
// # Usage
//
//	store, err := storage.Open(cfg.Storage.Alerts)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	monitor.Notifier().AddSink(storage.Sink{Store: store})
//
//	records, err := store.List(ctx, storage.Filter{Severity: usage.SeverityHigh})
//
// # Thread Safety
//
// All stores are safe for concurrent use.
package storage
