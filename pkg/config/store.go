package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ChangeFunc is called after a new snapshot has been installed.
type ChangeFunc func(old, updated *Config)

// Store holds the active configuration snapshot. Reads are lock-free;
// updates are serialized, validated, and installed with an atomic swap so
// in-flight requests keep the snapshot they started with.
type Store struct {
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []ChangeFunc
	logger    *slog.Logger
}

// NewStore creates a store holding cfg.
func NewStore(cfg *Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger.With("component", "config")}
	s.current.Store(cfg)
	return s
}

// Get returns the active snapshot. Callers must not modify it.
func (s *Store) Get() *Config {
	return s.current.Load()
}

// OnChange registers fn to run after every successful update.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Set updates a single dotted key path, e.g. "queue.max_queue_size".
// The update is rejected, and the previous snapshot kept, if the result
// does not validate.
func (s *Store) Set(path, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.current.Load()
	updated, err := SetPath(old, path, value)
	if err != nil {
		return err
	}
	if err := s.install(old, updated); err != nil {
		return err
	}

	s.logger.Info("Configuration key updated", "key", path)
	return nil
}

// Reload replaces the snapshot with the result of load.
func (s *Store) Reload(load func() (*Config, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := load()
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	if err := s.install(s.current.Load(), updated); err != nil {
		return err
	}

	s.logger.Info("Configuration reloaded", "environment", updated.Environment)
	return nil
}

// install validates and swaps in updated. s.mu must be held.
func (s *Store) install(old, updated *Config) error {
	ApplyDefaults(updated)
	if err := Validate(updated); err != nil {
		s.logger.Warn("Configuration update rejected", "error", err)
		return err
	}

	s.current.Store(updated)
	for _, fn := range s.listeners {
		fn(old, updated)
	}
	return nil
}
