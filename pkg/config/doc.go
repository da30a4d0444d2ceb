// Package config provides configuration management for Mercator Governor.
//
// Configuration is resolved once per process from layered sources and exposed
// as an immutable snapshot. Layers are applied in the following order (later
// overrides earlier):
//
//  1. Base configuration (Base)
//  2. Environment profile overrides (development, staging, production), deep
//     merged over the base with mergo
//  3. Values from an optional YAML file
//  4. GOVERNOR_* environment variable overrides
//  5. Defaults for anything still unset, then validation (fails fast)
//
// The active profile is selected with GOVERNOR_ENV. A .env file in the working
// directory is loaded first when present.
//
// # Runtime Updates
//
// A Store holds the active snapshot behind an atomic pointer. Readers call
// Store.Get and receive a snapshot that is never mutated. Updates go through
// Store.Reload or Store.Set, which build a new snapshot, validate it, and swap
// it in; a rejected update leaves the previous snapshot active.
//
//	store := config.NewStore(cfg)
//	if err := store.Set("queue.max_queue_size", "2000"); err != nil {
//	    return err
//	}
//	fmt.Println(store.Get().Queue.MaxQueueSize)
//
// A Watcher reloads the store when the configuration file changes on disk.
package config
