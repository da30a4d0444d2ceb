package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/patrickmn/go-cache"

	"mercator-hq/governor/pkg/config"
)

// refPattern matches ${secret:name} references.
var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver expands secret references using an ordered list of providers.
// The first provider holding a secret wins. Values are cached for the
// resolver's TTL.
type Resolver struct {
	providers []Provider
	cache     *cache.Cache
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger.With("component", "secrets")
		}
	}
}

// NewResolver creates a resolver. A ttl of zero disables caching.
func NewResolver(providers []Provider, ttl time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		providers: providers,
		logger:    slog.Default().With("component", "secrets"),
	}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig builds the resolver described by cfg: environment variables
// first, then the secrets directory when one is configured.
func FromConfig(cfg config.SecretsConfig, opts ...Option) (*Resolver, error) {
	providers := []Provider{NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, fp)
	}
	return NewResolver(providers, cfg.CacheTTL, opts...), nil
}

// Get returns the named secret.
func (r *Resolver) Get(ctx context.Context, name string) (string, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(name); ok {
			return v.(string), nil
		}
	}

	var errs []error
	for _, p := range r.providers {
		value, err := p.Get(ctx, name)
		if err == nil {
			if r.cache != nil {
				r.cache.SetDefault(name, value)
			}
			r.logger.Debug("Secret resolved", "name", name, "provider", p.Name())
			return value, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: %s (no providers configured)", ErrNotFound, name)
	}
	return "", fmt.Errorf("secret %q: %w", name, errors.Join(errs...))
}

// Expand replaces every ${secret:name} reference in s. Strings without
// references are returned unchanged.
func (r *Resolver) Expand(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		value, err := r.Get(ctx, name)
		if err != nil {
			errs = append(errs, err)
			return ref
		}
		return value
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}

// ResolveConfig returns a copy of cfg with the credential fields expanded.
// cfg itself is not modified.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) (*config.Config, error) {
	out := cfg.Clone()
	fields := []struct {
		path  string
		value *string
	}{
		{"upstream.api_key", &out.Upstream.APIKey},
		{"storage.redis.password", &out.Storage.Redis.Password},
	}
	for _, f := range fields {
		expanded, err := r.Expand(ctx, *f.value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.path, err)
		}
		*f.value = expanded
	}
	return out, nil
}

// Purge drops every cached value.
func (r *Resolver) Purge() {
	if r.cache != nil {
		r.cache.Flush()
	}
}
