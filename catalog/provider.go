package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/metric"
	"github.com/c360/flowdiff/pkg/cache"
)

// Source loads a complete catalog snapshot
type Source interface {
	Load(ctx context.Context) (Map, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) (Map, error)

// Load implements Source
func (f SourceFunc) Load(ctx context.Context) (Map, error) {
	return f(ctx)
}

// FileSource loads the catalog from a YAML or JSON file on every reload
type FileSource struct {
	Path string
}

// Load implements Source
func (s FileSource) Load(_ context.Context) (Map, error) {
	return LoadFile(s.Path)
}

// StaticSource always returns the same catalog
func StaticSource(m Map) Source {
	return SourceFunc(func(context.Context) (Map, error) { return m, nil })
}

const snapshotKey = "catalog"

// Provider hands out catalog snapshots. Snapshots are cached for a TTL and
// concurrent reloads are collapsed into one Source.Load call. Snapshots are
// shared and must be treated as read-only.
type Provider struct {
	source Source
	cache  cache.Cache[Map]
	group  singleflight.Group
	logger *slog.Logger
}

// ProviderOption configures a Provider
type ProviderOption func(*providerOptions)

type providerOptions struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
}

// WithLogger sets the provider logger
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics exports snapshot cache metrics under the "catalog" component
func WithMetrics(registry *metric.MetricsRegistry) ProviderOption {
	return func(o *providerOptions) {
		o.registry = registry
	}
}

// NewProvider creates a provider. A ttl <= 0 disables caching so every call reloads.
func NewProvider(ctx context.Context, source Source, ttl time.Duration, opts ...ProviderOption) (*Provider, error) {
	if source == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("source is nil"), "catalog", "NewProvider", "source validation")
	}

	o := &providerOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	var c cache.Cache[Map]
	if ttl > 0 {
		var err error
		c, err = cache.NewTTL[Map](ctx, ttl, ttl, cache.WithMetrics[Map](o.registry, "catalog"))
		if err != nil {
			return nil, errors.Wrap(err, "catalog", "NewProvider", "create snapshot cache")
		}
	} else {
		c = cache.NewNoop[Map]()
	}

	return &Provider{source: source, cache: c, logger: o.logger}, nil
}

// Catalog returns the current snapshot, loading it if the cached one expired
func (p *Provider) Catalog(ctx context.Context) (Map, error) {
	if m, ok := p.cache.Get(snapshotKey); ok {
		return m, nil
	}

	v, err, shared := p.group.Do(snapshotKey, func() (any, error) {
		if m, ok := p.cache.Get(snapshotKey); ok {
			return m, nil
		}

		start := time.Now()
		m, err := p.source.Load(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := p.cache.Set(snapshotKey, m); err != nil {
			return nil, err
		}
		p.logger.Debug("catalog snapshot loaded",
			"components", len(m),
			"duration", time.Since(start))
		return m, nil
	})
	if err != nil {
		p.logger.Warn("catalog load failed", "error", err)
		if errors.IsInvalid(err) {
			return nil, err
		}
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrCatalogUnavailable, err),
			"catalog", "Catalog", "load snapshot")
	}
	if shared {
		p.logger.Debug("catalog load shared with concurrent caller")
	}
	return v.(Map), nil
}

// Invalidate drops the cached snapshot so the next call reloads
func (p *Provider) Invalidate() {
	_, _ = p.cache.Delete(snapshotKey)
}

// Stats returns the snapshot cache statistics
func (p *Provider) Stats() cache.StatsSummary {
	return p.cache.Stats().Summary()
}

// Close stops the snapshot cache
func (p *Provider) Close() error {
	return p.cache.Close()
}
