package cache

import (
	"time"

	"github.com/c360/flowdiff/metric"
)

// Option configures a cache
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
	evictCallback EvictCallback[V]
	clock         func() time.Time
}

// WithMetrics exports the cache statistics as Prometheus metrics labelled
// with the given component name. Ignored if registry is nil or prefix empty.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a callback invoked when entries expire or are deleted
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithClock overrides the time source, for tests
func WithClock[V any](now func() time.Time) Option[V] {
	return func(opts *cacheOptions[V]) {
		if now != nil {
			opts.clock = now
		}
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{clock: time.Now}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
