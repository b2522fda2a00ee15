package flowstore

import "github.com/c360/flowdiff/metric"

// Option configures a store
type Option func(*options)

type options struct {
	registry *metric.MetricsRegistry
	backend  string
	prefix   string
}

// WithMetrics registers store metrics on registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithKeyPrefix sets the key prefix used by the Redis store
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

func withBackend(name string) Option {
	return func(o *options) { o.backend = name }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
