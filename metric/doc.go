// Package metric provides the Prometheus metrics registry shared by the
// service components.
//
// Components never register with the global Prometheus registry. Each one
// receives a *MetricsRegistry and registers its collectors under its own
// component name, which lets tests build isolated registries:
//
//	registry := metric.NewMetricsRegistry()
//	engine := diff.NewEngine(diff.WithMetrics(registry))
//	http.Handle("/metrics", metric.Handler(registry))
//
// Components treat a nil registry as "metrics disabled".
package metric
