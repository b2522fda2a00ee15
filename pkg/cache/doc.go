// Package cache provides a generic, thread-safe TTL cache.
//
// The catalog provider uses it to hold parsed catalog snapshots between
// reloads. Statistics are always collected; Prometheus export is opt-in:
//
//	c, err := cache.NewTTL[*catalog.Map](ctx, time.Minute, 0,
//	    cache.WithMetrics[*catalog.Map](registry, "catalog"))
package cache
