package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	optional bool
}

// Checker runs named probes concurrently and aggregates their results.
type Checker struct {
	component string
	timeout   time.Duration

	mu     sync.RWMutex
	checks []check
}

// NewChecker creates a checker. A non-positive timeout disables the per-run deadline.
func NewChecker(component string, timeout time.Duration) *Checker {
	return &Checker{component: component, timeout: timeout}
}

// Add registers a required probe.
func (c *Checker) Add(name string, probe Probe) {
	c.add(check{name: name, probe: probe})
}

// AddOptional registers a probe whose failure only degrades the aggregate.
func (c *Checker) AddOptional(name string, probe Probe) {
	c.add(check{name: name, probe: probe, optional: true})
}

func (c *Checker) add(ch check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, ch)
}

// Run executes every probe and returns the aggregate status. Sub-statuses
// keep registration order.
func (c *Checker) Run(ctx context.Context) Status {
	c.mu.RLock()
	checks := make([]check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	subs := make([]Status, len(checks))
	var g errgroup.Group
	for i, ch := range checks {
		g.Go(func() error {
			start := time.Now()
			st := FromError(ch.name, ch.probe(ctx), ch.optional)
			st.Latency = time.Since(start)
			subs[i] = st
			return nil
		})
	}
	_ = g.Wait()

	return Aggregate(c.component, subs)
}
