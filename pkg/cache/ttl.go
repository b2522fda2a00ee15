package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/flowdiff/errors"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *ttlEntry[V]) expiredAt(now time.Time) bool {
	return now.After(e.expiresAt)
}

// ttlCache evicts entries once their TTL has passed. Expired entries are
// dropped lazily on Get and swept periodically in the background.
type ttlCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]*ttlEntry[V]
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
	now     func() time.Time

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a TTL cache. The background sweep runs every cleanupInterval
// until Close is called or ctx is done.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, options ...Option[V]) (Cache[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("ttl must be positive, got %s", ttl), "cache", "NewTTL", "ttl validation")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &ttlCache[V]{
		ttl:      ttl,
		items:    make(map[string]*ttlEntry[V]),
		stats:    NewStatistics(),
		metrics:  metrics,
		evictFn:  opts.evictCallback,
		now:      opts.clock,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.cleanup(ctx, cleanupInterval)

	return c, nil
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	now := c.now()

	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if exists && entry.expiredAt(now) {
		c.mu.Lock()
		if current, still := c.items[key]; still && current.expiredAt(now) {
			delete(c.items, key)
			c.recordEviction(len(c.items))
			if c.evictFn != nil {
				defer c.evictFn(key, current.value)
			}
		}
		c.mu.Unlock()
		exists = false
	}

	if !exists {
		c.stats.Miss()
		c.metrics.recordMiss()
		var zero V
		return zero, false
	}

	c.stats.Hit()
	c.metrics.recordHit()
	return entry.value, true
}

func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = &ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	c.metrics.updateSize(size)

	return !exists, nil
}

func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		if c.evictFn != nil {
			c.evictFn(key, entry.value)
		}
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		c.metrics.updateSize(size)
	}

	return exists, nil
}

func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]*ttlEntry[V])
	c.mu.Unlock()

	if c.evictFn != nil {
		for key, entry := range old {
			c.evictFn(key, entry.value)
		}
	}
	c.stats.UpdateSize(0)
	c.metrics.updateSize(0)
	return nil
}

func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

func (c *ttlCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return errors.WrapTransient(fmt.Errorf("cleanup goroutine did not stop"), "cache", "Close", "shutdown")
	}
}

func (c *ttlCache[V]) cleanup(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *ttlCache[V]) removeExpired() {
	now := c.now()
	expired := make(map[string]V)

	c.mu.Lock()
	for key, entry := range c.items {
		if entry.expiredAt(now) {
			expired[key] = entry.value
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	for key, value := range expired {
		c.recordEviction(size)
		if c.evictFn != nil {
			c.evictFn(key, value)
		}
	}
}

func (c *ttlCache[V]) recordEviction(size int) {
	c.stats.Eviction()
	c.stats.UpdateSize(int64(size))
	c.metrics.recordEviction()
	c.metrics.updateSize(size)
}
