package cache

import (
	"fmt"

	"github.com/c360/flowdiff/errors"
)

// Cache is a generic, thread-safe key/value cache
type Cache[V any] interface {
	// Get returns the value and true if the key is present and live.
	Get(key string) (V, bool)

	// Set stores a value. Returns true if a new entry was created, false if updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the current number of entries, including expired ones not yet swept.
	Size() int

	// Stats returns the cache statistics. Never nil.
	Stats() *Statistics

	// Close stops background work.
	Close() error
}

// EvictCallback is called with the key and value of an entry leaving the cache
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(fmt.Errorf("key cannot be empty"), "cache", "validateKey", "key validation")
	}
	return nil
}

// NewNoop returns a cache that stores nothing. Every Get is a miss.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{stats: NewStatistics()}
}

type noopCache[V any] struct {
	stats *Statistics
}

func (c *noopCache[V]) Get(_ string) (V, bool) {
	c.stats.Miss()
	var zero V
	return zero, false
}

func (c *noopCache[V]) Set(key string, _ V) (bool, error) {
	return false, validateKey(key)
}

func (c *noopCache[V]) Delete(key string) (bool, error) {
	return false, validateKey(key)
}

func (c *noopCache[V]) Clear() error       { return nil }
func (c *noopCache[V]) Size() int          { return 0 }
func (c *noopCache[V]) Stats() *Statistics { return c.stats }
func (c *noopCache[V]) Close() error       { return nil }
