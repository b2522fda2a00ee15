package cache

import (
	"sync/atomic"
)

// Statistics tracks cache activity. Always collected, independent of Prometheus.
type Statistics struct {
	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	evictions   atomic.Int64
	currentSize atomic.Int64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Hit records a cache hit
func (s *Statistics) Hit() { s.hits.Add(1) }

// Miss records a cache miss
func (s *Statistics) Miss() { s.misses.Add(1) }

// Set records a set
func (s *Statistics) Set() { s.sets.Add(1) }

// Delete records an explicit delete
func (s *Statistics) Delete() { s.deletes.Add(1) }

// Eviction records an expiry
func (s *Statistics) Eviction() { s.evictions.Add(1) }

// UpdateSize records the current entry count
func (s *Statistics) UpdateSize(size int64) { s.currentSize.Store(size) }

// Hits returns the total number of hits
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the total number of misses
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Evictions returns the total number of expiries
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// HitRatio returns hits / (hits + misses), or 0 before any lookup
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// StatsSummary is a point-in-time snapshot of Statistics
type StatsSummary struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Sets        int64   `json:"sets"`
	Deletes     int64   `json:"deletes"`
	Evictions   int64   `json:"evictions"`
	CurrentSize int64   `json:"current_size"`
	HitRatio    float64 `json:"hit_ratio"`
}

// Summary returns a snapshot of all statistics
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:        s.Hits(),
		Misses:      s.Misses(),
		Sets:        s.sets.Load(),
		Deletes:     s.deletes.Load(),
		Evictions:   s.Evictions(),
		CurrentSize: s.currentSize.Load(),
		HitRatio:    s.HitRatio(),
	}
}
