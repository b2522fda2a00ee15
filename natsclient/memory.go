package natsclient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// MemoryBucket is an in-process Bucket with JetStream KV revision semantics:
// revisions come from one sequence shared by all keys, Create fails on a
// live key, and Update fails unless the revision matches. It backs the
// in-memory flow store and tests.
type MemoryBucket struct {
	name    string
	mu      sync.RWMutex
	seq     uint64
	entries map[string]memoryEntry
}

type memoryEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
	op       jetstream.KeyValueOp
}

func (e memoryEntry) Bucket() string                  { return e.bucket }
func (e memoryEntry) Key() string                     { return e.key }
func (e memoryEntry) Value() []byte                   { return append([]byte(nil), e.value...) }
func (e memoryEntry) Revision() uint64                { return e.revision }
func (e memoryEntry) Created() time.Time              { return e.created }
func (e memoryEntry) Delta() uint64                   { return 0 }
func (e memoryEntry) Operation() jetstream.KeyValueOp { return e.op }

// NewMemoryBucket returns an empty bucket
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{name: name, entries: make(map[string]memoryEntry)}
}

func (b *MemoryBucket) live(key string) (memoryEntry, bool) {
	e, ok := b.entries[key]
	if !ok || e.op != jetstream.KeyValuePut {
		return memoryEntry{}, false
	}
	return e, true
}

func (b *MemoryBucket) write(key string, value []byte, op jetstream.KeyValueOp) uint64 {
	b.seq++
	b.entries[key] = memoryEntry{
		bucket:   b.name,
		key:      key,
		value:    append([]byte(nil), value...),
		revision: b.seq,
		created:  time.Now(),
		op:       op,
	}
	return b.seq
}

// Get returns the live entry for key
func (b *MemoryBucket) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.live(key)
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

// Create writes key when it has no live value
func (b *MemoryBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.live(key); ok {
		return 0, jetstream.ErrKeyExists
	}
	return b.write(key, value, jetstream.KeyValuePut), nil
}

// Update writes key when its latest revision equals revision
func (b *MemoryBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok || e.revision != revision {
		return 0, fmt.Errorf("nats: wrong last sequence: %d", e.revision)
	}
	return b.write(key, value, jetstream.KeyValuePut), nil
}

// Delete places a delete marker on key
func (b *MemoryBucket) Delete(ctx context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.write(key, nil, jetstream.KeyValueDelete)
	return nil
}

// Keys returns the live keys in sorted order
func (b *MemoryBucket) Keys(ctx context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		if _, ok := b.live(key); ok {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Bucket = (*MemoryBucket)(nil)
