package natsclient

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jetstreamConfig(bucket string) jetstream.KeyValueConfig {
	return jetstream.KeyValueConfig{Bucket: bucket}
}

func TestKVStore_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	kv := NewKVStore(NewMemoryBucket("flows"), nil)

	rev, err := kv.Create(ctx, "f1", []byte(`{"v":1}`))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "f1", []byte(`{"v":2}`))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	entry, err := kv.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":1}`), entry.Value)
	assert.Equal(t, rev, entry.Revision)

	next, err := kv.Update(ctx, "f1", []byte(`{"v":2}`), rev)
	require.NoError(t, err)
	assert.Greater(t, next, rev)

	_, err = kv.Update(ctx, "f1", []byte(`{"v":3}`), rev)
	assert.ErrorIs(t, err, ErrKVRevisionMismatch)
	assert.True(t, IsKVConflictError(err))
}

func TestKVStore_DeleteAndKeys(t *testing.T) {
	ctx := context.Background()
	kv := NewKVStore(NewMemoryBucket("flows"), nil)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = kv.Create(ctx, "b", []byte("2"))
	require.NoError(t, err)
	_, err = kv.Create(ctx, "a", []byte("1"))
	require.NoError(t, err)

	keys, err = kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, kv.Delete(ctx, "a"))
	_, err = kv.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	keys, err = kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	// a deleted key can be created again
	_, err = kv.Create(ctx, "a", []byte("again"))
	assert.NoError(t, err)
}

func TestKVStore_MaxValueSize(t *testing.T) {
	kv := NewKVStore(NewMemoryBucket("flows"), nil, func(o *KVOptions) { o.MaxValueSize = 4 })

	_, err := kv.Create(context.Background(), "k", []byte("too large"))
	assert.ErrorIs(t, err, ErrKVValueTooLarge)
}

func TestKVStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	kv := NewKVStore(NewMemoryBucket("flows"), nil)
	_, err := kv.Get(ctx, "k")
	require.Error(t, err)
	assert.False(t, IsKVNotFoundError(err))
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestErrorDetection(t *testing.T) {
	assert.True(t, IsKVNotFoundError(jetstream.ErrKeyNotFound))
	assert.True(t, IsKVNotFoundError(stderrors.New("nats: key not found")))
	assert.False(t, IsKVNotFoundError(nil))

	assert.True(t, IsKVConflictError(stderrors.New("nats: wrong last sequence: 4")))
	assert.True(t, IsKVConflictError(ErrKVKeyExists))
	assert.False(t, IsKVConflictError(stderrors.New("timeout")))
}
