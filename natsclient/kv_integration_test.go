//go:build integration

package natsclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore_Integration(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	bucket, err := tc.CreateKVBucket(ctx, "flowdiff_test")
	require.NoError(t, err)
	kv := tc.Client.NewKVStore(bucket)

	rev, err := kv.Create(ctx, "f1", []byte("one"))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "f1", []byte("two"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	next, err := kv.Update(ctx, "f1", []byte("two"), rev)
	require.NoError(t, err)

	_, err = kv.Update(ctx, "f1", []byte("three"), rev)
	assert.ErrorIs(t, err, ErrKVRevisionMismatch)

	entry, err := kv.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, next, entry.Revision)
	assert.Equal(t, []byte("two"), entry.Value)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, keys)

	require.NoError(t, kv.Delete(ctx, "f1"))
	_, err = kv.Get(ctx, "f1")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)
}

func TestClient_CreateKeyValueBucketTwice(t *testing.T) {
	tc := NewTestClient(t, WithKVBuckets("flows"))

	bucket, err := tc.CreateKVBucket(context.Background(), "flows")
	require.NoError(t, err)
	assert.Equal(t, "flows", bucket.Bucket())
	assert.True(t, tc.Client.IsHealthy())
}
