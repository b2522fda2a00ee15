// Package natsclient manages the NATS connection used by the flow store and
// wraps JetStream key-value buckets with revision-based compare-and-swap.
//
//	client, err := natsclient.NewClient("nats://localhost:4222", natsclient.WithLogger(logger))
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "flowdiff_flows"})
//	kv := client.NewKVStore(bucket)
//
//	entry, err := kv.Get(ctx, "flow-1")
//	rev, err := kv.Update(ctx, "flow-1", data, entry.Revision) // ErrKVRevisionMismatch on conflict
//
// KVStore works against the narrow Bucket interface. MemoryBucket implements
// it in process with the same revision rules and backs the memory store.
//
// TestClient starts a real server with testcontainers for tests tagged
// integration.
package natsclient
