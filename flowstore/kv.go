package flowstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/natsclient"
)

// DefaultBucket is the KV bucket holding flow documents
const DefaultBucket = "flowdiff_flows"

// KVStore keeps flows in a key-value bucket, one key per flow id. Writes
// are compare-and-swap on the bucket revision, so concurrent writers that
// read the same version cannot both succeed.
type KVStore struct {
	kv      *natsclient.KVStore
	backend string
	metrics *storeMetrics
}

// NewKVStore returns a store over kv
func NewKVStore(kv *natsclient.KVStore, opts ...Option) (*KVStore, error) {
	if kv == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: kv store cannot be nil", errors.ErrInvalidConfig),
			"flowstore", "NewKVStore", "check kv store")
	}
	o := applyOptions(opts)
	if o.backend == "" {
		o.backend = BackendNATS
	}
	metrics, err := newStoreMetrics(o.registry, o.backend)
	if err != nil {
		return nil, err
	}
	return &KVStore{kv: kv, backend: o.backend, metrics: metrics}, nil
}

// NewNATSStore opens (or creates) the flow bucket on client
func NewNATSStore(ctx context.Context, client *natsclient.Client, bucket string, opts ...Option) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: nats client cannot be nil", errors.ErrInvalidConfig),
			"flowstore", "NewNATSStore", "check client")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Flow documents edited through diffs",
		History:     10,
	})
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
			"flowstore", "NewNATSStore", "create KV bucket")
	}
	return NewKVStore(client.NewKVStore(kv), opts...)
}

// NewMemoryStore returns a process-local store with the same semantics as
// the NATS store
func NewMemoryStore(opts ...Option) (*KVStore, error) {
	opts = append([]Option{withBackend(BackendMemory)}, opts...)
	return NewKVStore(natsclient.NewKVStore(natsclient.NewMemoryBucket(DefaultBucket), nil), opts...)
}

// Create stores a new flow at version 1
func (s *KVStore) Create(ctx context.Context, doc *flow.Document) (err error) {
	defer func() { s.metrics.record("create", err) }()

	if err := checkDocument(doc, "Create"); err != nil {
		return err
	}

	stored := doc.Clone()
	stamp(stored, 1)
	data, err := encode(stored, "Create")
	if err != nil {
		return err
	}

	if _, err := s.kv.Create(ctx, doc.ID, data); err != nil {
		if natsclient.IsKVConflictError(err) {
			return exists(doc.ID)
		}
		return s.unavailable(err, "Create", "create in KV")
	}

	doc.Version, doc.UpdatedAt = stored.Version, stored.UpdatedAt
	return nil
}

// Get returns the stored flow
func (s *KVStore) Get(ctx context.Context, id string) (_ *flow.Document, err error) {
	defer func() { s.metrics.record("get", err) }()

	if err := checkID(id, "Get"); err != nil {
		return nil, err
	}
	doc, _, err := s.get(ctx, id, "Get")
	return doc, err
}

func (s *KVStore) get(ctx context.Context, id, method string) (*flow.Document, uint64, error) {
	entry, err := s.kv.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return nil, 0, notFound(id, method)
		}
		return nil, 0, s.unavailable(err, method, "get from KV")
	}
	doc, err := decode(entry.Value, method)
	if err != nil {
		return nil, 0, err
	}
	return doc, entry.Revision, nil
}

// Update replaces the stored flow when doc.Version is current
func (s *KVStore) Update(ctx context.Context, doc *flow.Document) (err error) {
	defer func() { s.metrics.record("update", err) }()

	if err := checkDocument(doc, "Update"); err != nil {
		return err
	}

	current, revision, err := s.get(ctx, doc.ID, "Update")
	if err != nil {
		return err
	}
	if current.Version != doc.Version {
		return conflict(doc.ID, doc.Version, current.Version)
	}

	stored := doc.Clone()
	stamp(stored, current.Version+1)
	data, err := encode(stored, "Update")
	if err != nil {
		return err
	}

	if _, err := s.kv.Update(ctx, doc.ID, data, revision); err != nil {
		if natsclient.IsKVConflictError(err) {
			return raced(doc.ID)
		}
		return s.unavailable(err, "Update", "update in KV")
	}

	doc.Version, doc.UpdatedAt = stored.Version, stored.UpdatedAt
	return nil
}

// Delete removes the flow
func (s *KVStore) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.metrics.record("delete", err) }()

	if err := checkID(id, "Delete"); err != nil {
		return err
	}
	// KV deletes never fail for missing keys
	if _, _, err := s.get(ctx, id, "Delete"); err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, id); err != nil {
		return s.unavailable(err, "Delete", "delete from KV")
	}
	return nil
}

// List returns every stored flow ordered by id
func (s *KVStore) List(ctx context.Context) (_ []*flow.Document, err error) {
	defer func() { s.metrics.record("list", err) }()

	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, s.unavailable(err, "List", "list KV keys")
	}
	sort.Strings(keys)

	docs := make([]*flow.Document, 0, len(keys))
	for _, key := range keys {
		doc, _, err := s.get(ctx, key, "List")
		if errors.IsNotFound(err) {
			// deleted since listed
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *KVStore) unavailable(err error, method, action string) error {
	return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "flowstore", method, action)
}
