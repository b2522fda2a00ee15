package flowstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
)

// DefaultRedisPrefix namespaces flow keys in Redis
const DefaultRedisPrefix = "flowdiff:"

// RedisOptions configures the Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "flowdiff:"
}

// RedisStore keeps each flow as a JSON string key and tracks ids in a set.
// Updates run under WATCH so a concurrent write aborts the transaction.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	metrics *storeMetrics
}

// NewRedisStore connects to Redis and verifies it answers PING
func NewRedisStore(ctx context.Context, ro RedisOptions, opts ...Option) (*RedisStore, error) {
	if ro.Addr == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: redis address is required", errors.ErrMissingConfig),
			"flowstore", "NewRedisStore", "check options")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     ro.Addr,
		Password: ro.Password,
		DB:       ro.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
			"flowstore", "NewRedisStore", "ping redis")
	}

	o := applyOptions(opts)
	prefix := ro.Prefix
	if o.prefix != "" {
		prefix = o.prefix
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	metrics, err := newStoreMetrics(o.registry, BackendRedis)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client, prefix: prefix, metrics: metrics}, nil
}

// Close releases the connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks that the server is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.unavailable(err, "Ping", "ping redis")
	}
	return nil
}

func (s *RedisStore) flowKey(id string) string {
	return fmt.Sprintf("%sflow:%s", s.prefix, id)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "flows"
}

// Create stores a new flow at version 1
func (s *RedisStore) Create(ctx context.Context, doc *flow.Document) (err error) {
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

	created, err := s.client.SetNX(ctx, s.flowKey(doc.ID), data, 0).Result()
	if err != nil {
		return s.unavailable(err, "Create", "set flow key")
	}
	if !created {
		return exists(doc.ID)
	}
	if err := s.client.SAdd(ctx, s.indexKey(), doc.ID).Err(); err != nil {
		return s.unavailable(err, "Create", "index flow")
	}

	doc.Version, doc.UpdatedAt = stored.Version, stored.UpdatedAt
	return nil
}

// Get returns the stored flow
func (s *RedisStore) Get(ctx context.Context, id string) (_ *flow.Document, err error) {
	defer func() { s.metrics.record("get", err) }()

	if err := checkID(id, "Get"); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.flowKey(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, notFound(id, "Get")
		}
		return nil, s.unavailable(err, "Get", "get flow key")
	}
	return decode(data, "Get")
}

// Update replaces the stored flow when doc.Version is current
func (s *RedisStore) Update(ctx context.Context, doc *flow.Document) (err error) {
	defer func() { s.metrics.record("update", err) }()

	if err := checkDocument(doc, "Update"); err != nil {
		return err
	}

	key := s.flowKey(doc.ID)
	var stored *flow.Document

	txErr := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if stderrors.Is(err, redis.Nil) {
				return notFound(doc.ID, "Update")
			}
			return s.unavailable(err, "Update", "get flow key")
		}
		current, err := decode(data, "Update")
		if err != nil {
			return err
		}
		if current.Version != doc.Version {
			return conflict(doc.ID, doc.Version, current.Version)
		}

		stored = doc.Clone()
		stamp(stored, current.Version+1)
		next, err := encode(stored, "Update")
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case txErr == nil:
	case stderrors.Is(txErr, redis.TxFailedErr):
		return raced(doc.ID)
	case errors.IsInvalid(txErr) || errors.IsFatal(txErr) || errors.IsTransient(txErr):
		return txErr
	default:
		return s.unavailable(txErr, "Update", "commit flow")
	}

	doc.Version, doc.UpdatedAt = stored.Version, stored.UpdatedAt
	return nil
}

// Delete removes the flow
func (s *RedisStore) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.metrics.record("delete", err) }()

	if err := checkID(id, "Delete"); err != nil {
		return err
	}

	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.flowKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return s.unavailable(err, "Delete", "delete flow key")
	}
	if del.Val() == 0 {
		return notFound(id, "Delete")
	}
	return nil
}

// List returns every stored flow ordered by id
func (s *RedisStore) List(ctx context.Context) (_ []*flow.Document, err error) {
	defer func() { s.metrics.record("list", err) }()

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, s.unavailable(err, "List", "read flow index")
	}
	if len(ids) == 0 {
		return []*flow.Document{}, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.flowKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.unavailable(err, "List", "fetch flows")
	}

	docs := make([]*flow.Document, 0, len(values))
	for _, v := range values {
		// nil when deleted since the index was read
		str, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := decode([]byte(str), "List")
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *RedisStore) unavailable(err error, method, action string) error {
	return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err), "flowstore", method, action)
}
