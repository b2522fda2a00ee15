package flowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
)

// Store persists flow documents with optimistic concurrency. Create sets
// Version to 1; Update succeeds only when doc.Version matches the stored
// version and then increments it. Both update doc in place.
type Store interface {
	Create(ctx context.Context, doc *flow.Document) error
	Get(ctx context.Context, id string) (*flow.Document, error)
	Update(ctx context.Context, doc *flow.Document) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*flow.Document, error)
}

// Backend names
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
	BackendRedis  = "redis"
)

func checkDocument(doc *flow.Document, method string) error {
	if doc == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: flow cannot be nil", errors.ErrMalformedFlow),
			"flowstore", method, "check flow")
	}
	if doc.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: flow ID cannot be empty", errors.ErrMalformedFlow),
			"flowstore", method, "check flow")
	}
	if err := doc.Validate(); err != nil {
		return errors.WrapInvalid(err, "flowstore", method, "check flow")
	}
	return nil
}

func checkID(id, method string) error {
	if id == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: flow ID cannot be empty", errors.ErrMalformedFlow),
			"flowstore", method, "check flow ID")
	}
	return nil
}

func notFound(id, method string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrFlowNotFound, id), "flowstore", method, "find flow")
}

func exists(id string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrFlowExists, id), "flowstore", "Create", "create flow")
}

func conflict(id string, expected, actual int64) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: flow %s is at version %d, expected %d", errors.ErrVersionConflict, id, actual, expected),
		"flowstore", "Update", "conflict: flow was modified by another writer")
}

func raced(id string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: flow %s changed during update", errors.ErrVersionConflict, id),
		"flowstore", "Update", "conflict: flow was modified by another writer")
}

func stamp(doc *flow.Document, version int64) {
	now := time.Now().UTC()
	doc.Version = version
	doc.UpdatedAt = &now
}

func encode(doc *flow.Document, method string) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.WrapFatal(err, "flowstore", method, "marshal flow")
	}
	return data, nil
}

func decode(data []byte, method string) (*flow.Document, error) {
	var doc flow.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapFatal(err, "flowstore", method, "unmarshal flow")
	}
	return &doc, nil
}

var (
	_ Store = (*KVStore)(nil)
	_ Store = (*RedisStore)(nil)
)
