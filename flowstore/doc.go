// Package flowstore persists flow documents for the diff service.
//
// Every backend implements Store with the same contract: Create stores a
// flow at version 1, Update is optimistic and only succeeds when the
// caller's document carries the current version, and List returns flows
// ordered by id. Failures are classified with the errors package, so
// callers can test them with errors.IsNotFound, errors.IsConflict and
// errors.IsTransient.
//
// Three backends are available:
//
//	NewMemoryStore  process-local, for tests and single-node use
//	NewNATSStore    a JetStream key-value bucket
//	NewRedisStore   Redis keys plus an index set, using WATCH for updates
//
// The memory and NATS stores share one implementation (KVStore) over the
// natsclient bucket abstraction.
package flowstore
