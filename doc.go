// Package flowdiff stores flow documents (graphs of typed component nodes
// joined by port edges) and edits them with batches of diff operations.
//
// # Layout
//
// The module is organised bottom-up:
//
//   - flow: the document model (nodes, edges, ports, parameters)
//   - handle: encoding and parsing of edge source/target handle strings
//   - catalog: component type definitions loaded from YAML and cached
//   - validation: structural and catalog-aware checks on a whole document
//   - diff: the operation vocabulary and the engine that applies a batch
//     atomically, with pre-validation, optional post-validation and rollback
//   - flowstore: versioned persistence over NATS KV, Redis or memory
//   - service: the DiffService and its HTTP surface
//   - cmd/flowdiffd: the daemon
//
// Supporting packages follow the usual shape: errors for classified errors,
// metric for the Prometheus registry, config for layered configuration,
// health for dependency probes, natsclient for the NATS connection, and
// pkg/cache, pkg/retry and pkg/tlsutil for shared plumbing.
//
// # Applying a diff
//
// A diff is a list of operations such as addNode, removeNode, addEdge,
// updateNode and updateMetadata. The engine validates every operation against
// a shadow copy of the document before touching it, applies them in order,
// and when requested validates the result, restoring the original document
// if that validation fails:
//
//	result, err := svc.ApplyDiff(ctx, flowID, ops, diff.Options{ValidateAfter: true}, false)
//	if err != nil {
//		return err
//	}
//	if !result.Success {
//		// result.Errors explains which operation failed and why
//	}
//
// Concurrent diffs against the same flow are serialized in process and
// guarded across processes by the store's optimistic version check.
package flowdiff
