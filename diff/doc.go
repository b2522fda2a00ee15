// Package diff applies batches of edit operations to flow documents.
//
// A batch is a list of Operation values, decoded from the wire with
// DecodeOperations. Engine.Apply runs the batch against a copy of the input
// and returns a Result describing what happened:
//
//	ops, err := diff.DecodeOperations(body)
//	result := engine.Apply(doc, ops, cat, diff.DefaultOptions())
//	if err := result.Err(); err != nil {
//		return err
//	}
//	save(result.Flow)
//
// Processing is transactional. Structural problems and failed
// pre-validation reject the batch before anything is applied. By default a
// failing operation, or errors from post-validation, roll the batch back and
// Result.Flow is the unchanged input. With Options.ContinueOnError failed
// operations are recorded and skipped instead.
//
// Simplified operations are resolved against the catalog: addNode with a
// nodeId and componentType builds the node from the component's defaults,
// and addEdge with source and target derives both handles from existing
// edges or the component schema. updateNode rebuilds the node's parameters
// from its current schema, so the result always matches the catalog.
package diff
