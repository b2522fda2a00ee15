// Package service exposes the diff engine as a flow editing service.
//
// DiffService owns the fetch, apply and write-back cycle: it loads a flow
// from a flowstore.Store, applies a diff batch against the current catalog
// and writes the result back with the version it read. Calls for one flow id
// are serialized in-process, and version conflicts caused by other writers
// are retried with a short backoff. Rejected batches are not errors; they
// come back as unsuccessful diff.Result values.
//
// Handler maps the service onto HTTP using Go 1.22 ServeMux patterns:
//
//	GET    /flows
//	POST   /flows
//	GET    /flows/{id}
//	PUT    /flows/{id}
//	DELETE /flows/{id}
//	POST   /flows/{id}/diff?dryRun=true
//	POST   /flows/{id}/validate
//	POST   /validate
//	GET    /catalog/components
//	GET    /health
//	GET    /metrics
//
// Classified errors map to status codes with StatusCode: not found is 404,
// conflicts are 409, other invalid input is 400 and everything else is 500.
package service
