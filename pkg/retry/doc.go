// Package retry provides exponential backoff for operations that can fail
// transiently.
//
// The diff service uses it to re-run fetch, apply and write-back when the
// flow store reports a version conflict:
//
//	cfg := retry.Conflict(5)
//	cfg.Retryable = errors.IsConflict
//	result, err := retry.DoWithResult(ctx, cfg, func() (*diff.Result, error) {
//	    return s.applyOnce(ctx, id, ops)
//	})
//
// Errors wrapped with NonRetryable stop the loop regardless of Retryable.
package retry
