// Package errors provides standardized error handling for the flow diff service.
//
// # Overview
//
// Every error that crosses a package boundary is classified as Transient
// (retry may help), Invalid (the caller sent something wrong), or Fatal (stop).
// The HTTP layer maps Invalid to 4xx responses and everything else to 5xx, and
// the flow store retries Transient failures.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Use the classification-aware wrappers:
//
//	errors.WrapTransient(err, "flowstore", "Get", "get from KV")
//	errors.WrapInvalid(err, "diff", "Apply", "pre-validation")
//	errors.WrapFatal(err, "config", "Load", "parse file")
//
// Sentinels such as ErrFlowNotFound and ErrVersionConflict survive wrapping,
// so errors.Is keeps working through ClassifiedError.
package errors
