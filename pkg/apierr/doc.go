// Package apierr defines the error taxonomy shared by the permission layer, the
// document helpers and the GraphQL boundary.
//
// Callers classify failures with errors.Is against the package sentinels:
//
//	if errors.Is(err, apierr.ErrNotFound) { ... }
//
// Not-found and no-access are intentionally the same kind so that callers
// cannot probe for documents they are not allowed to see.
package apierr
