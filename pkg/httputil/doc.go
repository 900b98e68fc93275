// Package httputil provides the HTTP plumbing shared by the API handlers:
// JSON responses, error mapping and request middleware.
//
// Errors classified with pkg/apierr map onto their HTTP status:
//
//	httputil.WriteError(w, apierr.NotFound("tenant paladin"))
//
// Middleware composes with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(10<<20),
//	)(router)
package httputil
