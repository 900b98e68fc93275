// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health probes and graceful shutdown.
//
// Loggers travel through the request context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).WithField("collection", "Article").Warn("failed to record activity")
//
// FromContext adds the request id, user id, tenant and trace ids found in
// the context.
//
// Metrics record methods are nil safe:
//
//	var m *observability.Metrics
//	m.RecordMutation("paladin", "Article", "modify", "success") // no-op
//
// Health probes are served at /healthz (liveness) and /readyz (readiness).
// MongoDB is required for readiness, Redis only degrades it.
package observability
