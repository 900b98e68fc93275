package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Record methods are safe on a nil
// receiver so components can run without metrics in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// GraphQL metrics
	GraphQLOperationsTotal *prometheus.CounterVec
	GraphQLErrorsTotal     *prometheus.CounterVec

	// Document metrics
	MutationsTotal        *prometheus.CounterVec
	PermissionDeniedTotal *prometheus.CounterVec
	MirrorOperationsTotal *prometheus.CounterVec

	// Schema metrics
	SchemaRebuildsTotal   *prometheus.CounterVec
	SchemaRebuildDuration *prometheus.HistogramVec
	TenantsLoaded         prometheus.Gauge

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Billing metrics
	WebhookEventsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cristata_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cristata_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		GraphQLOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_graphql_operations_total",
				Help: "Total number of GraphQL requests per tenant",
			},
			[]string{"tenant", "operation"},
		),
		GraphQLErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_graphql_errors_total",
				Help: "Total number of GraphQL errors by code",
			},
			[]string{"tenant", "code"},
		),

		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_document_mutations_total",
				Help: "Total number of document mutations",
			},
			[]string{"tenant", "collection", "action", "outcome"},
		),
		PermissionDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_permission_denied_total",
				Help: "Total number of denied actions",
			},
			[]string{"tenant", "collection", "action"},
		),
		MirrorOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_crdt_mirror_operations_total",
				Help: "Total number of collaborative mirror calls by status",
			},
			[]string{"tenant", "status"},
		),

		SchemaRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_schema_rebuilds_total",
				Help: "Total number of tenant schema builds",
			},
			[]string{"tenant", "status"},
		),
		SchemaRebuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cristata_schema_rebuild_duration_seconds",
				Help:    "Tenant schema build duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"tenant"},
		),
		TenantsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cristata_tenants_loaded",
				Help: "Number of tenants with a live schema",
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type", "layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cristata_billing_webhook_events_total",
				Help: "Total number of billing webhook events",
			},
			[]string{"type", "outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.GraphQLOperationsTotal,
		m.GraphQLErrorsTotal,
		m.MutationsTotal,
		m.PermissionDeniedTotal,
		m.MirrorOperationsTotal,
		m.SchemaRebuildsTotal,
		m.SchemaRebuildDuration,
		m.TenantsLoaded,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.WebhookEventsTotal,
	)

	return m
}

// RecordGraphQL counts a GraphQL request and its error codes
func (m *Metrics) RecordGraphQL(tenant, operation string, codes []string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "anonymous"
	}
	m.GraphQLOperationsTotal.WithLabelValues(tenant, operation).Inc()
	for _, code := range codes {
		m.GraphQLErrorsTotal.WithLabelValues(tenant, code).Inc()
	}
}

// RecordMutation counts a document mutation
func (m *Metrics) RecordMutation(tenant, collection, action, outcome string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(tenant, collection, action, outcome).Inc()
}

// RecordPermissionDenied counts a denied action
func (m *Metrics) RecordPermissionDenied(tenant, collection, action string) {
	if m == nil {
		return
	}
	m.PermissionDeniedTotal.WithLabelValues(tenant, collection, action).Inc()
}

// RecordMirror counts a collaborative mirror call
func (m *Metrics) RecordMirror(tenant, status string) {
	if m == nil {
		return
	}
	m.MirrorOperationsTotal.WithLabelValues(tenant, status).Inc()
}

// RecordSchemaRebuild records a tenant schema build
func (m *Metrics) RecordSchemaRebuild(tenant string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SchemaRebuildsTotal.WithLabelValues(tenant, status).Inc()
	m.SchemaRebuildDuration.WithLabelValues(tenant).Observe(duration.Seconds())
}

// SetTenantsLoaded sets the number of tenants being served
func (m *Metrics) SetTenantsLoaded(n int) {
	if m == nil {
		return
	}
	m.TenantsLoaded.Set(float64(n))
}

// RecordCacheHit counts a hit in a cache layer
func (m *Metrics) RecordCacheHit(cacheType, layer string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cacheType, layer).Inc()
}

// RecordCacheMiss counts a miss through every cache layer
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
}

// RecordWebhookEvent counts a billing webhook event
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel uses the mux route template so tenant names do not explode
// label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
