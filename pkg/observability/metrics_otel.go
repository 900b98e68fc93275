package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds the OpenTelemetry instruments exported over OTLP. They
// mirror the request level Prometheus series so either backend can be used.
type OTelMetrics struct {
	graphqlRequests metric.Int64Counter
	graphqlDuration metric.Float64Histogram
	graphqlErrors   metric.Int64Counter
	schemaBuilds    metric.Float64Histogram
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/platinummonkey/cristata")

	m := &OTelMetrics{}
	var err error

	m.graphqlRequests, err = meter.Int64Counter(
		"graphql.server.requests",
		metric.WithDescription("Total number of GraphQL requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphql requests counter: %w", err)
	}

	m.graphqlDuration, err = meter.Float64Histogram(
		"graphql.server.duration",
		metric.WithDescription("GraphQL request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphql duration histogram: %w", err)
	}

	m.graphqlErrors, err = meter.Int64Counter(
		"graphql.server.errors",
		metric.WithDescription("Total number of GraphQL errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create graphql errors counter: %w", err)
	}

	m.schemaBuilds, err = meter.Float64Histogram(
		"cristata.schema.build.duration",
		metric.WithDescription("Tenant schema build duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema build histogram: %w", err)
	}

	return m, nil
}

// RecordGraphQLRequest records one executed GraphQL request
func (m *OTelMetrics) RecordGraphQLRequest(ctx context.Context, tenant, operation string, duration time.Duration, errorCount int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("cristata.tenant", tenant),
		attribute.String("graphql.operation.name", operation),
	)
	m.graphqlRequests.Add(ctx, 1, attrs)
	m.graphqlDuration.Record(ctx, duration.Seconds(), attrs)
	if errorCount > 0 {
		m.graphqlErrors.Add(ctx, int64(errorCount), attrs)
	}
}

// RecordSchemaBuild records a tenant schema build
func (m *OTelMetrics) RecordSchemaBuild(ctx context.Context, tenant string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.schemaBuilds.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("cristata.tenant", tenant),
		attribute.Bool("error", err != nil),
	))
}
