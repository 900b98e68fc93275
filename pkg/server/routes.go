package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/cristata/pkg/httputil"
	"github.com/platinummonkey/cristata/pkg/middleware"
	"github.com/platinummonkey/cristata/pkg/observability"
)

// Handler returns the public HTTP surface:
//
//	GET|POST /v3/{tenant}/graphql
//	GET      /v3/{tenant}/typedefs
//	GET      /v3/{tenant}/playground  (when enabled)
//	POST     /stripe/webhook          (when billing is configured)
func (c *Cristata) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(observability.HTTPMetricsMiddleware(c.metrics))

	api := r.PathPrefix("/v3/{" + middleware.TenantVar + "}").Subrouter()
	api.Use(middleware.TenantMiddleware(c.Known), c.auth.Handler)
	if c.limiter != nil {
		api.Use(middleware.RateLimitMiddleware(c.limiter))
	}
	api.HandleFunc("/graphql", c.handleGraphQL).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/typedefs", c.handleTypeDefs).Methods(http.MethodGet)
	if c.settings.Playground {
		api.HandleFunc("/playground", c.handlePlayground).Methods(http.MethodGet)
	}

	if c.billing != nil {
		r.Handle("/stripe/webhook", c.billing).Methods(http.MethodPost)
	}

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
	}
	if len(c.settings.CORSOrigins) > 0 {
		chain = append(chain, httputil.CORSMiddleware(c.settings.CORSOrigins))
	}
	if c.settings.MaxBodyBytes > 0 {
		chain = append(chain, httputil.MaxBytesMiddleware(c.settings.MaxBodyBytes))
	}
	return otelhttp.NewHandler(httputil.Chain(chain...)(r), "cristata")
}

// HealthHandler serves liveness, readiness and metrics for the health port.
// Readiness is degraded while no tenant schema is loaded.
func (c *Cristata) HealthHandler(checker *observability.HealthChecker, registry *prometheus.Registry) http.Handler {
	checker.Optional("tenants", func(context.Context) error {
		if c.registry.Len() == 0 {
			return errors.New("no tenant schema loaded")
		}
		return nil
	})

	r := mux.NewRouter()
	observability.RegisterHealthRoutes(r, checker)
	if registry != nil {
		observability.RegisterMetricsEndpoint(r, registry)
	}
	return r
}
