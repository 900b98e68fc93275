// Package server is the multi-tenant orchestrator.
//
// Cristata builds one executable GraphQL schema per tenant from the tenant's
// collection specs and serves it at /v3/{tenant}/graphql. Tenants come from
// a tenants.Source; Run applies the initial list, follows the source's
// change feed and resyncs on a cron schedule. A tenant is rebuilt only when
// the hash of its schema-shaping configuration changes, and the new
// snapshot replaces the old one in a single step, so in-flight requests
// finish on the schema they started with.
//
// Usage:
//
//	c := server.New(server.SettingsFromConfig(cfg), source, server.NewMongoBackend(client, rdb, metrics),
//	    server.WithProvisioner(tenants.NewMongoProvisioner(client)),
//	    server.WithMetrics(metrics),
//	)
//	go c.Run(ctx)
//	http.ListenAndServe(":3000", c.Handler())
package server
