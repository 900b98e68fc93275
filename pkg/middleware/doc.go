// Package middleware resolves who is calling which tenant.
//
// TenantMiddleware reads the tenant from the route and rejects unknown
// ones. AuthMiddleware verifies an optional OIDC bearer ID token and
// attaches the caller profile, resolved from the tenant users and teams
// collections. RateLimitMiddleware limits requests per tenant and caller,
// in memory or shared through Redis.
//
//	api := router.PathPrefix("/v3/{tenant}").Subrouter()
//	api.Use(middleware.TenantMiddleware(cristata.Known))
//	api.Use(middleware.NewAuthMiddleware(verifier, profiles).Handler)
//	api.Use(middleware.RateLimitMiddleware(limiter))
package middleware
