// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/cristata/pkg/contextkeys"
//	ctx = contextkeys.WithProfile(ctx, profile)
//	profile, _ := ctx.Value(contextkeys.ProfileKey).(*rbac.Profile)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// ProfileKey contains *rbac.Profile
	// Set by: AuthMiddleware.Handler (pkg/middleware/auth.go)
	// Required by: GraphQL resolvers of protected operations
	// Type: *rbac.Profile
	ProfileKey Key = "profile"

	// TenantKey contains the tenant name from the request path
	// Set by: middleware.TenantMiddleware (pkg/middleware/tenant.go)
	// Used by: Authentication, resolvers, logging
	// Type: string
	TenantKey Key = "tenant"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail, distributed tracing
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: AuthMiddleware.Handler once the profile is resolved
	// Used by: Logger, audit trail, user-scoped operations
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability.WithLogger
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// Helper functions for type-safe context operations

// WithProfile adds the authenticated profile to the context
func WithProfile(ctx context.Context, profile interface{}) context.Context {
	return context.WithValue(ctx, ProfileKey, profile)
}

// WithTenant adds the tenant name to the context
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetTenant retrieves the tenant name from context
func GetTenant(ctx context.Context) string {
	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		return tenant
	}
	return ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
