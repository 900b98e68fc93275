package tenants

import "context"

// Source provides tenant configurations
type Source interface {
	// List returns every tenant.
	List(ctx context.Context) ([]Tenant, error)
	// Watch calls onEvent for each change until ctx is done or the
	// underlying watch fails.
	Watch(ctx context.Context, onEvent func(Event)) error
}
