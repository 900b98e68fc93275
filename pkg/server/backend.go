package server

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/storage"
)

// Backend supplies the storage collaborators of one tenant
type Backend interface {
	Store(tenant string) documents.Store
	Teams(tenant string) rbac.TeamResolver
	Activity(ctx context.Context, tenant string) (audit.Logger, error)
}

// MongoBackend keeps every tenant in its own database of one cluster
type MongoBackend struct {
	client  *mongo.Client
	redis   *redis.Client
	metrics *observability.Metrics
}

// NewMongoBackend creates a backend. rdb and metrics may be nil.
func NewMongoBackend(client *mongo.Client, rdb *redis.Client, metrics *observability.Metrics) *MongoBackend {
	return &MongoBackend{client: client, redis: rdb, metrics: metrics}
}

func (b *MongoBackend) db(tenant string) *mongo.Database {
	return b.client.Database(storage.TenantDatabaseName(tenant))
}

// Store returns the document store of a tenant
func (b *MongoBackend) Store(tenant string) documents.Store {
	return documents.NewMongoStore(b.db(tenant))
}

// Teams returns the cached team resolver of a tenant
func (b *MongoBackend) Teams(tenant string) rbac.TeamResolver {
	return rbac.NewTeamCache(rbac.DefaultCacheConfig(tenant), rbac.NewStore(b.db(tenant)), b.redis).
		WithMetrics(b.metrics)
}

// Activity returns an asynchronous logger writing activity records to the
// tenant database and the process log
func (b *MongoBackend) Activity(ctx context.Context, tenant string) (audit.Logger, error) {
	activity := audit.NewMongoLogger(b.db(tenant))
	if err := activity.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("activity indexes: %w", err)
	}
	logger := audit.NewMultiLogger(activity, audit.StructuredLogger{})
	logger.SetAsync(true)
	return logger, nil
}
