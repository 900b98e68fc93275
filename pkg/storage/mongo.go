package storage

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClientOptions builds driver options from config. Nested documents
// decode as bson.M so dynamic documents can be walked as maps.
func MongoClientOptions(cfg Config) *options.ClientOptions {
	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true}).
		SetAppName("cristata")
	if cfg.MongoTimeout > 0 {
		opts.SetConnectTimeout(cfg.MongoTimeout).SetServerSelectionTimeout(cfg.MongoTimeout)
	}
	if cfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MongoMaxPoolSize)
	}
	if cfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MongoMinPoolSize)
	}
	return opts
}

// ConnectMongo opens a client and verifies the primary is reachable
func ConnectMongo(ctx context.Context, cfg Config) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, MongoClientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, nil
}

// TenantDatabaseName maps a tenant name onto its database. Mongo database
// names may not contain spaces, dots or slashes.
func TenantDatabaseName(tenant string) string {
	r := strings.NewReplacer(" ", "_", ".", "_", "/", "_", "\\", "_", "$", "_", "\"", "_")
	return r.Replace(tenant)
}
