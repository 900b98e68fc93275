// Package storage opens the backing services used by Cristata.
//
// # Overview
//
// Tenant documents live in MongoDB, one database per tenant, plus an app
// database holding the tenant registry. Redis is an optional shared cache
// tier. S3 stores uploaded files; the server never proxies file bodies, it
// only signs upload requests.
//
// # MongoDB
//
// ConnectMongo applies the pool settings from Config and decodes nested
// documents as bson.M so dynamically shaped documents can be walked as
// plain maps:
//
//	client, err := storage.ConnectMongo(ctx, cfg)
//	db := client.Database(storage.TenantDatabaseName("paladin-news"))
//
// # Redis
//
// ConnectRedis returns a nil client when no URL is configured. Callers treat
// a nil client as "no shared cache".
//
// # Testing
//
// Integration tests (build tag integration) call SetupMongo to start a
// throwaway MongoDB container through testcontainers.
package storage
