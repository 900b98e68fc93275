// Package config loads Cristata configuration from CRISTATA_* environment
// variables.
//
// Every setting has a default so a local server starts against
// mongodb://localhost:27017 with no environment at all:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Notable variables:
//
//	CRISTATA_PORT, CRISTATA_HEALTH_PORT      API and probe ports
//	CRISTATA_MONGO_URI                       MongoDB connection string
//	CRISTATA_REDIS_URL                       optional shared cache
//	CRISTATA_CRDT_URL                        collaborative mirror endpoint
//	CRISTATA_OIDC_ISSUER, _CLIENT_ID         bearer token verification
//	CRISTATA_TENANT_SOURCE                   mongo or dir
//	CRISTATA_RESYNC_SCHEDULE                 cron spec, default @every 5m
//	CRISTATA_STRIPE_WEBHOOK_SECRET           billing webhook signing secret
package config
