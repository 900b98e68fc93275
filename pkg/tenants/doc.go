// Package tenants loads tenant configurations and keeps the per-tenant
// schema snapshots current.
//
// A Source lists tenants and reports changes: MongoSource follows the
// tenants collection of the app database through a change stream and
// DirSource follows a directory of YAML or JSON files. The Registry holds
// the compiled snapshot of each tenant, keyed by a hash of the parts of
// the configuration that shape the schema. The MongoProvisioner applies
// validators and indexes before a snapshot goes live.
package tenants
