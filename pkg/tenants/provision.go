package tenants

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/platinummonkey/cristata/pkg/collection"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/schema"
	"github.com/platinummonkey/cristata/pkg/storage"
)

// Provisioner prepares the storage of a tenant before its schema goes live
type Provisioner interface {
	Provision(ctx context.Context, tenant string, collections []*collection.Collection) error
}

// MongoProvisioner creates collections with JSON schema validators and the
// indexes the generated queries rely on
type MongoProvisioner struct {
	client *mongo.Client
}

// NewMongoProvisioner creates a provisioner over client
func NewMongoProvisioner(client *mongo.Client) *MongoProvisioner {
	return &MongoProvisioner{client: client}
}

// Provision implements Provisioner. System collections are shared with
// other writers and are left alone.
func (p *MongoProvisioner) Provision(ctx context.Context, tenant string, collections []*collection.Collection) error {
	db := p.client.Database(storage.TenantDatabaseName(tenant))
	logger := observability.FromContext(ctx).WithField("tenant", tenant)

	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list collections of %s: %w", tenant, err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	for _, c := range collections {
		if c.System {
			continue
		}
		m := c.Model
		if err := ensureCollection(ctx, db, m.Collection, schema.Validator(c.Def), have[m.Collection]); err != nil {
			return err
		}
		if _, err := db.Collection(m.Collection).Indexes().CreateMany(ctx, IndexModels(c)); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", m.Collection, err)
		}
		if m.PublishedCopy && !have[m.PublishedCollection()] {
			if err := db.CreateCollection(ctx, m.PublishedCollection()); err != nil && !isNamespaceExists(err) {
				return fmt.Errorf("failed to create %s: %w", m.PublishedCollection(), err)
			}
		}
		logger.WithField("collection", m.Collection).Debug("Provisioned collection")
	}
	return nil
}

// Validation is moderate so documents written before a schema change can
// still be updated.
func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, exists bool) error {
	if exists {
		cmd := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
			{Key: "validationLevel", Value: "moderate"},
		}
		if err := db.RunCommand(ctx, cmd).Err(); err != nil {
			return fmt.Errorf("failed to update validator of %s: %w", name, err)
		}
		return nil
	}
	opts := options.CreateCollection().SetValidator(validator).SetValidationLevel("moderate")
	if err := db.CreateCollection(ctx, name, opts); err != nil && !isNamespaceExists(err) {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	return nil
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 48
}

// IndexModels lists the indexes of a collection: the default sort, the
// accessors, unique and text-search fields, watchers and permissions.
func IndexModels(c *collection.Collection) []mongo.IndexModel {
	m := c.Model
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamps.created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "people.watching", Value: 1}}},
	}
	seen := map[string]bool{"_id": true}

	var text []string
	for _, f := range schema.Deconstruct(c.Def) {
		path := indexPath(f.Path)
		if f.Def.Unique && f.ArrayDepth() == 0 && !seen[path] {
			seen[path] = true
			models = append(models, mongo.IndexModel{
				Keys:    bson.D{{Key: path, Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			})
		}
		if f.Def.TextSearch {
			text = append(text, path)
		}
	}
	for _, accessor := range []string{m.AccessorOne(), m.AccessorMany()} {
		if seen[accessor] {
			continue
		}
		seen[accessor] = true
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: accessor, Value: 1}}})
	}
	if len(text) > 0 {
		// a collection holds at most one text index
		sort.Strings(text)
		keys := bson.D{}
		for _, path := range text {
			keys = append(keys, bson.E{Key: path, Value: "text"})
		}
		models = append(models, mongo.IndexModel{Keys: keys})
	}
	if m.WithPermissions {
		models = append(models,
			mongo.IndexModel{Keys: bson.D{{Key: "permissions.users", Value: 1}}},
			mongo.IndexModel{Keys: bson.D{{Key: "permissions.teams", Value: 1}}},
		)
	}
	return models
}

// indexPath drops positional markers; array fields index as multikey.
func indexPath(path string) string {
	return strings.ReplaceAll(path, "."+schema.PositionalMarker+".", ".")
}
