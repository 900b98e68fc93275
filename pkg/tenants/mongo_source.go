package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/platinummonkey/cristata/pkg/apierr"
)

// MongoSource reads tenants from the app database and follows changes
// through a change stream. Change streams need a replica set.
type MongoSource struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoSource creates a source over the tenants collection of db
func NewMongoSource(db *mongo.Database) *MongoSource {
	return &MongoSource{coll: db.Collection(TenantsCollection), now: time.Now}
}

// EnsureIndexes creates the unique indexes of the tenants collection
func (s *MongoSource) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "billing.customer_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to create tenant indexes: %w", err)
	}
	return nil
}

// List implements Source
func (s *MongoSource) List(ctx context.Context) ([]Tenant, error) {
	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	var out []Tenant
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode tenants: %w", err)
	}
	return out, nil
}

// Get returns one tenant by name
func (s *MongoSource) Get(ctx context.Context, name string) (*Tenant, error) {
	var t Tenant
	err := s.coll.FindOne(ctx, bson.M{"name": name}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apierr.NotFound("tenant " + name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %s: %w", name, err)
	}
	return &t, nil
}

// Save inserts or replaces a tenant by name
func (s *MongoSource) Save(ctx context.Context, t Tenant) error {
	if err := t.Validate(); err != nil {
		return apierr.Validation(err.Error())
	}
	t.UpdatedAt = s.now().UTC()
	update := bson.M{"$set": bson.M{
		"name":         t.Name,
		"display_name": t.DisplayName,
		"collections":  t.Collections,
		"updated_at":   t.UpdatedAt,
	}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"name": t.Name}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save tenant %s: %w", t.Name, err)
	}
	return nil
}

// UpdateBilling sets the billing state of the tenant owning customerID
func (s *MongoSource) UpdateBilling(ctx context.Context, customerID string, apply func(*Billing)) error {
	var t Tenant
	err := s.coll.FindOne(ctx, bson.M{"billing.customer_id": customerID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apierr.NotFound("billing customer " + customerID)
	}
	if err != nil {
		return fmt.Errorf("failed to find tenant for customer %s: %w", customerID, err)
	}
	apply(&t.Billing)
	_, err = s.coll.UpdateOne(ctx, bson.M{"_id": t.ID}, bson.M{"$set": bson.M{"billing": t.Billing}})
	if err != nil {
		return fmt.Errorf("failed to update billing of tenant %s: %w", t.Name, err)
	}
	return nil
}

type changeEvent struct {
	OperationType string  `bson:"operationType"`
	FullDocument  *Tenant `bson:"fullDocument"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
}

// Watch implements Source with a change stream. Deletes carry only the
// tenant id.
func (s *MongoSource) Watch(ctx context.Context, onEvent func(Event)) error {
	stream, err := s.coll.Watch(ctx, mongo.Pipeline{}, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return fmt.Errorf("failed to watch tenants: %w", err)
	}
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			return fmt.Errorf("failed to decode tenant change: %w", err)
		}
		if e, ok := toEvent(ev); ok {
			onEvent(e)
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tenant change stream failed: %w", err)
	}
	return nil
}

func toEvent(ev changeEvent) (Event, bool) {
	switch ev.OperationType {
	case "insert", "update", "replace":
		if ev.FullDocument == nil {
			return Event{}, false
		}
		return Event{Type: EventUpsert, Tenant: *ev.FullDocument}, true
	case "delete":
		return Event{Type: EventDelete, Tenant: Tenant{ID: ev.DocumentKey.ID}}, true
	default:
		return Event{}, false
	}
}
