package documents

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is the persistence boundary of the access layer
type Store interface {
	Aggregate(ctx context.Context, collection string, pipeline bson.A) ([]bson.M, error)
	InsertOne(ctx context.Context, collection string, doc bson.M) error
	// ReplaceOne replaces the document with the given id, inserting it when
	// it does not exist.
	ReplaceOne(ctx context.Context, collection string, id primitive.ObjectID, doc bson.M) error
	DeleteOne(ctx context.Context, collection string, id primitive.ObjectID) error
}

// MongoStore implements Store on a tenant database
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a store for one tenant database
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// Aggregate runs a pipeline and decodes every result
func (s *MongoStore) Aggregate(ctx context.Context, collection string, pipeline bson.A) ([]bson.M, error) {
	cur, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []bson.M
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
	}
	return out, nil
}

// InsertOne inserts a document
func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc bson.M) error {
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// ReplaceOne upserts a whole document
func (s *MongoStore) ReplaceOne(ctx context.Context, collection string, id primitive.ObjectID, doc bson.M) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to replace in %s: %w", collection, err)
	}
	return nil
}

// DeleteOne removes a document
func (s *MongoStore) DeleteOne(ctx context.Context, collection string, id primitive.ObjectID) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return nil
}
