package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLogger writes activities into a tenant's activity collection
type MongoLogger struct {
	coll *mongo.Collection
}

// NewMongoLogger creates a logger for one tenant database
func NewMongoLogger(db *mongo.Database) *MongoLogger {
	return &MongoLogger{coll: db.Collection(ActivityCollection)}
}

// EnsureIndexes creates the indexes used to list a document's activity
func (l *MongoLogger) EnsureIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "docId", Value: 1}, {Key: "at", Value: -1}}},
		{Keys: bson.D{{Key: "colName", Value: 1}, {Key: "at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create activity indexes: %w", err)
	}
	return nil
}

// Record inserts the activity
func (l *MongoLogger) Record(ctx context.Context, activity *Activity) error {
	if activity.ID.IsZero() {
		activity.ID = primitive.NewObjectID()
	}
	if _, err := l.coll.InsertOne(ctx, activity); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// ForDocument lists the most recent activities of one document
func (l *MongoLogger) ForDocument(ctx context.Context, docID primitive.ObjectID, limit int64) ([]*Activity, error) {
	cur, err := l.coll.Find(ctx, bson.M{"docId": docID},
		options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer cur.Close(ctx)

	var out []*Activity
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	return out, nil
}

// Close is a no-op; the client is owned by the caller
func (l *MongoLogger) Close() error {
	return nil
}
