package rbac

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TeamsCollection is the tenant collection holding teams
const TeamsCollection = "teams"

// Store reads team membership from a tenant database
type Store struct {
	db *mongo.Database
}

// NewStore creates a new team store for one tenant database
func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

type teamRecord struct {
	ID   primitive.ObjectID `bson:"_id"`
	Slug string             `bson:"slug"`
}

// ResolveSlugs looks up the ids of the given team slugs
func (s *Store) ResolveSlugs(ctx context.Context, slugs []string) (map[string]string, error) {
	out := make(map[string]string, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}

	cur, err := s.db.Collection(TeamsCollection).Find(ctx,
		bson.M{"slug": bson.M{"$in": slugs}},
		options.Find().SetProjection(bson.M{"_id": 1, "slug": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var team teamRecord
		if err := cur.Decode(&team); err != nil {
			return nil, fmt.Errorf("failed to decode team: %w", err)
		}
		out[team.Slug] = team.ID.Hex()
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return out, nil
}

// TeamIDsForUser returns the ids of every team the user is a member or
// organizer of
func (s *Store) TeamIDsForUser(ctx context.Context, userID primitive.ObjectID) ([]string, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"members": userID},
		bson.M{"organizers": userID},
	}}
	cur, err := s.db.Collection(TeamsCollection).Find(ctx, filter,
		options.Find().SetProjection(bson.M{"_id": 1, "slug": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams for user: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var team teamRecord
		if err := cur.Decode(&team); err != nil {
			return nil, fmt.Errorf("failed to decode team: %w", err)
		}
		ids = append(ids, team.ID.Hex())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teams: %w", err)
	}
	return ids, nil
}
