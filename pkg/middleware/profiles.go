package middleware

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/storage"
)

// UsersCollection is the tenant collection holding users
const UsersCollection = "users"

type userRecord struct {
	ID       primitive.ObjectID `bson:"_id"`
	Name     string             `bson:"name"`
	Email    string             `bson:"email"`
	Retired  bool               `bson:"retired"`
	NextStep string             `bson:"next_step"`
}

// MongoProfiles resolves profiles from the users and teams collections of
// the tenant database
type MongoProfiles struct {
	client *mongo.Client
}

// NewMongoProfiles creates a profile resolver over client
func NewMongoProfiles(client *mongo.Client) *MongoProfiles {
	return &MongoProfiles{client: client}
}

// ResolveProfile implements ProfileResolver. The subject matches a user id
// when it is an object id hex; otherwise the email claim, or the subject
// itself, matches the user email.
func (p *MongoProfiles) ResolveProfile(ctx context.Context, tenant string, claims *Claims) (*rbac.Profile, error) {
	db := p.client.Database(storage.TenantDatabaseName(tenant))

	var user userRecord
	err := db.Collection(UsersCollection).FindOne(ctx, userFilter(claims)).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apierr.Unauthenticated("no user for this tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user.Retired {
		return nil, apierr.Unauthenticated("user is retired")
	}

	teams, err := rbac.NewStore(db).TeamIDsForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &rbac.Profile{
		ID:       user.ID,
		Tenant:   tenant,
		Name:     user.Name,
		Email:    user.Email,
		Teams:    teams,
		NextStep: user.NextStep,
	}, nil
}

func userFilter(claims *Claims) bson.M {
	if id, err := primitive.ObjectIDFromHex(claims.Subject); err == nil {
		return bson.M{"_id": id}
	}
	email := claims.Email
	if email == "" {
		email = claims.Subject
	}
	return bson.M{"email": email}
}
