//go:build integration

package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/storage"
)

func TestStore_TeamLookups(t *testing.T) {
	client, cleanup := storage.SetupMongo(t)
	defer cleanup()

	ctx := context.Background()
	db := client.Database("rbac_store_test")
	store := NewStore(db)

	member := primitive.NewObjectID()
	organizer := primitive.NewObjectID()
	admins := primitive.NewObjectID()
	editors := primitive.NewObjectID()

	_, err := db.Collection(TeamsCollection).InsertMany(ctx, []interface{}{
		bson.M{"_id": admins, "slug": "admin", "members": bson.A{member}, "organizers": bson.A{}},
		bson.M{"_id": editors, "slug": "editors", "members": bson.A{}, "organizers": bson.A{organizer}},
	})
	require.NoError(t, err)

	ids, err := store.ResolveSlugs(ctx, []string{"admin", "editors", "ghosts"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"admin": admins.Hex(), "editors": editors.Hex()}, ids)

	teams, err := store.TeamIDsForUser(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, []string{admins.Hex()}, teams)

	teams, err = store.TeamIDsForUser(ctx, organizer)
	require.NoError(t, err)
	assert.Equal(t, []string{editors.Hex()}, teams)

	pc := NewPermissionChecker(NewTeamCache(DefaultCacheConfig("rbac_store_test"), store, nil))
	ok, err := pc.IsAdmin(ctx, &Profile{ID: member, Teams: []string{admins.Hex()}})
	require.NoError(t, err)
	assert.True(t, ok)
}
