//go:build integration

package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/platinummonkey/cristata/pkg/middleware"
	"github.com/platinummonkey/cristata/pkg/storage"
	"github.com/platinummonkey/cristata/pkg/tenants"
)

func TestCristata_MongoIntegration(t *testing.T) {
	client, cleanup := storage.SetupMongo(t)
	defer cleanup()
	ctx := context.Background()

	source := tenants.NewMongoSource(client.Database("cristata_test"))
	require.NoError(t, source.EnsureIndexes(ctx))
	require.NoError(t, source.Save(ctx, tenant("paladin")))

	c := New(Settings{}, source, NewMongoBackend(client, nil, nil),
		WithProvisioner(tenants.NewMongoProvisioner(client)),
		WithAuth(middleware.NewAuthMiddleware(fakeVerifier{}, fakeProfiles{})),
	)
	require.NoError(t, c.Sync(ctx))
	require.True(t, c.Known("paladin"))

	h := c.Handler()
	_, res := postGraphQL(t, h, "paladin", "good", `mutation { articleCreate(input: {name: "Hello"}) { _id } }`)
	require.Empty(t, res.Errors)

	_, res = postGraphQL(t, h, "paladin", "good", `{ articles { docs { name } totalDocs } }`)
	require.Empty(t, res.Errors)
	assert.EqualValues(t, 1, res.Data["articles"].(map[string]interface{})["totalDocs"])

	db := client.Database(storage.TenantDatabaseName("paladin"))
	n, err := db.Collection("articles").CountDocuments(ctx, bson.M{"name": "Hello"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// the activity logger writes in the background
	require.Eventually(t, func() bool {
		n, err := db.Collection("activities").CountDocuments(ctx, bson.M{})
		return err == nil && n == 1
	}, 5*time.Second, 100*time.Millisecond)
}
