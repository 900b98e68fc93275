//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/storage"
)

func TestMongoLogger(t *testing.T) {
	client, cleanup := storage.SetupMongo(t)
	defer cleanup()

	ctx := context.Background()
	logger := NewMongoLogger(client.Database("audit_test"))
	require.NoError(t, logger.EnsureIndexes(ctx))

	docID := primitive.NewObjectID()
	user := primitive.NewObjectID()
	now := time.Now()

	require.NoError(t, logger.Record(ctx, NewActivity("Article", docID, "A", EventTypeCreated, user, now.Add(-time.Minute))))
	require.NoError(t, logger.Record(ctx, NewActivity("Article", docID, "A", EventTypePatched, user, now)))
	require.NoError(t, logger.Record(ctx, NewActivity("Article", primitive.NewObjectID(), "B", EventTypeCreated, user, now)))

	activities, err := logger.ForDocument(ctx, docID, 10)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, EventTypePatched, activities[0].Type)
	assert.Equal(t, EventTypeCreated, activities[1].Type)
	assert.Equal(t, []primitive.ObjectID{user}, activities[0].UserIDs)
}
