//go:build integration

package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/storage"
)

func TestMongoStore_Service(t *testing.T) {
	client, cleanup := storage.SetupMongo(t)
	defer cleanup()

	ctx := context.Background()
	store := NewMongoStore(client.Database("documents_test"))
	svc := NewService(store, rbac.NewPermissionChecker(staticTeams{}))
	m := articleModel(t)
	m.PublishedCopy = true

	var last bson.M
	for _, name := range []string{"A", "B", "C"} {
		data := openArticle(name)
		data["slug"] = "new-document"
		doc, err := svc.CreateDoc(ctx, CreateParams{Model: m, Profile: author, Data: data})
		require.NoError(t, err)
		last = doc
	}

	doc, err := svc.FindDoc(ctx, FindDocParams{Model: m, Profile: stranger, By: "slug", Value: "new-document"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "C", doc["name"])

	page, err := svc.FindDocs(ctx, FindDocsParams{Model: m, Profile: stranger, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalDocs)
	assert.Len(t, page.Docs, 2)
	assert.True(t, page.HasNextPage)

	id := idOf(t, last)
	_, err = svc.PublishDoc(ctx, PublishParams{Model: m, Profile: editor, ID: id, Publish: true})
	require.NoError(t, err)

	published, err := svc.FindDoc(ctx, FindDocParams{Model: m, Value: id, FullAccess: true, Published: true})
	require.NoError(t, err)
	require.NotNil(t, published)
	assert.Equal(t, "C", published["name"])

	_, err = svc.ModifyDoc(ctx, ModifyParams{Model: m, Profile: editor, ID: id, Data: bson.M{"name": "D"}})
	assert.ErrorIs(t, err, apierr.ErrValidation)

	_, err = svc.DeleteDoc(ctx, TargetParams{Model: m, Profile: editor, ID: id})
	require.NoError(t, err)

	doc, err = svc.FindDoc(ctx, FindDocParams{Model: m, Value: id, FullAccess: true})
	require.NoError(t, err)
	assert.Nil(t, doc)
}
