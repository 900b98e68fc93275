package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/documents/documentstest"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/schema"
)

func TestBuild_AddsSystemCollections(t *testing.T) {
	h := newHarness(t, articleSpec())

	var names []string
	for _, c := range h.schema.Collections() {
		names = append(names, c.Names.Type)
	}
	assert.Equal(t, []string{"Activity", "Article", "File", "Team", "User"}, names)
	assert.Contains(t, h.schema.TypeDefs, "type Article {")
	assert.Contains(t, h.schema.TypeDefs, "scalar ObjectID")

	_, err := ValidateTypeDefs("paladin", h.schema.TypeDefs)
	assert.NoError(t, err)
}

func TestBuild_UnknownReference(t *testing.T) {
	spec := articleSpec()
	spec.SchemaDef["topic"] = map[string]interface{}{"type": []interface{}{"Topic", "ObjectId"}}
	c := mustGenerate(t, spec)

	svc := documents.NewService(documentstest.NewMemoryStore(), rbac.NewPermissionChecker(noTeams{}))
	_, err := Build("paladin", []*Collection{c}, Deps{Documents: svc})
	require.Error(t, err)
	assert.Equal(t, apierr.KindSchema, apierr.KindOf(err))
	assert.Contains(t, err.Error(), "Topic")
}

func TestBuild_DuplicateCollection(t *testing.T) {
	c := mustGenerate(t, articleSpec())
	svc := documents.NewService(documentstest.NewMemoryStore(), rbac.NewPermissionChecker(noTeams{}))
	_, err := Build("paladin", []*Collection{c, c}, Deps{Documents: svc})
	assert.Equal(t, apierr.KindSchema, apierr.KindOf(err))
}

func TestExecute_CreateAndRead(t *testing.T) {
	h := newHarness(t, articleSpec())

	data, errs := h.do(t, false, `mutation {
		articleCreate(input: {name: "Hello", slug: "hello", links: [{label: "home", url: "/"}]}) {
			_id name stage links { label } people { created_by { _id } }
		}
	}`, nil)
	require.Empty(t, errs)
	created := dig(data, "articleCreate")
	assert.Equal(t, "Hello", dig(created, "name"))
	assert.Equal(t, schema.StageDraft, dig(created, "stage"))
	assert.Equal(t, h.profile.ID.Hex(), dig(created, "people", "created_by", "_id"))
	assert.Len(t, dig(created, "links"), 1)

	id := dig(created, "_id").(string)
	data, errs = h.do(t, false, `query($id: ObjectID!) { article(_id: $id) { name slug } }`, map[string]interface{}{"id": id})
	require.Empty(t, errs)
	assert.Equal(t, "hello", dig(data, "article", "slug"))
}

func TestExecute_ResolvesReferences(t *testing.T) {
	h := newHarness(t, articleSpec())
	ada := h.seedUser("Ada")
	grace := h.seedUser("Grace")
	id := primitive.NewObjectID()
	h.store.Seed("articles", bson.M{
		"_id":    id,
		"name":   "Compilers",
		"people": bson.M{"authors": bson.A{ada, grace}},
	})

	data, errs := h.do(t, false, `query($id: ObjectID!) {
		article(_id: $id) { people { authors { name } } }
	}`, map[string]interface{}{"id": id.Hex()})
	require.Empty(t, errs)

	authors := dig(data, "article", "people", "authors").([]interface{})
	require.Len(t, authors, 2)
	assert.Equal(t, "Ada", dig(authors[0], "name"))
	assert.Equal(t, "Grace", dig(authors[1], "name"))
}

func TestExecute_Paging(t *testing.T) {
	h := newHarness(t, articleSpec())
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		h.store.Seed("articles", bson.M{
			"_id":        primitive.NewObjectID(),
			"name":       name,
			"timestamps": bson.M{"created_at": base.Add(time.Duration(i) * time.Hour)},
		})
	}

	data, errs := h.do(t, false, `{ articles(limit: 2) { docs { name } totalDocs totalPages hasNextPage nextPage } }`, nil)
	require.Empty(t, errs)
	page := dig(data, "articles")
	assert.Equal(t, 3, dig(page, "totalDocs"))
	assert.Equal(t, 2, dig(page, "totalPages"))
	assert.Equal(t, true, dig(page, "hasNextPage"))
	assert.Equal(t, 2, dig(page, "nextPage"))
	docs := dig(page, "docs").([]interface{})
	require.Len(t, docs, 2)
	assert.Equal(t, "c", dig(docs[0], "name"))

	data, errs = h.do(t, false, `query($filter: JSON) { articles(sort: {name: 1}, filter: $filter) { docs { name } } }`,
		map[string]interface{}{"filter": map[string]interface{}{"name": map[string]interface{}{"$in": []interface{}{"a", "b"}}}})
	require.Empty(t, errs)
	docs = dig(data, "articles", "docs").([]interface{})
	require.Len(t, docs, 2)
	assert.Equal(t, "a", dig(docs[0], "name"))
}

func TestExecute_RejectsServerSideFilters(t *testing.T) {
	h := newHarness(t, articleSpec())
	_, errs := h.do(t, false, `query($filter: JSON) { articles(filter: $filter) { totalDocs } }`,
		map[string]interface{}{"filter": map[string]interface{}{"$where": "true"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "$where")
}

func TestExecute_PublicQueries(t *testing.T) {
	h := newHarness(t, articleSpec())
	h.store.Seed("articles",
		bson.M{"_id": primitive.NewObjectID(), "name": "Live", "slug": "live", "body": "secret", "stage": schema.StagePublished},
		bson.M{"_id": primitive.NewObjectID(), "name": "Draft", "slug": "draft", "stage": schema.StageDraft},
		bson.M{"_id": primitive.NewObjectID(), "name": "Pulled", "slug": "pulled", "stage": schema.StagePublished, "hidden": true},
	)

	data, errs := h.do(t, true, `{ articlesPublic { totalDocs docs { name } } }`, nil)
	require.Empty(t, errs)
	assert.Equal(t, 1, dig(data, "articlesPublic", "totalDocs"))

	data, errs = h.do(t, true, `{ articleBySlugPublic(slug: "live") { name } }`, nil)
	require.Empty(t, errs)
	assert.Equal(t, "Live", dig(data, "articleBySlugPublic", "name"))

	data, errs = h.do(t, true, `{ articleBySlugPublic(slug: "draft") { name } }`, nil)
	require.Empty(t, errs)
	assert.Nil(t, dig(data, "articleBySlugPublic"))

	_, errs = h.do(t, true, `{ articlesPublic { docs { body } } }`, nil)
	assert.NotEmpty(t, errs, "non public fields are not part of the pruned type")
}

func TestExecute_PublicQueriesServeDueScheduledDocs(t *testing.T) {
	h := newHarness(t, articleSpec())
	now := time.Now().UTC()
	h.store.Seed("articles",
		bson.M{"_id": primitive.NewObjectID(), "name": "Due", "slug": "due", "stage": schema.StageScheduled, "timestamps": bson.M{"published_at": now.Add(-time.Hour)}},
		bson.M{"_id": primitive.NewObjectID(), "name": "Later", "slug": "later", "stage": schema.StageScheduled, "timestamps": bson.M{"published_at": now.Add(time.Hour)}},
	)

	data, errs := h.do(t, true, `{ articlesPublic { totalDocs docs { name } } }`, nil)
	require.Empty(t, errs)
	assert.Equal(t, 1, dig(data, "articlesPublic", "totalDocs"))
	docs := dig(data, "articlesPublic", "docs").([]interface{})
	require.Len(t, docs, 1)
	assert.Equal(t, "Due", dig(docs[0], "name"))

	data, errs = h.do(t, true, `{ articleBySlugPublic(slug: "later") { name } }`, nil)
	require.Empty(t, errs)
	assert.Nil(t, dig(data, "articleBySlugPublic"))
}

func TestExecute_PublicFilterLimitedToPublicFields(t *testing.T) {
	h := newHarness(t, articleSpec())
	h.store.Seed("articles",
		bson.M{"_id": primitive.NewObjectID(), "name": "Live", "body": "secret", "stage": schema.StagePublished},
		bson.M{"_id": primitive.NewObjectID(), "name": "Other", "body": "plain", "stage": schema.StagePublished},
	)
	query := `query($filter: JSON) { articlesPublic(filter: $filter) { totalDocs } }`

	tests := []struct {
		name    string
		filter  map[string]interface{}
		total   int
		blocked string
	}{
		{name: "public field", filter: map[string]interface{}{"name": "Live"}, total: 1},
		{name: "nested public field", filter: map[string]interface{}{"people.authors": map[string]interface{}{"$exists": false}}, total: 2},
		{name: "private field", filter: map[string]interface{}{"body": "secret"}, blocked: "body"},
		{
			name: "private field inside or",
			filter: map[string]interface{}{"$or": []interface{}{
				map[string]interface{}{"name": "Nope"},
				map[string]interface{}{"body": map[string]interface{}{"$in": []interface{}{"secret"}}},
			}},
			blocked: "body",
		},
		{name: "expression", filter: map[string]interface{}{"$expr": map[string]interface{}{"$eq": []interface{}{"$body", "secret"}}}, blocked: "$expr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, errs := h.do(t, true, query, map[string]interface{}{"filter": tt.filter})
			if tt.blocked != "" {
				require.Len(t, errs, 1)
				assert.Equal(t, "filter field "+tt.blocked+" is not public", errs[0])
				return
			}
			require.Empty(t, errs)
			assert.Equal(t, tt.total, dig(data, "articlesPublic", "totalDocs"))
		})
	}

	data, errs := h.do(t, false, `query($filter: JSON) { articles(filter: $filter) { totalDocs } }`,
		map[string]interface{}{"filter": map[string]interface{}{"body": "secret"}})
	require.Empty(t, errs, "authenticated queries may filter on any field")
	assert.Equal(t, 1, dig(data, "articles", "totalDocs"))
}

func TestExecute_RequiresProfile(t *testing.T) {
	h := newHarness(t, articleSpec())

	res := h.schema.Do(t.Context(), `{ articles { totalDocs } }`, nil, "")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "UNAUTHENTICATED", res.Errors[0].Extensions["code"])
}

func TestExecute_RuleViolation(t *testing.T) {
	h := newHarness(t, articleSpec())
	_, errs := h.do(t, false, `mutation { articleCreate(input: {name: "Hi", slug: "Not Valid"}) { _id } }`, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, "slugs are lower case words joined by dashes", errs[0])
	assert.Empty(t, h.store.All("articles"))
}

func TestExecute_LifecycleMutations(t *testing.T) {
	h := newHarness(t, articleSpec())
	data, errs := h.do(t, false, `mutation { articleCreate(input: {name: "Hi"}) { _id } }`, nil)
	require.Empty(t, errs)
	id := dig(data, "articleCreate", "_id")

	data, errs = h.do(t, false, `mutation($id: ObjectID!) { articleHide(_id: $id) { hidden } }`, map[string]interface{}{"id": id})
	require.Empty(t, errs)
	assert.Equal(t, true, dig(data, "articleHide", "hidden"))

	data, errs = h.do(t, false, `mutation($id: ObjectID!) { articlePublish(_id: $id) { stage timestamps { published_at } } }`, map[string]interface{}{"id": id})
	require.Empty(t, errs)
	assert.Equal(t, schema.StagePublished, dig(data, "articlePublish", "stage"))
	assert.NotNil(t, dig(data, "articlePublish", "timestamps", "published_at"))

	data, errs = h.do(t, false, `mutation($id: ObjectID!) { articleDelete(_id: $id) { _id } }`, map[string]interface{}{"id": id})
	require.Empty(t, errs)
	assert.Empty(t, h.store.All("articles"))
}

func TestExecute_ActionAccessAndCollections(t *testing.T) {
	h := newHarness(t, articleSpec())

	data, errs := h.do(t, false, `{ articleActionAccess { get modify bypassDocPermissions } }`, nil)
	require.Empty(t, errs)
	assert.Equal(t, true, dig(data, "articleActionAccess", "get"))
	assert.Equal(t, true, dig(data, "articleActionAccess", "modify"))
	assert.Equal(t, false, dig(data, "articleActionAccess", "bypassDocPermissions"))

	data, errs = h.do(t, false, `{ collections { name pluralName canPublish } }`, nil)
	require.Empty(t, errs)
	list := dig(data, "collections").([]interface{})
	require.Len(t, list, 5)
	assert.Equal(t, "Article", dig(list[1], "name"))
	assert.Equal(t, "articles", dig(list[1], "pluralName"))
	assert.Equal(t, true, dig(list[1], "canPublish"))
}

func TestExecute_SignS3WithoutStorage(t *testing.T) {
	h := newHarness(t, articleSpec())
	res := h.schema.Do(contextWithProfile(h), `mutation { signS3(fileName: "a.png", fileType: "image/png") { location } }`, nil, "")
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "UPSTREAM_ERROR", res.Errors[0].Extensions["code"])
}
