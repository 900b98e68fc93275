package collection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/contextkeys"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/documents/documentstest"
	"github.com/platinummonkey/cristata/pkg/rbac"
)

type noTeams struct{}

func (noTeams) ResolveSlugs(ctx context.Context, slugs []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func anyone() map[string]interface{} {
	return map[string]interface{}{"teams": []interface{}{0}, "users": []interface{}{}}
}

func articleSpec() Spec {
	access := map[string]interface{}{}
	for _, a := range []string{"get", "create", "modify", "hide", "lock", "archive", "watch", "delete", "publish"} {
		access[a] = anyone()
	}
	return Spec{
		Name:       "Article",
		CanPublish: true,
		SchemaDef: map[string]interface{}{
			"name": map[string]interface{}{"type": "String", "required": true, "public": true},
			"slug": map[string]interface{}{
				"type":   "String",
				"public": true,
				"rule":   map[string]interface{}{"match": "^[a-z0-9-]+$", "message": "slugs are lower case words joined by dashes"},
			},
			"body": map[string]interface{}{"type": "String"},
			"people": map[string]interface{}{
				"authors": map[string]interface{}{"type": []interface{}{"[User]", "ObjectId"}, "public": true},
			},
			"links": map[string]interface{}{
				"type": "DocArray",
				"docs": map[string]interface{}{
					"label": map[string]interface{}{"type": "String"},
					"url":   map[string]interface{}{"type": "String"},
				},
			},
		},
		ActionAccess: access,
	}
}

func mustGenerate(t *testing.T, spec Spec) *Collection {
	t.Helper()
	c, err := Generate(spec, "paladin")
	require.NoError(t, err)
	return c
}

type harness struct {
	store   *documentstest.MemoryStore
	schema  *Schema
	profile *rbac.Profile
}

func newHarness(t *testing.T, specs ...Spec) *harness {
	t.Helper()
	var collections []*Collection
	for _, spec := range specs {
		collections = append(collections, mustGenerate(t, spec))
	}
	store := documentstest.NewMemoryStore()
	svc := documents.NewService(store, rbac.NewPermissionChecker(noTeams{}))
	s, err := Build("paladin", collections, Deps{Documents: svc})
	require.NoError(t, err)
	return &harness{
		store:   store,
		schema:  s,
		profile: &rbac.Profile{ID: primitive.NewObjectID(), Tenant: "paladin", Name: "Writer"},
	}
}

// do runs a request as the harness profile, or anonymously when anonymous
// is set.
func (h *harness) do(t *testing.T, anonymous bool, query string, vars map[string]interface{}) (map[string]interface{}, []string) {
	t.Helper()
	ctx := context.Background()
	if !anonymous {
		ctx = contextkeys.WithProfile(ctx, h.profile)
	}
	res := h.schema.Do(ctx, query, vars, "")
	var errs []string
	for _, e := range res.Errors {
		errs = append(errs, e.Message)
	}
	data, _ := res.Data.(map[string]interface{})
	return data, errs
}

func (h *harness) seedUser(name string) primitive.ObjectID {
	id := primitive.NewObjectID()
	h.store.Seed("users", bson.M{"_id": id, "name": name, "email": name + "@example.com"})
	return id
}

func dig(v interface{}, keys ...string) interface{} {
	for _, k := range keys {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v = m[k]
	}
	return v
}

func contextWithProfile(h *harness) context.Context {
	return contextkeys.WithProfile(context.Background(), h.profile)
}
