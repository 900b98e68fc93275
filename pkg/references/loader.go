package references

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/rbac"
)

// DocumentLoader loads referenced documents through the document service,
// applying the caller's access filter.
type DocumentLoader struct {
	Service *documents.Service
	Models  func(name string) (*documents.Model, bool)
	Profile *rbac.Profile
	// Rule, when set, replaces the caller's access filter. Public queries
	// use it to load only publicly visible documents.
	Rule func(m *documents.Model) bson.M
}

// Load implements Loader
func (l DocumentLoader) Load(ctx context.Context, collection string, ids []primitive.ObjectID, fields []string) ([]bson.M, error) {
	m, ok := l.Models(collection)
	if !ok {
		return nil, apierr.Schema("reference to unknown collection %q", collection)
	}
	params := documents.LoadParams{Model: m, Profile: l.Profile, IDs: ids}
	if len(fields) > 0 {
		params.Project = bson.M{}
		for _, f := range fields {
			params.Project[f] = 1
		}
	}
	if l.Rule != nil {
		params.AccessRule = l.Rule(m)
		params.Published = true
	}
	return l.Service.LoadMany(ctx, params)
}
