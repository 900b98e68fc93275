package documents

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/rbac"
)

// LoadParams selects documents by id
type LoadParams struct {
	Model   *Model
	Profile *rbac.Profile
	IDs     []primitive.ObjectID
	// AccessRule replaces the computed access filter, as in FindDocParams.
	AccessRule bson.M
	// Project defaults to the standard projection when nil.
	Project   bson.M
	Published bool
}

// LoadMany returns the visible documents whose ids are listed, in no
// particular order.
func (s *Service) LoadMany(ctx context.Context, p LoadParams) ([]bson.M, error) {
	if len(p.IDs) == 0 {
		return nil, nil
	}
	ctx, span := tracer.Start(ctx, "documents.LoadMany")
	defer span.End()

	access, err := s.accessFilter(ctx, p.Model, p.Profile, false, p.AccessRule)
	if err != nil {
		return nil, err
	}
	conditions := bson.A{bson.M{"_id": bson.M{"$in": p.IDs}}}
	if len(access) > 0 {
		conditions = append(conditions, access)
	}
	pipeline := bson.A{
		bson.M{"$match": bson.M{"$and": conditions}},
		bson.M{"$project": projection(p.Project)},
	}
	return s.store.Aggregate(ctx, p.Model.collectionFor(p.Published), pipeline)
}
