package documents

import (
	"context"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/schema"
)

const (
	// DefaultLimit is the page size used when none is requested
	DefaultLimit = 10
	// MaxLimit caps every page regardless of the requested size
	MaxLimit = 100
)

// PublishedRule matches published documents and scheduled ones whose
// publish date has passed at now.
func PublishedRule(now time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"stage": schema.StagePublished},
		bson.M{"stage": schema.StageScheduled, "timestamps.published_at": bson.M{"$lte": now}},
	}}
}

// FindDocParams selects one document
type FindDocParams struct {
	Model   *Model
	Profile *rbac.Profile
	// By is the accessor field. It defaults to the model's single accessor.
	By    string
	Value interface{}
	// Filter is combined with the accessor and access conditions.
	Filter bson.M
	// FullAccess skips the access filter. Used by callers that run an
	// explicit permission check afterwards.
	FullAccess bool
	// AccessRule replaces the computed access filter.
	AccessRule bson.M
	Project    bson.M
	// Published reads from the independent published copy.
	Published bool
}

// FindDoc returns the newest document matching the accessor, or nil when
// nothing matches or the caller cannot see it.
func (s *Service) FindDoc(ctx context.Context, p FindDocParams) (bson.M, error) {
	ctx, span := tracer.Start(ctx, "documents.FindDoc", trace.WithAttributes(
		attribute.String("collection", p.Model.Name),
	))
	defer span.End()

	access, err := s.accessFilter(ctx, p.Model, p.Profile, p.FullAccess, p.AccessRule)
	if err != nil {
		return nil, err
	}

	by := p.By
	if by == "" {
		by = p.Model.AccessorOne()
	}
	conditions := bson.A{bson.M{by: p.Value}}
	if len(p.Filter) > 0 {
		conditions = append(conditions, p.Filter)
	}
	if len(access) > 0 {
		conditions = append(conditions, access)
	}

	pipeline := bson.A{
		bson.M{"$match": bson.M{"$and": conditions}},
		bson.M{"$sort": bson.D{{Key: "_id", Value: -1}}},
		bson.M{"$limit": 1},
		bson.M{"$project": projection(p.Project)},
	}

	docs, err := s.store.Aggregate(ctx, p.Model.collectionFor(p.Published), pipeline)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// FindDocsParams selects a page of documents
type FindDocsParams struct {
	Model      *Model
	Profile    *rbac.Profile
	Filter     bson.M
	FullAccess bool
	AccessRule bson.M
	// Offset takes precedence over Page when both are set.
	Page   *int
	Offset *int
	Limit  int
	Sort   bson.D
	// Pipeline is inserted after the match stage.
	Pipeline  bson.A
	Project   bson.M
	Published bool
}

// Paged is a page of documents with pagination metadata
type Paged struct {
	Docs          []bson.M `json:"docs"`
	TotalDocs     int      `json:"totalDocs"`
	Limit         int      `json:"limit"`
	Page          int      `json:"page"`
	Offset        int      `json:"offset"`
	TotalPages    int      `json:"totalPages"`
	PagingCounter int      `json:"pagingCounter"`
	HasPrevPage   bool     `json:"hasPrevPage"`
	HasNextPage   bool     `json:"hasNextPage"`
	PrevPage      *int     `json:"prevPage"`
	NextPage      *int     `json:"nextPage"`
}

// ClampLimit applies the default and maximum page sizes
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// FindDocs returns a page of documents visible to the caller
func (s *Service) FindDocs(ctx context.Context, p FindDocsParams) (*Paged, error) {
	ctx, span := tracer.Start(ctx, "documents.FindDocs", trace.WithAttributes(
		attribute.String("collection", p.Model.Name),
	))
	defer span.End()

	access, err := s.accessFilter(ctx, p.Model, p.Profile, p.FullAccess, p.AccessRule)
	if err != nil {
		return nil, err
	}

	limit := ClampLimit(p.Limit)
	page, offset := 1, 0
	switch {
	case p.Offset != nil:
		offset = *p.Offset
		if offset < 0 {
			offset = 0
		}
		page = offset/limit + 1
	case p.Page != nil && *p.Page > 1:
		page = *p.Page
		offset = (page - 1) * limit
	}

	conditions := bson.A{}
	if len(p.Filter) > 0 {
		conditions = append(conditions, p.Filter)
	}
	if len(access) > 0 {
		conditions = append(conditions, access)
	}
	match := bson.M{}
	if len(conditions) > 0 {
		match = bson.M{"$and": conditions}
	}

	sort := p.Sort
	if len(sort) == 0 {
		sort = bson.D{{Key: "timestamps.created_at", Value: -1}}
	}
	if !hasKey(sort, "_id") {
		sort = append(append(bson.D{}, sort...), bson.E{Key: "_id", Value: -1})
	}

	pipeline := bson.A{bson.M{"$match": match}}
	pipeline = append(pipeline, p.Pipeline...)
	pipeline = append(pipeline,
		bson.M{"$sort": sort},
		bson.M{"$facet": bson.M{
			"docs": bson.A{
				bson.M{"$skip": offset},
				bson.M{"$limit": limit},
				bson.M{"$project": projection(p.Project)},
			},
			"total": bson.A{bson.M{"$count": "count"}},
		}},
	)

	out, err := s.store.Aggregate(ctx, p.Model.collectionFor(p.Published), pipeline)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var docs []bson.M
	total := 0
	if len(out) > 0 {
		docs = facetDocs(out[0]["docs"])
		total = facetCount(out[0]["total"])
	}
	return paginate(docs, total, limit, page, offset), nil
}

func paginate(docs []bson.M, total, limit, page, offset int) *Paged {
	if docs == nil {
		docs = []bson.M{}
	}
	paged := &Paged{
		Docs:          docs,
		TotalDocs:     total,
		Limit:         limit,
		Page:          page,
		Offset:        offset,
		TotalPages:    int(math.Ceil(float64(total) / float64(limit))),
		PagingCounter: offset + 1,
	}
	if paged.TotalPages == 0 {
		paged.TotalPages = 1
	}
	if offset > 0 {
		paged.HasPrevPage = true
		prev := page - 1
		if prev < 1 {
			prev = 1
		}
		paged.PrevPage = &prev
	}
	if offset+limit < total {
		paged.HasNextPage = true
		next := page + 1
		paged.NextPage = &next
	}
	return paged
}

func facetDocs(v interface{}) []bson.M {
	var docs []bson.M
	switch list := v.(type) {
	case bson.A:
		for _, item := range list {
			if doc, ok := asDoc(item); ok {
				docs = append(docs, doc)
			}
		}
	case []bson.M:
		docs = list
	case []interface{}:
		for _, item := range list {
			if doc, ok := asDoc(item); ok {
				docs = append(docs, doc)
			}
		}
	}
	return docs
}

func facetCount(v interface{}) int {
	docs := facetDocs(v)
	if len(docs) == 0 {
		return 0
	}
	switch n := docs[0]["count"].(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asDoc(v interface{}) (bson.M, bool) {
	switch doc := v.(type) {
	case bson.M:
		return doc, true
	case map[string]interface{}:
		return bson.M(doc), true
	}
	return nil, false
}

func hasKey(d bson.D, key string) bool {
	for _, e := range d {
		if e.Key == key {
			return true
		}
	}
	return false
}

// projection merges the caller's projection with the default exclusions.
// Inclusion projections cannot mix with exclusions, so they are used as is.
func projection(p bson.M) bson.M {
	for _, v := range p {
		if included(v) {
			return p
		}
	}
	out := bson.M{}
	for k, v := range defaultProjection {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}

func included(v interface{}) bool {
	switch n := v.(type) {
	case bool:
		return n
	case int:
		return n != 0
	case int32:
		return n != 0
	case int64:
		return n != 0
	case float64:
		return n != 0
	}
	return true
}

func (m *Model) collectionFor(published bool) string {
	if published && m.PublishedCopy {
		return m.PublishedCollection()
	}
	return m.Collection
}
