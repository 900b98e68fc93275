package collection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/contextkeys"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/references"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// forbiddenOperators run server side code and are refused in filters
var forbiddenOperators = map[string]bool{
	"$where":       true,
	"$function":    true,
	"$accumulator": true,
}

func profileFrom(ctx context.Context) *rbac.Profile {
	profile, _ := ctx.Value(contextkeys.ProfileKey).(*rbac.Profile)
	return profile
}

func (b *builder) resolverFor(c *Collection, op Operation) graphql.FieldResolveFn {
	switch op.Kind {
	case OpFindOne:
		return b.findOne(c, false)
	case OpPublicFindOne:
		return b.findOne(c, true)
	case OpFindMany:
		return b.findMany(c, false, nil)
	case OpPublicFindMany:
		return b.findMany(c, true, nil)
	case OpCustom:
		return b.findMany(c, op.Custom.Public, op.Custom)
	case OpPublicBySlug:
		return b.bySlug(c)
	case OpActionAccess:
		return b.actionAccess(c)
	default:
		return b.mutate(c, op.Kind)
	}
}

// canGet enforces the collection level get action
func (b *builder) canGet(ctx context.Context, c *Collection, profile *rbac.Profile) error {
	if profile == nil {
		return apierr.Unauthenticated("")
	}
	ok, err := rbac.Allowed(ctx, b.deps.Documents.Checker(), rbac.PermissionCheck{
		Collection: c.Names.Type,
		Action:     rbac.ActionGet,
		Access:     c.Model.Access,
		Profile:    profile,
	})
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Forbidden("you cannot get %s", c.Names.Many)
	}
	return nil
}

// resolveRefs replaces the selected references of docs with documents
func (b *builder) resolveRefs(ctx context.Context, c *Collection, docs []bson.M, fields references.FieldSet, public bool) error {
	loader := references.DocumentLoader{
		Service: b.deps.Documents,
		Models:  b.schema.Model,
		Profile: profileFrom(ctx),
	}
	if public {
		loader.Rule = b.publicRule
	}
	return references.NewResolver(loader, b.schema.Definition).Resolve(ctx, c.Names.Type, docs, fields)
}

func (b *builder) publicRule(m *documents.Model) bson.M {
	if c, ok := b.schema.collections[m.Name]; ok {
		return c.PublicRule(b.deps.Documents.Now())
	}
	return bson.M{"_id": bson.M{"$exists": false}}
}

func (b *builder) findOne(c *Collection, public bool) graphql.FieldResolveFn {
	arg := c.accessorArg(false).Name
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		profile := profileFrom(ctx)
		if !public {
			if err := b.canGet(ctx, c, profile); err != nil {
				return nil, err
			}
		}

		var doc bson.M
		value, given := p.Args[arg]
		if !given || value == nil {
			if !c.Options.SingleDocument {
				return nil, apierr.Validation(arg + " is required")
			}
			params := documents.FindDocsParams{Model: c.Model, Profile: profile, Limit: 1}
			if public {
				params.AccessRule, params.Project, params.Published = c.PublicRule(b.deps.Documents.Now()), c.publicProjection(), true
			}
			page, err := b.deps.Documents.FindDocs(ctx, params)
			if err != nil {
				return nil, err
			}
			if len(page.Docs) > 0 {
				doc = page.Docs[0]
			}
		} else {
			params := documents.FindDocParams{Model: c.Model, Profile: profile, Value: value}
			if public {
				params.AccessRule, params.Project, params.Published = c.PublicRule(b.deps.Documents.Now()), c.publicProjection(), true
			}
			var err error
			if doc, err = b.deps.Documents.FindDoc(ctx, params); err != nil {
				return nil, err
			}
		}
		if doc == nil {
			return nil, nil
		}
		if err := b.resolveRefs(ctx, c, []bson.M{doc}, selectedFields(p.Info), public); err != nil {
			return nil, err
		}
		return doc, nil
	}
}

func (b *builder) findMany(c *Collection, public bool, custom *CustomQuery) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		profile := profileFrom(ctx)
		if !public {
			if err := b.canGet(ctx, c, profile); err != nil {
				return nil, err
			}
		}

		params := documents.FindDocsParams{
			Model:   c.Model,
			Profile: profile,
			Limit:   intArg(p.Args["limit"]),
			Page:    intPtrArg(p.Args["page"]),
			Offset:  intPtrArg(p.Args["offset"]),
		}
		var conditions bson.A
		if raw, ok := p.Args["filter"]; ok && raw != nil {
			filter, err := filterArg(raw)
			if err != nil {
				return nil, err
			}
			if public {
				if err := c.checkPublicFilter(filter); err != nil {
					return nil, err
				}
			}
			conditions = append(conditions, filter)
		}
		if ids, ok := schema.AsSlice(p.Args["_ids"]); ok && len(ids) > 0 {
			conditions = append(conditions, bson.M{c.Model.AccessorMany(): bson.M{"$in": ids}})
		}
		switch len(conditions) {
		case 0:
		case 1:
			params.Filter, _ = conditions[0].(bson.M)
		default:
			params.Filter = bson.M{"$and": conditions}
		}
		if raw, ok := p.Args["sort"]; ok && raw != nil {
			sortBy, err := sortArg(raw)
			if err != nil {
				return nil, err
			}
			params.Sort = sortBy
		}
		if custom != nil {
			params.Pipeline = customPipeline(custom)
		}
		if public {
			params.AccessRule, params.Project, params.Published = c.PublicRule(b.deps.Documents.Now()), c.publicProjection(), true
		}

		page, err := b.deps.Documents.FindDocs(ctx, params)
		if err != nil {
			return nil, err
		}
		if fields, ok := selectedFields(p.Info).At("docs"); ok {
			if err := b.resolveRefs(ctx, c, page.Docs, fields, public); err != nil {
				return nil, err
			}
		}
		return pagedMap(page), nil
	}
}

func (b *builder) bySlug(c *Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		slug, _ := p.Args["slug"].(string)
		params := documents.FindDocParams{
			Model:      c.Model,
			By:         "slug",
			Value:      slug,
			AccessRule: c.PublicRule(b.deps.Documents.Now()),
			Project:    c.publicProjection(),
			Published:  true,
		}
		if date, ok := p.Args["date"].(time.Time); ok {
			field := "timestamps.published_at"
			if c.Spec.PublicRules != nil && c.Spec.PublicRules.SlugDateField != "" {
				field = c.Spec.PublicRules.SlugDateField
			}
			day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
			params.Filter = bson.M{field: bson.M{"$gte": day, "$lt": day.Add(24 * time.Hour)}}
		}
		doc, err := b.deps.Documents.FindDoc(ctx, params)
		if err != nil || doc == nil {
			return nil, err
		}
		if err := b.resolveRefs(ctx, c, []bson.M{doc}, selectedFields(p.Info), true); err != nil {
			return nil, err
		}
		return doc, nil
	}
}

func (b *builder) actionAccess(c *Collection) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		profile := profileFrom(ctx)
		if profile == nil {
			return nil, apierr.Unauthenticated("")
		}
		var doc bson.M
		if id, ok := p.Args["_id"].(primitive.ObjectID); ok {
			var err error
			doc, err = b.deps.Documents.FindDoc(ctx, documents.FindDocParams{
				Model: c.Model, Profile: profile, By: "_id", Value: id,
			})
			if err != nil {
				return nil, err
			}
			if doc == nil {
				return nil, apierr.NotFound(fmt.Sprintf("%s %s", c.Names.Type, id.Hex()))
			}
		}
		out := make(map[string]interface{}, len(actionAccessFields))
		for _, name := range actionAccessFields {
			ok, err := rbac.Allowed(ctx, b.deps.Documents.Checker(), rbac.PermissionCheck{
				Collection: c.Names.Type,
				Action:     rbac.Action(name),
				Access:     c.Model.Access,
				Profile:    profile,
				Doc:        doc,
			})
			if err != nil {
				return nil, err
			}
			out[name] = ok
		}
		return out, nil
	}
}

func (b *builder) mutate(c *Collection, kind OpKind) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		ctx := p.Context
		svc := b.deps.Documents
		profile := profileFrom(ctx)
		id, _ := p.Args["_id"].(primitive.ObjectID)
		target := documents.TargetParams{Model: c.Model, Profile: profile, ID: id}
		toggle := func(arg string) documents.ToggleParams {
			return documents.ToggleParams{Model: c.Model, Profile: profile, ID: id, On: boolArg(p.Args[arg], true)}
		}

		var (
			doc bson.M
			err error
		)
		switch kind {
		case OpCreate:
			input := inputDoc(p.Args["input"])
			if err := c.ValidateInput(input, true); err != nil {
				return nil, err
			}
			doc, err = svc.CreateDoc(ctx, documents.CreateParams{Model: c.Model, Profile: profile, Data: input})
		case OpModify:
			input := inputDoc(p.Args["input"])
			if err := c.ValidateInput(input, false); err != nil {
				return nil, err
			}
			doc, err = svc.ModifyDoc(ctx, documents.ModifyParams{Model: c.Model, Profile: profile, ID: id, Data: input})
		case OpClone:
			doc, err = svc.CloneDoc(ctx, target)
		case OpDelete:
			doc, err = svc.DeleteDoc(ctx, target)
		case OpHide:
			doc, err = svc.HideDoc(ctx, toggle("hide"))
		case OpArchive:
			doc, err = svc.ArchiveDoc(ctx, toggle("archive"))
		case OpLock:
			doc, err = svc.LockDoc(ctx, toggle("lock"))
		case OpWatch:
			params := documents.WatchParams{Model: c.Model, Profile: profile, ID: id, Watch: boolArg(p.Args["watch"], true)}
			if watcher, ok := p.Args["watcher"].(primitive.ObjectID); ok {
				params.Watcher = &watcher
			}
			doc, err = svc.WatchDoc(ctx, params)
		case OpPublish:
			params := documents.PublishParams{Model: c.Model, Profile: profile, ID: id, Publish: boolArg(p.Args["publish"], true)}
			if at, ok := p.Args["published_at"].(time.Time); ok {
				params.PublishedAt = &at
			}
			doc, err = svc.PublishDoc(ctx, params)
		default:
			return nil, apierr.Internal(fmt.Sprintf("unknown operation kind %d", kind), nil)
		}
		if err != nil || doc == nil {
			return nil, err
		}
		if err := b.resolveRefs(ctx, c, []bson.M{doc}, selectedFields(p.Info), false); err != nil {
			return nil, err
		}
		return doc, nil
	}
}

// PublicRule is the access rule of the public queries at now: never hidden
// or archived, published (or past its scheduled date) when the collection
// publishes, and narrowed by the configured public filter.
func (c *Collection) PublicRule(now time.Time) bson.M {
	conditions := bson.A{
		bson.M{"hidden": bson.M{"$ne": true}},
		bson.M{"archived": bson.M{"$ne": true}},
	}
	if c.Spec.CanPublish {
		conditions = append(conditions, documents.PublishedRule(now))
	}
	if c.Spec.PublicRules != nil && len(c.Spec.PublicRules.Filter) > 0 {
		filter, _ := schema.Normalize(c.Spec.PublicRules.Filter).(map[string]interface{})
		conditions = append(conditions, bson.M(filter))
	}
	return bson.M{"$and": conditions}
}

func (c *Collection) publicProjection() bson.M {
	project := bson.M{}
	for _, p := range c.public {
		project[p] = 1
	}
	return project
}

func pagedMap(page *documents.Paged) map[string]interface{} {
	docs := make([]interface{}, len(page.Docs))
	for i, d := range page.Docs {
		docs[i] = d
	}
	out := map[string]interface{}{
		"docs":          docs,
		"totalDocs":     page.TotalDocs,
		"limit":         page.Limit,
		"page":          page.Page,
		"offset":        page.Offset,
		"totalPages":    page.TotalPages,
		"pagingCounter": page.PagingCounter,
		"hasPrevPage":   page.HasPrevPage,
		"hasNextPage":   page.HasNextPage,
		"prevPage":      nil,
		"nextPage":      nil,
	}
	if page.PrevPage != nil {
		out["prevPage"] = *page.PrevPage
	}
	if page.NextPage != nil {
		out["nextPage"] = *page.NextPage
	}
	return out
}

func inputDoc(v interface{}) bson.M {
	m, ok := schema.Normalize(v).(map[string]interface{})
	if !ok {
		return bson.M{}
	}
	return bson.M(m)
}

func intArg(v interface{}) int {
	n, _ := v.(int)
	return n
}

func intPtrArg(v interface{}) *int {
	n, ok := v.(int)
	if !ok {
		return nil
	}
	return &n
}

func boolArg(v interface{}, fallback bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}

// filterArg validates a caller supplied match filter
func filterArg(v interface{}) (bson.M, error) {
	m, ok := schema.Normalize(v).(map[string]interface{})
	if !ok {
		return nil, apierr.Validation("filter must be an object")
	}
	if op := forbiddenOperator(m); op != "" {
		return nil, apierr.Validation("filter operator " + op + " is not allowed")
	}
	return bson.M(m), nil
}

// checkPublicFilter refuses public filters that match on fields the public
// type does not expose
func (c *Collection) checkPublicFilter(filter map[string]interface{}) error {
	if field := c.hiddenFilterField(filter); field != "" {
		return apierr.Validation("filter field " + field + " is not public")
	}
	return nil
}

func (c *Collection) hiddenFilterField(filter map[string]interface{}) string {
	for key, value := range filter {
		switch key {
		case "$and", "$or", "$nor":
			items, _ := schema.AsSlice(value)
			for _, item := range items {
				sub, ok := schema.AsMap(item)
				if !ok {
					return key
				}
				if field := c.hiddenFilterField(sub); field != "" {
					return field
				}
			}
			continue
		}
		if !c.publicPath(key) {
			return key
		}
	}
	return ""
}

// publicPath reports whether path is a public path or lies below one.
// Operators such as $expr never are.
func (c *Collection) publicPath(path string) bool {
	if strings.HasPrefix(path, "$") {
		return false
	}
	for _, p := range c.public {
		if path == p || strings.HasPrefix(path, p+".") {
			return true
		}
	}
	return false
}

func forbiddenOperator(v interface{}) string {
	if m, ok := v.(map[string]interface{}); ok {
		for k, item := range m {
			if forbiddenOperators[k] {
				return k
			}
			if op := forbiddenOperator(item); op != "" {
				return op
			}
		}
	}
	if items, ok := v.([]interface{}); ok {
		for _, item := range items {
			if op := forbiddenOperator(item); op != "" {
				return op
			}
		}
	}
	return ""
}

// sortArg turns {field: 1|-1|"asc"|"desc"} into a sort document. Keys are
// ordered by name since JSON objects carry no order.
func sortArg(v interface{}) (bson.D, error) {
	m, ok := schema.AsMap(v)
	if !ok {
		return nil, apierr.Validation("sort must be an object")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		dir := 0
		switch d := m[k].(type) {
		case int:
			dir = d
		case int64:
			dir = int(d)
		case float64:
			dir = int(d)
		case string:
			switch strings.ToLower(d) {
			case "asc", "ascending":
				dir = 1
			case "desc", "descending":
				dir = -1
			}
		}
		if dir != 1 && dir != -1 {
			return nil, apierr.Validation(fmt.Sprintf("sort direction for %s must be 1 or -1", k))
		}
		out = append(out, bson.E{Key: k, Value: dir})
	}
	return out, nil
}

func customPipeline(q *CustomQuery) bson.A {
	pipeline := make(bson.A, 0, len(q.Pipeline))
	for _, stage := range q.Pipeline {
		if m, ok := schema.Normalize(stage).(map[string]interface{}); ok {
			pipeline = append(pipeline, bson.M(m))
		}
	}
	return pipeline
}
