package references

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/schema"
)

var tracer = otel.Tracer("github.com/platinummonkey/cristata/pkg/references")

// ErrAmbiguousPath is returned for references inside doc arrays nested in
// other doc arrays. Their positional path cannot address one element.
var ErrAmbiguousPath = errors.New("references: doubly nested array paths cannot be resolved")

// Loader fetches documents by id. Fields lists the dotted paths to return;
// _id is always returned.
type Loader interface {
	Load(ctx context.Context, collection string, ids []primitive.ObjectID, fields []string) ([]bson.M, error)
}

// Definitions looks up the schema of a collection by name
type Definitions func(collection string) (schema.Def, bool)

// Resolver replaces requested reference ids with the documents they point
// to. A Resolver remembers every lookup it started, so it should live for
// one request.
type Resolver struct {
	loader Loader
	defs   Definitions

	mu      sync.Mutex
	futures map[string]*future

	// placing serializes writes into result documents shared by
	// concurrently filled fields.
	placing sync.Mutex
}

// NewResolver creates a resolver for one request
func NewResolver(loader Loader, defs Definitions) *Resolver {
	return &Resolver{loader: loader, defs: defs, futures: map[string]*future{}}
}

// future is a lookup of one document that may still be in flight. Requests
// for the same document share the future when it selects enough fields.
type future struct {
	fields FieldSet
	done   chan struct{}
	doc    bson.M
	err    error
}

func (f *future) wait(ctx context.Context) (bson.M, error) {
	select {
	case <-f.done:
		return f.doc, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func futureKey(collection string, id primitive.ObjectID) string {
	return collection + "/" + id.Hex()
}

// placement is one location holding reference ids
type placement struct {
	container map[string]interface{}
	key       string
	ids       []primitive.ObjectID
	many      bool
}

// request groups every placement of one reference field
type request struct {
	target     string
	fields     FieldSet
	placements []placement
}

// Resolve resolves the requested references of docs in place. docs belong
// to collection; fields is what the caller selected on them.
func (r *Resolver) Resolve(ctx context.Context, collection string, docs []bson.M, fields FieldSet) error {
	if len(docs) == 0 || len(fields) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "references.Resolve", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("docs", len(docs)),
	))
	defer span.End()

	def, ok := r.defs(collection)
	if !ok {
		return apierr.Schema("unknown collection %q", collection)
	}

	requests, err := collect(def, docs, fields)
	if err != nil {
		return err
	}

	// Every reference field of this level is started before any is
	// awaited, so identical ids across fields share one lookup.
	byTarget := map[string][]*request{}
	for _, req := range requests {
		if req.fields.OnlyID() {
			continue
		}
		if _, ok := r.defs(req.target); !ok {
			return apierr.Schema("reference to unknown collection %q", req.target)
		}
		byTarget[req.target] = append(byTarget[req.target], req)
	}
	for target, reqs := range byTarget {
		r.start(ctx, target, reqs)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		req := req
		g.Go(func() error {
			return r.fill(gctx, req)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// start ensures a future exists for every id of reqs, batching the missing
// ones of a target into a single load.
func (r *Resolver) start(ctx context.Context, target string, reqs []*request) {
	wanted := map[primitive.ObjectID]FieldSet{}
	var order []primitive.ObjectID
	for _, req := range reqs {
		for _, p := range req.placements {
			for _, id := range p.ids {
				if existing, ok := wanted[id]; ok {
					wanted[id] = existing.Merge(req.fields)
					continue
				}
				wanted[id] = req.fields
				order = append(order, id)
			}
		}
	}

	r.mu.Lock()
	var batch []primitive.ObjectID
	union := FieldSet{}
	created := map[primitive.ObjectID]*future{}
	for _, id := range order {
		key := futureKey(target, id)
		if f, ok := r.futures[key]; ok && f.fields.covers(wanted[id]) {
			continue
		}
		f := &future{fields: wanted[id], done: make(chan struct{})}
		if prev, ok := r.futures[key]; ok {
			f.fields = prev.fields.Merge(f.fields)
		}
		r.futures[key] = f
		created[id] = f
		batch = append(batch, id)
		union = union.Merge(f.fields)
	}
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	go r.load(ctx, target, batch, union, created)
}

// load runs one batched lookup and completes its futures. Nested
// references are resolved by each request on its own copy, so a future
// never waits on another lookup.
func (r *Resolver) load(ctx context.Context, target string, batch []primitive.ObjectID, fields FieldSet, futures map[primitive.ObjectID]*future) {
	def, _ := r.defs(target)
	docs, err := r.loader.Load(ctx, target, batch, projectionPaths(def, fields))

	found := make(map[primitive.ObjectID]bson.M, len(docs))
	for _, d := range docs {
		if id, ok := objectID(d["_id"]); ok {
			found[id] = d
		}
	}
	for id, f := range futures {
		f.doc, f.err = found[id], err
		close(f.done)
	}
}

// fill waits for the lookups of a request, resolves their nested
// references and writes the documents into every placement.
func (r *Resolver) fill(ctx context.Context, req *request) error {
	if req.fields.OnlyID() {
		for _, p := range req.placements {
			resolved := make(bson.A, 0, len(p.ids))
			for _, id := range p.ids {
				resolved = append(resolved, bson.M{"_id": id})
			}
			r.place(p, resolved)
		}
		return nil
	}

	loaded := map[primitive.ObjectID]bson.M{}
	var docs []bson.M
	for _, p := range req.placements {
		for _, id := range p.ids {
			if _, ok := loaded[id]; ok {
				continue
			}
			r.mu.Lock()
			f := r.futures[futureKey(req.target, id)]
			r.mu.Unlock()
			doc, err := f.wait(ctx)
			if err != nil {
				return err
			}
			if doc != nil {
				doc = schema.CloneDoc(doc)
				docs = append(docs, doc)
			}
			loaded[id] = doc
		}
	}

	if err := r.Resolve(ctx, req.target, docs, req.fields); err != nil {
		return err
	}

	for _, p := range req.placements {
		resolved := make(bson.A, 0, len(p.ids))
		for _, id := range p.ids {
			if doc := loaded[id]; doc != nil {
				resolved = append(resolved, doc)
			}
		}
		r.place(p, resolved)
	}
	return nil
}

func (r *Resolver) place(p placement, resolved bson.A) {
	r.placing.Lock()
	defer r.placing.Unlock()
	switch {
	case p.many:
		schema.Set(p.container, p.key, resolved)
	case len(resolved) == 0:
		schema.Set(p.container, p.key, nil)
	default:
		schema.Set(p.container, p.key, resolved[0])
	}
}

// collect finds every requested reference field and where its ids live
func collect(def schema.Def, docs []bson.M, fields FieldSet) ([]*request, error) {
	var out []*request
	for _, f := range schema.References(schema.Deconstruct(def)) {
		sub, ok := fields.At(f.Path)
		if !ok {
			continue
		}
		if f.ArrayDepth() > 1 {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousPath, f.Path)
		}
		req := &request{target: f.Def.Reference.Collection, fields: sub}
		for _, doc := range docs {
			for _, p := range placementsFor(doc, f) {
				req.placements = append(req.placements, p)
			}
		}
		if len(req.placements) > 0 {
			out = append(out, req)
		}
	}
	return out, nil
}

func placementsFor(doc bson.M, f schema.Field) []placement {
	many := f.Def.Reference.Many || f.Def.Array
	if f.ArrayDepth() == 0 {
		return placementAt(doc, f.Path, many)
	}

	parent := f.ArrayParent()
	rel := strings.TrimPrefix(f.Path, parent+"."+schema.PositionalMarker+".")
	items, _ := schema.AsSlice(schema.Get(doc, parent))
	var out []placement
	for _, item := range items {
		elem, ok := schema.AsMap(item)
		if !ok {
			continue
		}
		out = append(out, placementAt(elem, rel, many)...)
	}
	return out
}

func placementAt(container map[string]interface{}, path string, many bool) []placement {
	value := schema.Get(container, path)
	if value == nil {
		return nil
	}
	var ids []primitive.ObjectID
	if items, ok := schema.AsSlice(value); ok {
		for _, item := range items {
			if id, ok := objectID(item); ok {
				ids = append(ids, id)
			}
		}
	} else if id, ok := objectID(value); ok {
		ids = append(ids, id)
	}
	return []placement{{container: container, key: path, ids: ids, many: many}}
}

// projectionPaths turns a field set into storage paths. A selection below
// a leaf field (the sub-fields of a reference or a doc array element)
// projects the whole field.
func projectionPaths(def schema.Def, fields FieldSet) []string {
	seen := map[string]bool{"_id": true}
	out := []string{"_id"}
	for _, path := range fields.Paths() {
		segments := strings.Split(path, ".")
		project := path
		for i := 1; i <= len(segments); i++ {
			prefix := strings.Join(segments[:i], ".")
			if _, ok := def.Lookup(prefix); ok {
				project = prefix
				break
			}
		}
		if !seen[project] {
			seen[project] = true
			out = append(out, project)
		}
	}
	return out
}

func objectID(v interface{}) (primitive.ObjectID, bool) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id, true
	case string:
		oid, err := primitive.ObjectIDFromHex(id)
		return oid, err == nil
	}
	if m, ok := schema.AsMap(v); ok {
		return objectID(m["_id"])
	}
	return primitive.NilObjectID, false
}
