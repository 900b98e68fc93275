package collection

import (
	"github.com/graphql-go/graphql"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// FieldResolver produces the value of one generated field from its parent
type FieldResolver interface {
	Resolve(p graphql.ResolveParams) (interface{}, error)
}

func fieldResolver(f Field) FieldResolver {
	switch f.Kind {
	case ResolveObject:
		return objectField{key: f.Path}
	case ResolveDocArray:
		return docArrayField{key: f.Path}
	case ResolveRefOne:
		return refOneField{key: f.Path}
	case ResolveRefMany:
		return refManyField{key: f.Path}
	default:
		return scalarField{key: f.Path}
	}
}

func valueAt(source interface{}, key string) interface{} {
	m, ok := schema.AsMap(source)
	if !ok {
		return nil
	}
	return m[key]
}

func mapValue(key string) graphql.FieldResolveFn {
	return scalarField{key: key}.Resolve
}

type scalarField struct{ key string }

func (f scalarField) Resolve(p graphql.ResolveParams) (interface{}, error) {
	return valueAt(p.Source, f.key), nil
}

type objectField struct{ key string }

func (f objectField) Resolve(p graphql.ResolveParams) (interface{}, error) {
	if m, ok := schema.AsMap(valueAt(p.Source, f.key)); ok {
		return m, nil
	}
	return nil, nil
}

type docArrayField struct{ key string }

func (f docArrayField) Resolve(p graphql.ResolveParams) (interface{}, error) {
	v := valueAt(p.Source, f.key)
	if docs, ok := v.([]bson.M); ok {
		out := make([]interface{}, len(docs))
		for i, d := range docs {
			out[i] = d
		}
		return out, nil
	}
	if items, ok := schema.AsSlice(v); ok {
		return items, nil
	}
	return nil, nil
}

// refOneField reads a reference the root resolver already replaced with
// its document. Ids left in place were selected for _id only.
type refOneField struct{ key string }

func (f refOneField) Resolve(p graphql.ResolveParams) (interface{}, error) {
	return referenced(valueAt(p.Source, f.key)), nil
}

type refManyField struct{ key string }

func (f refManyField) Resolve(p graphql.ResolveParams) (interface{}, error) {
	items, ok := schema.AsSlice(valueAt(p.Source, f.key))
	if !ok {
		return nil, nil
	}
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		if doc := referenced(item); doc != nil {
			out = append(out, doc)
		}
	}
	return out, nil
}

func referenced(v interface{}) interface{} {
	if m, ok := schema.AsMap(v); ok {
		return m
	}
	switch id := v.(type) {
	case primitive.ObjectID:
		return bson.M{"_id": id}
	case string:
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			return bson.M{"_id": oid}
		}
	}
	return nil
}
