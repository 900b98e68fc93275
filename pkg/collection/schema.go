package collection

import (
	"context"
	"sort"

	"github.com/graphql-go/graphql"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// FileSigner issues presigned upload urls for the signS3 mutation
type FileSigner interface {
	SignUpload(ctx context.Context, tenant, fileName, fileType string) (signedRequest, location string, err error)
}

// Deps are the collaborators of the generated resolvers
type Deps struct {
	Documents *documents.Service
	// Files is optional. Without it signS3 fails with an upstream error.
	Files FileSigner
}

// Schema is the executable GraphQL schema of one tenant
type Schema struct {
	Tenant     string
	TypeDefs   string
	Executable graphql.Schema

	collections map[string]*Collection
	names       []string
}

// Collection returns a generated collection by type name
func (s *Schema) Collection(name string) (*Collection, bool) {
	c, ok := s.collections[name]
	return c, ok
}

// Model returns the document model of a collection
func (s *Schema) Model(name string) (*documents.Model, bool) {
	c, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	return c.Model, true
}

// Definition returns the schema definition of a collection
func (s *Schema) Definition(name string) (schema.Def, bool) {
	c, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	return c.Def, true
}

// Collections lists the collections, sorted by name
func (s *Schema) Collections() []*Collection {
	out := make([]*Collection, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.collections[n])
	}
	return out
}

// Do executes a GraphQL request against the schema
func (s *Schema) Do(ctx context.Context, query string, variables map[string]interface{}, operationName string) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         s.Executable,
		RequestString:  query,
		VariableValues: variables,
		OperationName:  operationName,
		Context:        ctx,
	})
}

// Build assembles the executable schema of a tenant. System collections
// are added when missing. Every reference must name a known collection.
func Build(tenant string, collections []*Collection, deps Deps) (*Schema, error) {
	s := &Schema{Tenant: tenant, collections: map[string]*Collection{}}
	for _, c := range collections {
		if _, dup := s.collections[c.Names.Type]; dup {
			return nil, apierr.Schema("tenant %s: collection %s is defined twice", tenant, c.Names.Type)
		}
		s.collections[c.Names.Type] = c
	}
	system, err := System(tenant)
	if err != nil {
		return nil, err
	}
	for _, c := range system {
		if _, ok := s.collections[c.Names.Type]; !ok {
			s.collections[c.Names.Type] = c
		}
	}
	for name := range s.collections {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	for _, c := range s.Collections() {
		for _, f := range schema.References(schema.Deconstruct(c.Def)) {
			if _, ok := s.collections[f.Def.Reference.Collection]; !ok {
				return nil, apierr.Schema("collection %s: field %s references unknown collection %q",
					c.Names.Type, f.Path, f.Def.Reference.Collection)
			}
		}
	}

	s.TypeDefs = TypeDefs(s.Collections())
	if _, err := ValidateTypeDefs(tenant, s.TypeDefs); err != nil {
		return nil, err
	}

	b := &builder{
		schema:  s,
		deps:    deps,
		objects: map[string]*graphql.Object{},
		inputs:  map[string]*graphql.InputObject{},
	}
	executable, err := b.build()
	if err != nil {
		return nil, apierr.Schema("tenant %s: %v", tenant, err)
	}
	s.Executable = executable
	return s, nil
}

type builder struct {
	schema  *Schema
	deps    Deps
	objects map[string]*graphql.Object
	inputs  map[string]*graphql.InputObject
}

var actionAccessType = func() *graphql.Object {
	fields := graphql.Fields{}
	for _, name := range actionAccessFields {
		fields[name] = &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Resolve: mapValue(name)}
	}
	return graphql.NewObject(graphql.ObjectConfig{Name: "CollectionActionAccess", Fields: fields})
}()

var collectionInfoType = graphql.NewObject(graphql.ObjectConfig{
	Name: "CollectionInfo",
	Fields: graphql.Fields{
		"name":            &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: mapValue("name")},
		"pluralName":      &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: mapValue("pluralName")},
		"canPublish":      &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Resolve: mapValue("canPublish")},
		"withPermissions": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Resolve: mapValue("withPermissions")},
		"singleDocument":  &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean), Resolve: mapValue("singleDocument")},
		"previewUrl":      &graphql.Field{Type: graphql.String, Resolve: mapValue("previewUrl")},
	},
})

var signS3Type = graphql.NewObject(graphql.ObjectConfig{
	Name: "SignS3Result",
	Fields: graphql.Fields{
		"signedRequest": &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: mapValue("signedRequest")},
		"location":      &graphql.Field{Type: graphql.NewNonNull(graphql.String), Resolve: mapValue("location")},
	},
})

func (b *builder) build() (graphql.Schema, error) {
	for _, c := range b.schema.Collections() {
		for _, obj := range c.Objects {
			b.objects[obj.Name] = b.object(obj)
		}
		for _, in := range c.Inputs {
			b.inputs[in.Name] = b.input(in)
		}
	}

	query := graphql.Fields{
		"collections": &graphql.Field{
			Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(collectionInfoType))),
			Resolve: b.collectionsInfo,
		},
	}
	mutation := graphql.Fields{
		"signS3": &graphql.Field{
			Type: graphql.NewNonNull(signS3Type),
			Args: graphql.FieldConfigArgument{
				"fileName": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"fileType": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: b.signS3,
		},
	}
	for _, c := range b.schema.Collections() {
		for _, op := range c.Queries {
			query[op.Name] = b.operation(c, op)
		}
		for _, op := range c.Mutations {
			mutation[op.Name] = b.operation(c, op)
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: query}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutation}),
	})
}

func (b *builder) outputType(t TypeRef) graphql.Output {
	var out graphql.Output
	switch t.Name {
	case "String":
		out = graphql.String
	case "Int":
		out = graphql.Int
	case "Float":
		out = graphql.Float
	case "Boolean":
		out = graphql.Boolean
	case "ObjectID":
		out = ObjectIDScalar
	case "Date":
		out = DateScalar
	case "JSON":
		out = JSONScalar
	case "CollectionActionAccess":
		out = actionAccessType
	default:
		out = b.objects[t.Name]
	}
	if t.List {
		out = graphql.NewList(out)
	}
	if t.NonNull {
		out = graphql.NewNonNull(out)
	}
	return out
}

func (b *builder) inputType(t TypeRef) graphql.Input {
	var in graphql.Input
	switch t.Name {
	case "String":
		in = graphql.String
	case "Int":
		in = graphql.Int
	case "Float":
		in = graphql.Float
	case "Boolean":
		in = graphql.Boolean
	case "ObjectID":
		in = ObjectIDScalar
	case "Date":
		in = DateScalar
	case "JSON":
		in = JSONScalar
	default:
		in = b.inputs[t.Name]
	}
	if t.List {
		in = graphql.NewList(in)
	}
	if t.NonNull {
		in = graphql.NewNonNull(in)
	}
	return in
}

// object builds an output type. Fields are resolved lazily so collections
// may reference each other in cycles.
func (b *builder) object(obj Object) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: obj.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for _, f := range obj.Fields {
				fields[f.Name] = &graphql.Field{
					Type:    b.outputType(f.Type),
					Resolve: fieldResolver(f).Resolve,
				}
			}
			return fields
		}),
	})
}

// input builds an input type. Nested inputs are looked up lazily.
func (b *builder) input(in Input) *graphql.InputObject {
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name: in.Name,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, f := range in.Fields {
				fields[f.Name] = &graphql.InputObjectFieldConfig{Type: b.inputType(f.Type)}
			}
			return fields
		}),
	})
}

func (b *builder) operation(c *Collection, op Operation) *graphql.Field {
	args := graphql.FieldConfigArgument{}
	for _, a := range op.Args {
		cfg := &graphql.ArgumentConfig{Type: b.inputType(a.Type)}
		if a.Default != nil {
			cfg.DefaultValue = a.Default
		}
		args[a.Name] = cfg
	}
	return &graphql.Field{
		Type:    b.outputType(op.Type),
		Args:    args,
		Resolve: b.resolverFor(c, op),
	}
}

func (b *builder) collectionsInfo(p graphql.ResolveParams) (interface{}, error) {
	var out []interface{}
	for _, c := range b.schema.Collections() {
		out = append(out, map[string]interface{}{
			"name":            c.Names.Type,
			"pluralName":      c.Names.Many,
			"canPublish":      c.Spec.CanPublish,
			"withPermissions": c.Spec.WithPermissions,
			"singleDocument":  c.Options.SingleDocument,
			"previewUrl":      nilIfEmpty(c.Options.PreviewURL),
		})
	}
	return out, nil
}

func (b *builder) signS3(p graphql.ResolveParams) (interface{}, error) {
	if profileFrom(p.Context) == nil {
		return nil, apierr.Unauthenticated("")
	}
	if b.deps.Files == nil {
		return nil, apierr.Upstream("file uploads are not configured", nil)
	}
	name, _ := p.Args["fileName"].(string)
	fileType, _ := p.Args["fileType"].(string)
	signed, location, err := b.deps.Files.SignUpload(p.Context, b.schema.Tenant, name, fileType)
	if err != nil {
		return nil, err
	}
	return bson.M{"signedRequest": signed, "location": location}, nil
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
