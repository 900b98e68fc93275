package collection

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// reservedTypes cannot be used as collection names
var reservedTypes = map[string]bool{
	"Query":                  true,
	"Mutation":               true,
	"Subscription":           true,
	"ObjectID":               true,
	"Date":                   true,
	"JSON":                   true,
	"CollectionActionAccess": true,
	"CollectionInfo":         true,
	"SignS3Result":           true,
}

// Generate compiles a collection spec for a tenant. It does not modify
// spec and returns equal output for equal input.
func Generate(spec Spec, tenant string) (*Collection, error) {
	if _, system := systemNames[spec.Name]; system {
		return nil, apierr.Schema("collection name %q is reserved for a system collection", spec.Name)
	}
	return generate(spec, tenant, false)
}

func generate(spec Spec, tenant string, system bool) (*Collection, error) {
	if !namePattern.MatchString(spec.Name) {
		return nil, apierr.Schema("collection name %q must start with an upper case letter and be alphanumeric", spec.Name)
	}
	if reservedTypes[spec.Name] || strings.HasPrefix(spec.Name, "Pruned") || strings.HasPrefix(spec.Name, "Paged") {
		return nil, apierr.Schema("collection name %q is reserved", spec.Name)
	}

	raw, _ := schema.Normalize(spec.SchemaDef).(map[string]interface{})
	authored, err := schema.Parse(raw)
	if err != nil {
		return nil, apierr.Schema("collection %s: %v", spec.Name, err)
	}
	layers := []schema.Def{authored, schema.BaseFields()}
	if spec.CanPublish {
		layers = append(layers, schema.PublishableFields())
	}
	if spec.WithPermissions {
		layers = append(layers, schema.PermissionFields())
	}
	def := schema.Merge(layers...)
	if err := checkFieldNames(def, ""); err != nil {
		return nil, apierr.Schema("collection %s: %v", spec.Name, err)
	}

	access, err := compileAccess(spec)
	if err != nil {
		return nil, apierr.Schema("collection %s: %v", spec.Name, err)
	}

	opts := spec.Options.normalized()
	if system {
		opts = systemOptions(opts)
	}
	for _, accessor := range []string{opts.Accessor.One, opts.Accessor.Many} {
		if accessor == "" {
			continue
		}
		if _, ok := def.Lookup(accessor); !ok {
			return nil, apierr.Schema("collection %s: accessor %q is not a field", spec.Name, accessor)
		}
	}

	names := NamesFor(spec.Name)
	c := &Collection{
		Spec:      spec,
		Names:     names,
		Def:       def,
		Options:   opts,
		System:    system,
		Resolvers: map[string]ResolverKind{},
		Model: &documents.Model{
			Name:              spec.Name,
			Collection:        names.Collection,
			Tenant:            tenant,
			Def:               def,
			Access:            access,
			CanPublish:        spec.CanPublish,
			WithPermissions:   spec.WithPermissions,
			PublishedCopy:     spec.CanPublish && opts.IndependentPublishedDocCopy,
			Collaborative:     !system,
			MandatoryWatchers: append([]string(nil), opts.MandatoryWatchers...),
			Accessor:          documents.Accessor{One: opts.Accessor.One, Many: opts.Accessor.Many},
		},
	}

	for _, f := range schema.Deconstruct(def) {
		if f.Def.Public && f.ArrayDepth() == 0 {
			c.public = append(c.public, f.Path)
		}
		if f.Def.Rule != nil && f.Def.Rule.Match != "" {
			re, err := regexp.Compile(f.Def.Rule.Match)
			if err != nil {
				return nil, apierr.Schema("collection %s: field %s has an invalid rule: %v", spec.Name, f.Path, err)
			}
			c.rules = append(c.rules, inputRule{path: f.Path, match: re, message: f.Def.Rule.Message})
		}
		if f.Def.Required && f.Def.Default == nil && f.ArrayDepth() == 0 && !isSystemPath(f.Path) {
			c.required = append(c.required, f.Path)
		}
	}
	c.public = append([]string{"_id"}, withoutPath(c.public, "_id")...)

	c.buildObjects()
	c.buildInputs()
	c.buildOperations()
	c.TypeDefs = renderCollection(c)
	return c, nil
}

func checkFieldNames(def schema.Def, prefix string) error {
	for key, node := range def {
		if strings.HasPrefix(key, "__") || !fieldPattern.MatchString(key) {
			return fmt.Errorf("field %q is not a valid name", joinPath(prefix, key))
		}
		switch {
		case !node.IsField():
			if err := checkFieldNames(node.Children, joinPath(prefix, key)); err != nil {
				return err
			}
		case node.Field.IsDocArray():
			if err := checkFieldNames(node.Field.Docs, joinPath(prefix, key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func withoutPath(paths []string, drop string) []string {
	out := paths[:0:0]
	for _, p := range paths {
		if p != drop {
			out = append(out, p)
		}
	}
	return out
}

func sortedNodes(def schema.Def) []string {
	keys := make([]string, 0, len(def))
	for k := range def {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarName(t schema.FieldType) string {
	switch t {
	case schema.TypeNumber:
		return "Int"
	case schema.TypeFloat:
		return "Float"
	case schema.TypeBoolean:
		return "Boolean"
	case schema.TypeDate:
		return "Date"
	case schema.TypeObjectID:
		return "ObjectID"
	case schema.TypeJSON:
		return "JSON"
	default:
		return "String"
	}
}

// buildObjects emits the output type of the collection, its nested object
// types, the pruned public variants and the paged wrappers.
func (c *Collection) buildObjects() {
	c.addObject(c.Names.Type, c.Def, "", false, false)
	c.addObject(c.PrunedName(), c.Def, "", true, false)
	c.Objects = append(c.Objects, pagedObject(c.Names.Type), pagedObject(c.PrunedName()))
}

// addObject appends the object type for def and reports whether it has any
// fields. Pruned objects keep public fields only; every element field of a
// public doc array counts as public.
func (c *Collection) addObject(name string, def schema.Def, prefix string, pruned, allPublic bool) bool {
	idx := len(c.Objects)
	c.Objects = append(c.Objects, Object{Name: name})

	for _, key := range sortedNodes(def) {
		node := def[key]
		path := joinPath(prefix, key)
		field := Field{Name: key, Path: key}
		hidden := pruned && !allPublic && node.IsField() && !node.Field.Public && path != "_id"

		switch {
		case hidden:
			continue
		case !node.IsField():
			child := typeName(name, key)
			if !c.addObject(child, node.Children, path, pruned, allPublic) {
				continue
			}
			field.Type = TypeRef{Name: child}
			field.Kind = ResolveObject
		case node.Field.IsReference():
			target := node.Field.Reference.Collection
			field.Target = target
			if pruned {
				target = "Pruned" + target
			}
			field.Type = TypeRef{Name: target, List: node.Field.Reference.Many}
			field.Kind = ResolveRefOne
			if node.Field.Reference.Many {
				field.Kind = ResolveRefMany
			}
		case node.Field.IsDocArray():
			child := typeName(name, key)
			if !c.addObject(child, node.Field.Docs, "", pruned, pruned) {
				continue
			}
			field.Type = TypeRef{Name: child, List: true}
			field.Kind = ResolveDocArray
		default:
			field.Scalar = node.Field.Type
			field.Type = TypeRef{Name: scalarName(node.Field.Type), List: node.Field.Array}
			field.Kind = ResolveScalar
			if path == "_id" {
				field.Type.NonNull = true
			}
		}
		c.Objects[idx].Fields = append(c.Objects[idx].Fields, field)
		c.Resolvers[name+"."+key] = field.Kind
	}

	if len(c.Objects[idx].Fields) == 0 {
		c.Objects = append(c.Objects[:idx], c.Objects[idx+1:]...)
		return false
	}
	return true
}

func pagedObject(of string) Object {
	intField := func(name string, nonNull bool) Field {
		return Field{Name: name, Path: name, Type: TypeRef{Name: "Int", NonNull: nonNull}}
	}
	boolField := func(name string) Field {
		return Field{Name: name, Path: name, Type: TypeRef{Name: "Boolean", NonNull: true}}
	}
	return Object{
		Name: "Paged" + of,
		Fields: []Field{
			{Name: "docs", Path: "docs", Type: TypeRef{Name: of, List: true, NonNull: true}, Kind: ResolveDocArray},
			intField("totalDocs", true),
			intField("limit", true),
			intField("page", false),
			intField("offset", false),
			intField("totalPages", true),
			intField("pagingCounter", true),
			boolField("hasPrevPage"),
			boolField("hasNextPage"),
			intField("prevPage", false),
			intField("nextPage", false),
		},
	}
}

// ModifyInputName is the input type accepted by create and modify
func (c *Collection) ModifyInputName() string {
	return c.Names.Type + "ModifyInput"
}

func (c *Collection) buildInputs() {
	if c.System {
		return
	}
	c.addInput(c.ModifyInputName(), c.Def, "", true)
}

// addInput appends an input type holding the author modifiable fields of
// def and reports whether it has any.
func (c *Collection) addInput(name string, def schema.Def, prefix string, root bool) bool {
	idx := len(c.Inputs)
	c.Inputs = append(c.Inputs, Input{Name: name})

	for _, key := range sortedNodes(def) {
		node := def[key]
		path := joinPath(prefix, key)
		if root && isSystemPath(path) {
			continue
		}
		field := InputField{Name: key}
		switch {
		case !node.IsField():
			child := strings.TrimSuffix(name, "Input") + capitalize(key) + "Input"
			if !c.addInput(child, node.Children, path, root) {
				continue
			}
			field.Type = TypeRef{Name: child}
		case node.Field.IsDocArray():
			child := strings.TrimSuffix(name, "Input") + capitalize(key) + "Input"
			if !c.addInput(child, node.Field.Docs, "", false) {
				continue
			}
			field.Type = TypeRef{Name: child, List: true}
		case node.Field.IsReference():
			field.Type = TypeRef{Name: "ObjectID", List: node.Field.Reference.Many}
		default:
			field.Type = TypeRef{Name: scalarName(node.Field.Type), List: node.Field.Array}
		}
		c.Inputs[idx].Fields = append(c.Inputs[idx].Fields, field)
	}

	if len(c.Inputs[idx].Fields) == 0 {
		c.Inputs = append(c.Inputs[:idx], c.Inputs[idx+1:]...)
		return false
	}
	return true
}

func (c *Collection) accessorArg(nonNull bool) Arg {
	accessor := c.Model.AccessorOne()
	t := TypeRef{Name: "ObjectID", NonNull: nonNull}
	if f, ok := c.Def.Lookup(accessor); ok && accessor != "_id" {
		t.Name = scalarName(f.Type)
	}
	return Arg{Name: argName(accessor), Type: t}
}

func (c *Collection) manyAccessorArg() Arg {
	accessor := c.Model.AccessorMany()
	t := TypeRef{Name: "ObjectID", List: true}
	if f, ok := c.Def.Lookup(accessor); ok && accessor != "_id" {
		t.Name = scalarName(f.Type)
	}
	return Arg{Name: "_ids", Type: t}
}

// argName turns an accessor path into a GraphQL argument name
func argName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

func pageArgs() []Arg {
	return []Arg{
		{Name: "filter", Type: TypeRef{Name: "JSON"}},
		{Name: "sort", Type: TypeRef{Name: "JSON"}},
		{Name: "page", Type: TypeRef{Name: "Int"}},
		{Name: "offset", Type: TypeRef{Name: "Int"}},
		{Name: "limit", Type: TypeRef{Name: "Int"}},
	}
}

func (c *Collection) buildOperations() {
	o := c.Options
	n := c.Names
	id := Arg{Name: "_id", Type: TypeRef{Name: "ObjectID", NonNull: true}}
	doc := TypeRef{Name: n.Type}

	if !o.DisableFindOneQuery {
		c.Queries = append(c.Queries, Operation{
			Name: n.One, Kind: OpFindOne, Type: doc,
			Args: []Arg{c.accessorArg(!o.SingleDocument)},
		})
	}
	if !o.DisableFindManyQuery {
		c.Queries = append(c.Queries, Operation{
			Name: n.Many, Kind: OpFindMany,
			Type: TypeRef{Name: "Paged" + n.Type, NonNull: true},
			Args: append([]Arg{c.manyAccessorArg()}, pageArgs()...),
		})
	}
	if !o.DisableActionAccessQuery {
		c.Queries = append(c.Queries, Operation{
			Name: n.One + "ActionAccess", Kind: OpActionAccess,
			Type: TypeRef{Name: "CollectionActionAccess"},
			Args: []Arg{{Name: "_id", Type: TypeRef{Name: "ObjectID"}}},
		})
	}
	if c.HasPublicFields() {
		pruned := TypeRef{Name: c.PrunedName()}
		if !o.DisablePublicFindOneQuery {
			c.Queries = append(c.Queries, Operation{
				Name: n.One + "Public", Kind: OpPublicFindOne, Type: pruned,
				Args: []Arg{c.accessorArg(!o.SingleDocument)},
			})
		}
		if !o.DisablePublicFindManyQuery {
			c.Queries = append(c.Queries, Operation{
				Name: n.Many + "Public", Kind: OpPublicFindMany,
				Type: TypeRef{Name: "Paged" + c.PrunedName(), NonNull: true},
				Args: append([]Arg{c.manyAccessorArg()}, pageArgs()...),
			})
		}
		if _, hasSlug := c.Def.Lookup("slug"); hasSlug && !o.DisablePublicFindOneBySlugQuery {
			c.Queries = append(c.Queries, Operation{
				Name: n.One + "BySlugPublic", Kind: OpPublicBySlug, Type: pruned,
				Args: []Arg{
					{Name: "slug", Type: TypeRef{Name: "String", NonNull: true}},
					{Name: "date", Type: TypeRef{Name: "Date"}},
				},
			})
		}
	}
	for i := range c.Spec.CustomQueries {
		cq := c.Spec.CustomQueries[i]
		t := TypeRef{Name: "Paged" + n.Type, NonNull: true}
		if cq.Public {
			t.Name = "Paged" + c.PrunedName()
		}
		c.Queries = append(c.Queries, Operation{
			Name: n.One + capitalize(cq.Name), Kind: OpCustom, Type: t,
			Args: pageArgs(), Custom: &cq,
		})
	}

	input := Arg{Name: "input", Type: TypeRef{Name: c.ModifyInputName(), NonNull: true}}
	hasInput := len(c.Inputs) > 0
	toggle := func(name string) []Arg {
		return []Arg{id, {Name: name, Type: TypeRef{Name: "Boolean"}, Default: true}}
	}
	mutations := []struct {
		disabled bool
		suffix   string
		kind     OpKind
		args     []Arg
	}{
		{o.DisableCreateMutation || !hasInput, "Create", OpCreate, []Arg{input}},
		{o.DisableCloneMutation, "Clone", OpClone, []Arg{id}},
		{o.DisableModifyMutation || !hasInput, "Modify", OpModify, []Arg{id, input}},
		{o.DisableHideMutation, "Hide", OpHide, toggle("hide")},
		{o.DisableArchiveMutation, "Archive", OpArchive, toggle("archive")},
		{o.DisableLockMutation, "Lock", OpLock, toggle("lock")},
		{o.DisableWatchMutation, "Watch", OpWatch, append(toggle("watch"), Arg{Name: "watcher", Type: TypeRef{Name: "ObjectID"}})},
		{o.DisableDeleteMutation, "Delete", OpDelete, []Arg{id}},
		{o.DisablePublishMutation || !c.Spec.CanPublish, "Publish", OpPublish, []Arg{
			id,
			{Name: "published_at", Type: TypeRef{Name: "Date"}},
			{Name: "publish", Type: TypeRef{Name: "Boolean"}, Default: true},
		}},
	}
	for _, m := range mutations {
		if m.disabled {
			continue
		}
		c.Mutations = append(c.Mutations, Operation{Name: n.One + m.suffix, Kind: m.kind, Args: m.args, Type: doc})
	}
}
