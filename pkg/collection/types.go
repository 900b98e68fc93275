package collection

import (
	"regexp"
	"strings"

	"github.com/platinummonkey/cristata/pkg/documents"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// ResolverKind selects how a generated field produces its value
type ResolverKind int

const (
	// ResolveScalar reads a stored value as is.
	ResolveScalar ResolverKind = iota
	// ResolveObject reads a nested sub-document.
	ResolveObject
	// ResolveDocArray reads an array of sub-documents.
	ResolveDocArray
	// ResolveRefOne reads a single resolved reference.
	ResolveRefOne
	// ResolveRefMany reads a list of resolved references.
	ResolveRefMany
)

func (k ResolverKind) String() string {
	switch k {
	case ResolveScalar:
		return "scalar"
	case ResolveObject:
		return "object"
	case ResolveDocArray:
		return "docArray"
	case ResolveRefOne:
		return "refOne"
	case ResolveRefMany:
		return "refMany"
	default:
		return "unknown"
	}
}

// OpKind identifies a generated root operation
type OpKind int

const (
	OpFindOne OpKind = iota
	OpFindMany
	OpActionAccess
	OpPublicFindOne
	OpPublicFindMany
	OpPublicBySlug
	OpCustom
	OpCreate
	OpClone
	OpModify
	OpHide
	OpArchive
	OpLock
	OpWatch
	OpDelete
	OpPublish
)

// TypeRef is a reference to a GraphQL type
type TypeRef struct {
	Name    string
	List    bool
	NonNull bool
}

// String renders the type in SDL form
func (t TypeRef) String() string {
	s := t.Name
	if t.List {
		s = "[" + s + "]"
	}
	if t.NonNull {
		s += "!"
	}
	return s
}

// Field is one field of a generated object type
type Field struct {
	Name string
	// Path is the storage path of the value relative to the parent object.
	Path   string
	Type   TypeRef
	Kind   ResolverKind
	Target string
	Scalar schema.FieldType
}

// Object is a generated output type
type Object struct {
	Name   string
	Fields []Field
}

// InputField is one field of a generated input type
type InputField struct {
	Name string
	Type TypeRef
}

// Input is a generated input type
type Input struct {
	Name   string
	Fields []InputField
}

// Arg is an argument of a root operation
type Arg struct {
	Name string
	Type TypeRef
	// Default is rendered as an SDL literal. Only booleans are used.
	Default interface{}
}

// Operation is a generated root query or mutation
type Operation struct {
	Name   string
	Kind   OpKind
	Args   []Arg
	Type   TypeRef
	Custom *CustomQuery
}

type inputRule struct {
	path    string
	match   *regexp.Regexp
	message string
}

// Collection is the generated form of one collection spec
type Collection struct {
	Spec    Spec
	Names   Names
	Def     schema.Def
	Options Options
	Model   *documents.Model
	// System collections are built in and expose read queries only.
	System bool

	// Resolvers maps "Type.field" onto the resolver kind of every
	// generated output field.
	Resolvers map[string]ResolverKind
	Objects   []Object
	Inputs    []Input
	Queries   []Operation
	Mutations []Operation
	TypeDefs  string

	rules    []inputRule
	required []string
	public   []string
}

// PrunedName is the public type of the collection
func (c *Collection) PrunedName() string {
	return "Pruned" + c.Names.Type
}

// HasPublicFields reports whether anything beyond _id is public
func (c *Collection) HasPublicFields() bool {
	for _, p := range c.public {
		if p != "_id" {
			return true
		}
	}
	return false
}

// PublicPaths lists the public storage paths, _id included
func (c *Collection) PublicPaths() []string {
	return append([]string(nil), c.public...)
}

// Operation finds a generated root operation by name
func (c *Collection) Operation(name string) (Operation, bool) {
	for _, ops := range [][]Operation{c.Queries, c.Mutations} {
		for _, op := range ops {
			if op.Name == name {
				return op, true
			}
		}
	}
	return Operation{}, false
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// systemPaths are maintained by the document service and never accepted
// as input.
var systemPaths = map[string]bool{
	"_id":                      true,
	"history":                  true,
	"hidden":                   true,
	"locked":                   true,
	"archived":                 true,
	"timestamps":               true,
	"people.created_by":        true,
	"people.modified_by":       true,
	"people.last_modified_by":  true,
	"people.watching":          true,
	"people.published_by":      true,
	"people.last_published_by": true,
}

func isSystemPath(path string) bool {
	return systemPaths[path] || strings.HasPrefix(path, "timestamps.")
}
