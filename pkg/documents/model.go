package documents

import (
	"github.com/platinummonkey/cristata/pkg/rbac"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// Default projection excludes fields only the collaborative editor reads
var defaultProjection = map[string]interface{}{
	"__yState":    0,
	"__yVersions": 0,
}

// Accessor names the fields used to look up documents
type Accessor struct {
	One  string
	Many string
}

// Model is the compiled form of one collection used by the access layer
type Model struct {
	// Name is the collection type name, for example "Article".
	Name string
	// Collection is the storage collection.
	Collection string
	Tenant     string

	Def    schema.Def
	Access rbac.ActionAccess

	CanPublish      bool
	WithPermissions bool
	// PublishedCopy keeps an independent copy of published documents.
	PublishedCopy bool
	// Collaborative documents are mirrored to the CRDT store.
	Collaborative bool
	// MandatoryWatchers are document paths whose user ids always watch.
	MandatoryWatchers []string
	Accessor          Accessor
}

// PublishedCollection is where the independent published copies live
func (m *Model) PublishedCollection() string {
	return m.Collection + "_published"
}

// AccessorOne returns the single-document lookup field
func (m *Model) AccessorOne() string {
	if m.Accessor.One == "" {
		return "_id"
	}
	return m.Accessor.One
}

// AccessorMany returns the field used by batch lookups
func (m *Model) AccessorMany() string {
	if m.Accessor.Many == "" {
		return "_id"
	}
	return m.Accessor.Many
}
