package collection

import (
	"fmt"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// Spec is an author supplied collection configuration
type Spec struct {
	Name            string                 `json:"name" yaml:"name" bson:"name"`
	SchemaDef       map[string]interface{} `json:"schemaDef" yaml:"schemaDef" bson:"schemaDef"`
	ActionAccess    map[string]interface{} `json:"actionAccess" yaml:"actionAccess" bson:"actionAccess"`
	CanPublish      bool                   `json:"canPublish" yaml:"canPublish" bson:"canPublish"`
	WithPermissions bool                   `json:"withPermissions" yaml:"withPermissions" bson:"withPermissions"`
	PublicRules     *PublicRules           `json:"publicRules,omitempty" yaml:"publicRules,omitempty" bson:"publicRules,omitempty"`
	CustomQueries   []CustomQuery          `json:"customQueries,omitempty" yaml:"customQueries,omitempty" bson:"customQueries,omitempty"`
	Options         Options                `json:"options" yaml:"options" bson:"options"`
}

// PublicRules restrict what the public queries return
type PublicRules struct {
	// Filter is combined with the published and not hidden conditions.
	Filter map[string]interface{} `json:"filter,omitempty" yaml:"filter,omitempty" bson:"filter,omitempty"`
	// SlugDateField is the date field the bySlug query narrows by.
	SlugDateField string `json:"slugDateField,omitempty" yaml:"slugDateField,omitempty" bson:"slugDateField,omitempty"`
}

// CustomQuery is a paged query running an extra aggregation pipeline
// after the access filter.
type CustomQuery struct {
	Name        string        `json:"name" yaml:"name" bson:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty" bson:"description,omitempty"`
	Pipeline    []interface{} `json:"pipeline" yaml:"pipeline" bson:"pipeline"`
	Public      bool          `json:"public,omitempty" yaml:"public,omitempty" bson:"public,omitempty"`
}

// Accessor overrides the fields used to look documents up
type Accessor struct {
	One  string `json:"one,omitempty" yaml:"one,omitempty" bson:"one,omitempty"`
	Many string `json:"many,omitempty" yaml:"many,omitempty" bson:"many,omitempty"`
}

// Options toggle the generated surface
type Options struct {
	MandatoryWatchers               []string `json:"mandatoryWatchers,omitempty" yaml:"mandatoryWatchers,omitempty" bson:"mandatoryWatchers,omitempty"`
	PreviewURL                      string   `json:"previewUrl,omitempty" yaml:"previewUrl,omitempty" bson:"previewUrl,omitempty"`
	IndependentPublishedDocCopy     bool     `json:"independentPublishedDocCopy,omitempty" yaml:"independentPublishedDocCopy,omitempty" bson:"independentPublishedDocCopy,omitempty"`
	DisableFindOneQuery             bool     `json:"disableFindOneQuery,omitempty" yaml:"disableFindOneQuery,omitempty" bson:"disableFindOneQuery,omitempty"`
	DisableFindManyQuery            bool     `json:"disableFindManyQuery,omitempty" yaml:"disableFindManyQuery,omitempty" bson:"disableFindManyQuery,omitempty"`
	DisableActionAccessQuery        bool     `json:"disableActionAccessQuery,omitempty" yaml:"disableActionAccessQuery,omitempty" bson:"disableActionAccessQuery,omitempty"`
	DisablePublicFindOneQuery       bool     `json:"disablePublicFindOneQuery,omitempty" yaml:"disablePublicFindOneQuery,omitempty" bson:"disablePublicFindOneQuery,omitempty"`
	DisablePublicFindManyQuery      bool     `json:"disablePublicFindManyQuery,omitempty" yaml:"disablePublicFindManyQuery,omitempty" bson:"disablePublicFindManyQuery,omitempty"`
	DisablePublicFindOneBySlugQuery bool     `json:"disablePublicFindOneBySlugQuery,omitempty" yaml:"disablePublicFindOneBySlugQuery,omitempty" bson:"disablePublicFindOneBySlugQuery,omitempty"`
	DisableCreateMutation           bool     `json:"disableCreateMutation,omitempty" yaml:"disableCreateMutation,omitempty" bson:"disableCreateMutation,omitempty"`
	DisableCloneMutation            bool     `json:"disableCloneMutation,omitempty" yaml:"disableCloneMutation,omitempty" bson:"disableCloneMutation,omitempty"`
	DisableModifyMutation           bool     `json:"disableModifyMutation,omitempty" yaml:"disableModifyMutation,omitempty" bson:"disableModifyMutation,omitempty"`
	DisableHideMutation             bool     `json:"disableHideMutation,omitempty" yaml:"disableHideMutation,omitempty" bson:"disableHideMutation,omitempty"`
	DisableArchiveMutation          bool     `json:"disableArchiveMutation,omitempty" yaml:"disableArchiveMutation,omitempty" bson:"disableArchiveMutation,omitempty"`
	DisableLockMutation             bool     `json:"disableLockMutation,omitempty" yaml:"disableLockMutation,omitempty" bson:"disableLockMutation,omitempty"`
	DisableWatchMutation            bool     `json:"disableWatchMutation,omitempty" yaml:"disableWatchMutation,omitempty" bson:"disableWatchMutation,omitempty"`
	DisableDeleteMutation           bool     `json:"disableDeleteMutation,omitempty" yaml:"disableDeleteMutation,omitempty" bson:"disableDeleteMutation,omitempty"`
	DisablePublishMutation          bool     `json:"disablePublishMutation,omitempty" yaml:"disablePublishMutation,omitempty" bson:"disablePublishMutation,omitempty"`
	SingleDocument                  bool     `json:"singleDocument,omitempty" yaml:"singleDocument,omitempty" bson:"singleDocument,omitempty"`
	Accessor                        Accessor `json:"accessor,omitempty" yaml:"accessor,omitempty" bson:"accessor,omitempty"`
}

// normalized returns the options with the single document rules applied.
// Single documents (settings and the like) have no lifecycle beyond modify.
func (o Options) normalized() Options {
	if !o.SingleDocument {
		return o
	}
	o.DisableHideMutation = true
	o.DisableLockMutation = true
	o.DisableWatchMutation = true
	o.DisableArchiveMutation = true
	o.DisableDeleteMutation = true
	o.DisablePublishMutation = true
	o.DisablePublicFindOneBySlugQuery = true
	return o
}

// SpecFromMap decodes a raw spec as stored by the tenant sources
func SpecFromMap(raw map[string]interface{}) (Spec, error) {
	var spec Spec
	name, _ := raw["name"].(string)
	if name == "" {
		return spec, fmt.Errorf("collection spec without a name")
	}
	spec.Name = name
	spec.SchemaDef, _ = schema.AsMap(raw["schemaDef"])
	spec.ActionAccess, _ = schema.AsMap(raw["actionAccess"])
	spec.CanPublish, _ = raw["canPublish"].(bool)
	spec.WithPermissions, _ = raw["withPermissions"].(bool)

	if pr, ok := schema.AsMap(raw["publicRules"]); ok {
		spec.PublicRules = &PublicRules{}
		spec.PublicRules.Filter, _ = schema.AsMap(pr["filter"])
		spec.PublicRules.SlugDateField, _ = pr["slugDateField"].(string)
	}

	queries, _ := schema.AsSlice(raw["customQueries"])
	for _, q := range queries {
		m, ok := schema.AsMap(q)
		if !ok {
			continue
		}
		cq := CustomQuery{}
		cq.Name, _ = m["name"].(string)
		cq.Description, _ = m["description"].(string)
		cq.Public, _ = m["public"].(bool)
		cq.Pipeline, _ = schema.AsSlice(m["pipeline"])
		spec.CustomQueries = append(spec.CustomQueries, cq)
	}

	if opts, ok := schema.AsMap(raw["options"]); ok {
		spec.Options = optionsFromMap(opts)
	}
	return spec, nil
}

func optionsFromMap(m map[string]interface{}) Options {
	flag := func(key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	o := Options{
		IndependentPublishedDocCopy:     flag("independentPublishedDocCopy"),
		DisableFindOneQuery:             flag("disableFindOneQuery"),
		DisableFindManyQuery:            flag("disableFindManyQuery"),
		DisableActionAccessQuery:        flag("disableActionAccessQuery"),
		DisablePublicFindOneQuery:       flag("disablePublicFindOneQuery"),
		DisablePublicFindManyQuery:      flag("disablePublicFindManyQuery"),
		DisablePublicFindOneBySlugQuery: flag("disablePublicFindOneBySlugQuery"),
		DisableCreateMutation:           flag("disableCreateMutation"),
		DisableCloneMutation:            flag("disableCloneMutation"),
		DisableModifyMutation:           flag("disableModifyMutation"),
		DisableHideMutation:             flag("disableHideMutation"),
		DisableArchiveMutation:          flag("disableArchiveMutation"),
		DisableLockMutation:             flag("disableLockMutation"),
		DisableWatchMutation:            flag("disableWatchMutation"),
		DisableDeleteMutation:           flag("disableDeleteMutation"),
		DisablePublishMutation:          flag("disablePublishMutation"),
		SingleDocument:                  flag("singleDocument"),
	}
	o.PreviewURL, _ = m["previewUrl"].(string)
	watchers, _ := schema.AsSlice(m["mandatoryWatchers"])
	for _, w := range watchers {
		if s, ok := w.(string); ok {
			o.MandatoryWatchers = append(o.MandatoryWatchers, s)
		}
	}
	if acc, ok := schema.AsMap(m["accessor"]); ok {
		o.Accessor.One, _ = acc["one"].(string)
		o.Accessor.Many, _ = acc["many"].(string)
	}
	return o
}
