package collection

import (
	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/rbac"
)

// systemNames are the built in collections every tenant carries. Their
// storage collections are written by other components.
var systemNames = map[string]func() Spec{
	"User":     userSpec,
	"Team":     teamSpec,
	"File":     fileSpec,
	"Activity": activitySpec,
}

// systemCollections pins the storage names other packages write to
var systemCollections = map[string]string{
	"Activity": audit.ActivityCollection,
	"Team":     rbac.TeamsCollection,
}

// System generates the built in collections of a tenant, sorted by name
func System(tenant string) ([]*Collection, error) {
	var out []*Collection
	for _, name := range []string{"Activity", "File", "Team", "User"} {
		c, err := generate(systemNames[name](), tenant, true)
		if err != nil {
			return nil, err
		}
		if coll, ok := systemCollections[name]; ok {
			c.Names.Collection = coll
			c.Model.Collection = coll
		}
		out = append(out, c)
	}
	return out, nil
}

// IsSystem reports whether name is a built in collection
func IsSystem(name string) bool {
	_, ok := systemNames[name]
	return ok
}

func systemOptions(o Options) Options {
	o.DisableCreateMutation = true
	o.DisableCloneMutation = true
	o.DisableModifyMutation = true
	o.DisableHideMutation = true
	o.DisableArchiveMutation = true
	o.DisableLockMutation = true
	o.DisableWatchMutation = true
	o.DisableDeleteMutation = true
	o.DisablePublishMutation = true
	return o
}

func readableByAnyone() map[string]interface{} {
	return map[string]interface{}{
		string(rbac.ActionGet): map[string]interface{}{"teams": []interface{}{0}, "users": []interface{}{}},
	}
}

func str(public bool) map[string]interface{} {
	return map[string]interface{}{"type": "String", "public": public}
}

func userSpec() Spec {
	return Spec{
		Name: "User",
		SchemaDef: map[string]interface{}{
			"name":          map[string]interface{}{"type": "String", "required": true, "public": true},
			"slug":          str(true),
			"email":         str(false),
			"username":      str(false),
			"phone":         str(false),
			"twitter":       str(true),
			"biography":     str(true),
			"current_title": str(true),
			"photo":         str(true),
			"retired":       map[string]interface{}{"type": "Boolean"},
		},
		ActionAccess: readableByAnyone(),
	}
}

func teamSpec() Spec {
	return Spec{
		Name: "Team",
		SchemaDef: map[string]interface{}{
			"name":       map[string]interface{}{"type": "String", "required": true},
			"slug":       map[string]interface{}{"type": "String", "required": true, "unique": true},
			"members":    map[string]interface{}{"type": []interface{}{"[User]", "ObjectId"}},
			"organizers": map[string]interface{}{"type": []interface{}{"[User]", "ObjectId"}},
		},
		ActionAccess: readableByAnyone(),
	}
}

func fileSpec() Spec {
	return Spec{
		Name: "File",
		SchemaDef: map[string]interface{}{
			"name":        map[string]interface{}{"type": "String", "required": true, "public": true},
			"file_type":   str(true),
			"location":    map[string]interface{}{"type": "String", "required": true, "public": true},
			"size_bytes":  map[string]interface{}{"type": "Number", "public": true},
			"tags":        map[string]interface{}{"type": []interface{}{"String"}},
			"description": str(true),
		},
		ActionAccess: readableByAnyone(),
	}
}

func activitySpec() Spec {
	return Spec{
		Name: "Activity",
		SchemaDef: map[string]interface{}{
			"name":    str(false),
			"type":    map[string]interface{}{"type": "String", "required": true},
			"colName": map[string]interface{}{"type": "String", "required": true},
			"docId":   map[string]interface{}{"type": "ObjectId", "required": true},
			"userIds": map[string]interface{}{"type": []interface{}{"[User]", "ObjectId"}},
			"at":      map[string]interface{}{"type": "Date", "required": true},
			"added":   map[string]interface{}{"type": "JSON"},
			"deleted": map[string]interface{}{"type": "JSON"},
			"updated": map[string]interface{}{"type": "JSON"},
		},
		ActionAccess: readableByAnyone(),
	}
}

