package audit

import (
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// ignoredDiffPaths change on every write and carry no information
var ignoredDiffPaths = map[string]bool{
	"history":                 true,
	"timestamps.modified_at":  true,
	"people.modified_by":      true,
	"people.last_modified_by": true,
}

// Changes holds the nested maps of added, deleted and updated values
type Changes struct {
	Added   bson.M
	Deleted bson.M
	Updated bson.M
}

// Empty reports whether nothing changed
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Deleted) == 0 && len(c.Updated) == 0
}

// Diff compares two documents path by path. Arrays are compared as whole
// values. Internal fields (double underscore prefix) are skipped. Updated
// holds the new value.
func Diff(before, after map[string]interface{}) Changes {
	b := schema.Flatten(normalizeDoc(before))
	a := schema.Flatten(normalizeDoc(after))

	var c Changes
	put := func(target *bson.M, path string, v interface{}) {
		if *target == nil {
			*target = bson.M{}
		}
		schema.Set(*target, path, v)
	}

	for path, av := range a {
		if skipPath(path) {
			continue
		}
		bv, ok := b[path]
		switch {
		case !ok:
			put(&c.Added, path, av)
		case !reflect.DeepEqual(bv, av):
			put(&c.Updated, path, av)
		}
	}
	for path, bv := range b {
		if skipPath(path) {
			continue
		}
		if _, ok := a[path]; !ok {
			put(&c.Deleted, path, bv)
		}
	}
	return c
}

func skipPath(path string) bool {
	if ignoredDiffPaths[path] {
		return true
	}
	for _, seg := range strings.Split(path, ".") {
		if strings.HasPrefix(seg, "__") {
			return true
		}
	}
	return false
}

func normalizeDoc(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return map[string]interface{}{}
	}
	m, _ := schema.Normalize(doc).(map[string]interface{})
	return m
}
