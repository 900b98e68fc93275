package documents

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/audit"
	"github.com/platinummonkey/cristata/pkg/schema"
)

// immutable paths are never taken from caller input
var immutable = []string{
	"_id",
	"history",
	"timestamps.created_at",
	"people.created_by",
}

// objectID extracts an id from an ObjectID, a hex string or a document
func objectID(v interface{}) (primitive.ObjectID, bool) {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id, !id.IsZero()
	case string:
		oid, err := primitive.ObjectIDFromHex(id)
		return oid, err == nil
	}
	if m, ok := schema.AsMap(v); ok {
		return objectID(m["_id"])
	}
	return primitive.NilObjectID, false
}

// idsAt collects the ids found at a document path
func idsAt(doc map[string]interface{}, path string) []primitive.ObjectID {
	value := schema.Get(doc, path)
	if value == nil {
		return nil
	}
	items, ok := schema.AsSlice(value)
	if !ok {
		items = []interface{}{value}
	}
	var out []primitive.ObjectID
	for _, item := range items {
		if id, ok := objectID(item); ok {
			out = append(out, id)
		}
	}
	return out
}

// addID appends id to a list unless it is already present
func addID(list interface{}, id primitive.ObjectID) bson.A {
	items, _ := schema.AsSlice(list)
	out := make(bson.A, 0, len(items)+1)
	found := false
	for _, item := range items {
		if existing, ok := objectID(item); ok && existing == id {
			found = true
		}
		out = append(out, item)
	}
	if !found {
		out = append(out, id)
	}
	return out
}

// removeID drops every occurrence of id from a list
func removeID(list interface{}, id primitive.ObjectID) bson.A {
	items, _ := schema.AsSlice(list)
	out := make(bson.A, 0, len(items))
	for _, item := range items {
		if existing, ok := objectID(item); ok && existing == id {
			continue
		}
		out = append(out, item)
	}
	return out
}

func appendHistory(doc bson.M, entry audit.HistoryEntry) {
	items, _ := schema.AsSlice(doc["history"])
	history := make(bson.A, 0, len(items)+1)
	history = append(history, items...)
	doc["history"] = append(history, entry.BSON())
}

// touch records a modification by user at now
func touch(doc bson.M, user primitive.ObjectID, now time.Time) {
	schema.Set(doc, "timestamps.modified_at", now)
	schema.Set(doc, "people.last_modified_by", user)
	schema.Set(doc, "people.modified_by", addID(schema.Get(doc, "people.modified_by"), user))
}

// addMandatoryWatchers adds every user referenced by the watcher paths
func addMandatoryWatchers(m *Model, doc bson.M) {
	for _, path := range m.MandatoryWatchers {
		for _, id := range idsAt(doc, path) {
			schema.Set(doc, "people.watching", addID(schema.Get(doc, "people.watching"), id))
		}
	}
}

// stripInternal removes double-underscore fields at any depth
func stripInternal(doc map[string]interface{}) {
	for k, v := range doc {
		if strings.HasPrefix(k, "__") {
			delete(doc, k)
			continue
		}
		if nested, ok := schema.AsMap(v); ok {
			stripInternal(nested)
		}
	}
}

// sanitizeInput copies caller data without fields callers may not set
func sanitizeInput(data map[string]interface{}) bson.M {
	out := schema.CloneDoc(data)
	if out == nil {
		return bson.M{}
	}
	for _, path := range immutable {
		schema.Unset(out, path)
	}
	stripInternal(out)
	return out
}

func stageOf(doc map[string]interface{}) (float64, bool) {
	switch n := schema.Get(doc, "stage").(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func isPublished(doc map[string]interface{}) bool {
	stage, ok := stageOf(doc)
	return ok && stage == schema.StagePublished
}

// docName picks a human readable label for activity records
func docName(doc map[string]interface{}) string {
	for _, key := range []string{"name", "title", "slug"} {
		if s, ok := schema.Get(doc, key).(string); ok && s != "" {
			return s
		}
	}
	if id, ok := objectID(doc["_id"]); ok {
		return id.Hex()
	}
	return ""
}
