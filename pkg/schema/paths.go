package schema

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Get reads a dotted path from a document. Missing segments yield nil.
func Get(doc map[string]interface{}, path string) interface{} {
	var current interface{} = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := AsMap(current)
		if !ok {
			return nil
		}
		current = m[seg]
	}
	return current
}

// Lookup reads a dotted path and reports whether it is present. A parent
// explicitly set to nil makes every path below it present and nil.
func Lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := AsMap(current)
		if !ok {
			return nil, false
		}
		value, found := m[seg]
		if !found {
			return nil, false
		}
		if value == nil {
			return nil, true
		}
		current = value
	}
	return current, true
}

// Set writes a dotted path, creating intermediate objects.
func Set(doc map[string]interface{}, path string, value interface{}) {
	segments := strings.Split(path, ".")
	current := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := AsMap(current[seg])
		if !ok {
			next = bson.M{}
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// Unset removes a dotted path if present.
func Unset(doc map[string]interface{}, path string) {
	segments := strings.Split(path, ".")
	current := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := AsMap(current[seg])
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// Flatten lists every leaf value of a document keyed by dotted path. Arrays
// are leaves.
func Flatten(doc map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	flatten(doc, "", out)
	return out
}

func flatten(m map[string]interface{}, prefix string, out map[string]interface{}) {
	for k, v := range m {
		path := prefix + k
		if nested, ok := AsMap(v); ok && len(nested) > 0 {
			flatten(nested, path+".", out)
			continue
		}
		out[path] = v
	}
}
