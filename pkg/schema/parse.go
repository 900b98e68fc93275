package schema

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Parse converts a raw field-definition tree (decoded from JSON, YAML or BSON)
// into a Def. Unknown type tokens fail immediately.
func Parse(raw map[string]interface{}) (Def, error) {
	def := make(Def, len(raw))
	for _, key := range sortedKeys(raw) {
		node, err := parseNode(key, raw[key])
		if err != nil {
			return nil, err
		}
		def[key] = node
	}
	return def, nil
}

func parseNode(path string, value interface{}) (Node, error) {
	m, ok := AsMap(value)
	if !ok {
		return Node{}, fmt.Errorf("field %q must be an object, got %T", path, value)
	}

	if t, has := m["type"]; has && isTypeToken(t) {
		field, err := parseField(path, m)
		if err != nil {
			return Node{}, err
		}
		return Node{Field: field}, nil
	}

	children := make(Def, len(m))
	for _, key := range sortedKeys(m) {
		child, err := parseNode(path+"."+key, m[key])
		if err != nil {
			return Node{}, err
		}
		children[key] = child
	}
	return Node{Children: children}, nil
}

func isTypeToken(v interface{}) bool {
	if _, ok := v.(string); ok {
		return true
	}
	_, ok := AsSlice(v)
	return ok
}

func parseField(path string, m map[string]interface{}) (*FieldDef, error) {
	field := &FieldDef{}
	if err := parseTypeToken(path, m["type"], field); err != nil {
		return nil, err
	}

	field.Required = asBool(m["required"])
	field.Unique = asBool(m["unique"])
	field.TextSearch = asBool(m["textSearch"])
	field.Public = asBool(m["public"])
	field.Modifiable = asBool(m["modifiable"])
	field.Strict = asBool(m["strict"])
	field.Default = Normalize(m["default"])

	if raw, ok := AsMap(m["rule"]); ok {
		match, _ := raw["match"].(string)
		message, _ := raw["message"].(string)
		field.Rule = &Rule{Match: match, Message: message}
	}

	if raw, ok := AsMap(m["field"]); ok {
		field.Field = parseFieldOptions(raw)
	}

	if field.Type == TypeDocArray {
		rawDocs, ok := AsMap(m["docs"])
		if !ok {
			return nil, fmt.Errorf("field %q is a DocArray but has no docs definition", path)
		}
		docs, err := Parse(rawDocs)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", path, err)
		}
		field.Docs = docs
	}

	return field, nil
}

// parseTypeToken understands "String", ["String"], ["User", "ObjectId"] and
// ["[User]", "ObjectId"].
func parseTypeToken(path string, token interface{}, field *FieldDef) error {
	if s, ok := token.(string); ok {
		t := FieldType(s)
		if !knownTypes[t] {
			return fmt.Errorf("field %q has unknown type %q", path, s)
		}
		field.Type = t
		return nil
	}

	items, _ := AsSlice(token)
	switch len(items) {
	case 1:
		s, _ := items[0].(string)
		t := FieldType(s)
		if !knownTypes[t] || t == TypeDocArray {
			return fmt.Errorf("field %q has unknown array type %v", path, items[0])
		}
		field.Type = t
		field.Array = true
		return nil
	case 2:
		target, _ := items[0].(string)
		stored, _ := items[1].(string)
		if target == "" || !knownTypes[FieldType(stored)] {
			return fmt.Errorf("field %q has an invalid reference type %v", path, items)
		}
		ref := &Reference{Collection: target}
		if strings.HasPrefix(target, "[") && strings.HasSuffix(target, "]") {
			ref.Collection = strings.TrimSuffix(strings.TrimPrefix(target, "["), "]")
			ref.Many = true
		}
		field.Type = FieldType(stored)
		field.Reference = ref
		return nil
	default:
		return fmt.Errorf("field %q has an invalid type token %v", path, items)
	}
}

func parseFieldOptions(raw map[string]interface{}) *FieldOptions {
	opts := &FieldOptions{
		Hidden: asBool(raw["hidden"]),
	}
	opts.Label, _ = raw["label"].(string)
	opts.Description, _ = raw["description"].(string)
	switch order := raw["order"].(type) {
	case int:
		opts.Order = order
	case int32:
		opts.Order = int(order)
	case int64:
		opts.Order = int(order)
	case float64:
		opts.Order = int(order)
	}
	if items, ok := AsSlice(raw["options"]); ok {
		for _, item := range items {
			m, ok := AsMap(item)
			if !ok {
				continue
			}
			label, _ := m["label"].(string)
			opts.Options = append(opts.Options, Option{Label: label, Value: Normalize(m["value"])})
		}
	}
	return opts
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsMap accepts the map shapes produced by encoding/json, yaml.v3 and the
// mongo driver.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case primitive.M:
		return m, true
	case primitive.D:
		return m.Map(), true
	default:
		return nil, false
	}
}

// AsSlice accepts []interface{} and primitive.A.
func AsSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case primitive.A:
		return s, true
	case []string:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []primitive.ObjectID:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []primitive.M:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	default:
		return nil, false
	}
}

// Normalize converts nested driver/yaml containers into plain maps and slices.
func Normalize(v interface{}) interface{} {
	if m, ok := AsMap(v); ok {
		out := make(map[string]interface{}, len(m))
		for k, item := range m {
			out[k] = Normalize(item)
		}
		return out
	}
	if s, ok := AsSlice(v); ok {
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = Normalize(item)
		}
		return out
	}
	return v
}
