package crdt

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// skipped paths are owned by the primary store only
var skipped = map[string]bool{
	"_id":     true,
	"history": true,
}

// Ops builds field operations for every field of def present in doc.
// DocArray fields are sent whole through the json setter. Fields present
// with a nil value are cleared; absent fields are left alone.
func Ops(def schema.Def, doc map[string]interface{}) []FieldOp {
	var ops []FieldOp
	for _, f := range schema.Deconstruct(def) {
		if f.ArrayDepth() > 0 || skipped[f.Path] || internal(f.Path) {
			continue
		}
		value, present := schema.Lookup(doc, f.Path)
		switch {
		case !present:
		case value == nil:
			ops = append(ops, FieldOp{Path: f.Path, Setter: SetClear})
		default:
			ops = append(ops, op(f, value))
		}
	}
	return ops
}

func internal(path string) bool {
	for _, seg := range strings.Split(path, ".") {
		if strings.HasPrefix(seg, "__") {
			return true
		}
	}
	return false
}

func op(f schema.Field, value interface{}) FieldOp {
	def := f.Def
	out := FieldOp{Path: f.Path}
	switch {
	case def.IsReference():
		out.Setter = SetReference
		out.Value = plain(value)
	case def.IsList() || def.Type == schema.TypeJSON:
		out.Setter = SetJSON
		out.Value = plain(value)
	case def.Type == schema.TypeBoolean:
		out.Setter = SetBoolean
		out.Value = value
	case def.Type == schema.TypeDate:
		out.Setter = SetDate
		out.Value = plain(value)
	case def.Type == schema.TypeNumber:
		out.Setter = SetInteger
		out.Value = toInt(value)
	case def.Type == schema.TypeFloat:
		out.Setter = SetFloat
		out.Value = toFloat(value)
	case def.Type == schema.TypeObjectID:
		out.Setter = SetString
		out.Value = plain(value)
	default:
		out.Setter = SetString
		out.Value = fmt.Sprint(value)
	}
	return out
}

// plain converts driver types into values every codec can carry: ids become
// hex strings and dates RFC 3339 strings.
func plain(v interface{}) interface{} {
	switch value := v.(type) {
	case primitive.ObjectID:
		return value.Hex()
	case time.Time:
		return value.UTC().Format(time.RFC3339Nano)
	case primitive.DateTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	}
	if m, ok := schema.AsMap(v); ok {
		out := make(map[string]interface{}, len(m))
		for k, item := range m {
			out[k] = plain(item)
		}
		return out
	}
	if s, ok := schema.AsSlice(v); ok {
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = plain(item)
		}
		return out
	}
	return v
}

func toInt(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return v
	}
}

func toFloat(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return v
	}
}
