package schema

import (
	"sort"
	"strings"
)

// PositionalMarker stands for "every element" of a DocArray in a field path.
const PositionalMarker = "$"

// Field is one flattened (path, definition) pair
type Field struct {
	Path string
	Def  *FieldDef
}

// ArrayDepth counts the DocArray levels the path passes through.
func (f Field) ArrayDepth() int {
	return strings.Count(f.Path, "."+PositionalMarker+".")
}

// ArrayParent returns the path of the enclosing DocArray, or "" when the field
// is not inside one.
func (f Field) ArrayParent() string {
	idx := strings.LastIndex(f.Path, "."+PositionalMarker+".")
	if idx < 0 {
		return ""
	}
	return f.Path[:idx]
}

// Leaf returns the path segment after the innermost positional marker.
func (f Field) Leaf() string {
	idx := strings.LastIndex(f.Path, "."+PositionalMarker+".")
	if idx < 0 {
		return f.Path
	}
	return f.Path[idx+len(PositionalMarker)+2:]
}

// Deconstruct flattens a definition tree. Keys are visited in sorted order so
// two passes over the same tree always agree on indexes.
func Deconstruct(def Def) []Field {
	var fields []Field
	deconstruct(def, "", &fields)
	return fields
}

func deconstruct(def Def, prefix string, out *[]Field) {
	keys := make([]string, 0, len(def))
	for k := range def {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		node := def[key]
		path := prefix + key
		if !node.IsField() {
			deconstruct(node.Children, path+".", out)
			continue
		}
		*out = append(*out, Field{Path: path, Def: node.Field})
		if node.Field.IsDocArray() {
			deconstruct(node.Field.Docs, path+"."+PositionalMarker+".", out)
		}
	}
}

// References returns only the fields that are typed foreign keys.
func References(fields []Field) []Field {
	var refs []Field
	for _, f := range fields {
		if f.Def.IsReference() {
			refs = append(refs, f)
		}
	}
	return refs
}
