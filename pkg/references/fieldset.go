package references

import (
	"sort"
	"strings"
)

// FieldSet is a tree of requested fields. A leaf has no children.
type FieldSet map[string]FieldSet

// FromPaths builds a field set from dotted paths
func FromPaths(paths ...string) FieldSet {
	fs := FieldSet{}
	for _, p := range paths {
		fs.Add(p)
	}
	return fs
}

// Add inserts a dotted path
func (fs FieldSet) Add(path string) {
	current := fs
	for _, seg := range strings.Split(path, ".") {
		next, ok := current[seg]
		if !ok || next == nil {
			next = FieldSet{}
			current[seg] = next
		}
		current = next
	}
}

// At returns the subtree for a dotted path. Positional markers are
// skipped since a field set describes every element of an array alike.
func (fs FieldSet) At(path string) (FieldSet, bool) {
	current := fs
	for _, seg := range strings.Split(path, ".") {
		if seg == "$" {
			continue
		}
		next, ok := current[seg]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// OnlyID reports whether nothing beyond _id is requested
func (fs FieldSet) OnlyID() bool {
	for k := range fs {
		if k != "_id" && k != "__typename" {
			return false
		}
	}
	return true
}

// Merge returns the union of two field sets
func (fs FieldSet) Merge(other FieldSet) FieldSet {
	out := FieldSet{}
	for _, src := range []FieldSet{fs, other} {
		for k, v := range src {
			if existing, ok := out[k]; ok {
				out[k] = existing.Merge(v)
			} else {
				out[k] = FieldSet{}.Merge(v)
			}
		}
	}
	return out
}

// Paths lists the leaf paths, sorted
func (fs FieldSet) Paths() []string {
	var out []string
	var walk func(FieldSet, string)
	walk = func(set FieldSet, prefix string) {
		for k, v := range set {
			if k == "__typename" {
				continue
			}
			if len(v) == 0 {
				out = append(out, prefix+k)
				continue
			}
			walk(v, prefix+k+".")
		}
	}
	walk(fs, "")
	sort.Strings(out)
	return out
}

// covers reports whether every path of other is selected by fs. Selecting a
// whole subtree covers anything below it.
func (fs FieldSet) covers(other FieldSet) bool {
	for k, v := range other {
		mine, ok := fs[k]
		if !ok {
			return false
		}
		if len(mine) == 0 {
			continue
		}
		if len(v) == 0 || !mine.covers(v) {
			return false
		}
	}
	return true
}
