package schema

import "go.mongodb.org/mongo-driver/bson"

// Defaults builds a document populated with every declared default. List
// fields without a default start as empty arrays so array operators and
// access filters always see the field.
func Defaults(def Def) bson.M {
	doc := bson.M{}
	for key, node := range def {
		if !node.IsField() {
			nested := Defaults(node.Children)
			if len(nested) > 0 {
				doc[key] = nested
			}
			continue
		}
		f := node.Field
		switch {
		case f.Default != nil:
			doc[key] = cloneValue(f.Default)
		case f.IsList():
			doc[key] = bson.A{}
		}
	}
	return doc
}

func cloneValue(v interface{}) interface{} {
	if m, ok := AsMap(v); ok {
		out := make(bson.M, len(m))
		for k, item := range m {
			out[k] = cloneValue(item)
		}
		return out
	}
	if s, ok := AsSlice(v); ok {
		out := make(bson.A, len(s))
		for i, item := range s {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
