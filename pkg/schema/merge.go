package schema

import "go.mongodb.org/mongo-driver/bson"

// CloneDoc deep-copies a document so mutations never alias cached values.
func CloneDoc(doc map[string]interface{}) bson.M {
	if doc == nil {
		return nil
	}
	out, _ := cloneValue(doc).(bson.M)
	return out
}

// DeepMerge merges patch onto base in place. Objects merge recursively;
// arrays and scalars in the patch replace the base value.
func DeepMerge(base, patch map[string]interface{}) {
	for key, value := range patch {
		patchMap, patchIsMap := AsMap(value)
		baseMap, baseIsMap := AsMap(base[key])
		if patchIsMap && baseIsMap {
			DeepMerge(baseMap, patchMap)
			continue
		}
		base[key] = cloneValue(value)
	}
}
