package schema

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// Validator renders the definition as a MongoDB $jsonSchema document, which is
// the storage schema attached to the collection.
func Validator(def Def) bson.M {
	return bson.M{"$jsonSchema": objectSchema(def)}
}

func objectSchema(def Def) bson.M {
	properties := bson.M{}
	var required []string
	for key, node := range def {
		if node.IsField() {
			properties[key] = fieldSchema(node.Field)
			if node.Field.Required {
				required = append(required, key)
			}
			continue
		}
		properties[key] = objectSchema(node.Children)
	}
	out := bson.M{"bsonType": "object", "properties": properties}
	if len(required) > 0 {
		sort.Strings(required)
		out["required"] = required
	}
	return out
}

func fieldSchema(f *FieldDef) bson.M {
	if f.IsDocArray() {
		return bson.M{"bsonType": bson.A{"array", "null"}, "items": objectSchema(f.Docs)}
	}
	item := scalarSchema(f.Type, !f.Required)
	if f.IsList() {
		return bson.M{"bsonType": bson.A{"array", "null"}, "items": item}
	}
	return item
}

func scalarSchema(t FieldType, nullable bool) bson.M {
	var types bson.A
	switch t {
	case TypeString:
		types = bson.A{"string"}
	case TypeNumber:
		types = bson.A{"int", "long"}
	case TypeFloat:
		types = bson.A{"double", "int", "long", "decimal"}
	case TypeBoolean:
		types = bson.A{"bool"}
	case TypeDate:
		types = bson.A{"date"}
	case TypeObjectID:
		types = bson.A{"objectId"}
	default:
		// JSON accepts anything
		return bson.M{}
	}
	if nullable {
		types = append(types, "null")
	}
	return bson.M{"bsonType": types}
}
