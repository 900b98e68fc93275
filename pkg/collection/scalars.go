package collection

import (
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/platinummonkey/cristata/pkg/schema"
)

// ObjectIDScalar serializes mongo object ids as hex strings
var ObjectIDScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "ObjectID",
	Description: "A 24 character hex document id",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case primitive.ObjectID:
			return v.Hex()
		case *primitive.ObjectID:
			if v == nil {
				return nil
			}
			return v.Hex()
		case string:
			return v
		}
		return nil
	},
	ParseValue: func(value interface{}) interface{} {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		return parseObjectID(s)
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		s, ok := valueAST.(*ast.StringValue)
		if !ok {
			return nil
		}
		return parseObjectID(s.Value)
	},
})

func parseObjectID(s string) interface{} {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil
	}
	return id
}

// DateScalar serializes times as RFC 3339 strings
var DateScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Date",
	Description: "An RFC 3339 timestamp",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case time.Time:
			return v.UTC().Format(time.RFC3339Nano)
		case primitive.DateTime:
			return v.Time().UTC().Format(time.RFC3339Nano)
		case string:
			return v
		}
		return nil
	},
	ParseValue: func(value interface{}) interface{} {
		s, ok := value.(string)
		if !ok {
			return nil
		}
		return parseDate(s)
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		s, ok := valueAST.(*ast.StringValue)
		if !ok {
			return nil
		}
		return parseDate(s.Value)
	},
})

func parseDate(s string) interface{} {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return nil
}

// JSONScalar passes arbitrary values through
var JSONScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON",
	Serialize:   plainValue,
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: literalValue,
})

// plainValue converts driver types into JSON friendly values
func plainValue(value interface{}) interface{} {
	if m, ok := schema.AsMap(value); ok {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = plainValue(v)
		}
		return out
	}
	if s, ok := schema.AsSlice(value); ok {
		out := make([]interface{}, len(s))
		for i, v := range s {
			out[i] = plainValue(v)
		}
		return out
	}
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return v.String()
	}
	return value
}

func literalValue(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil
		}
		return f
	case *ast.EnumValue:
		return v.Value
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			out = append(out, literalValue(item))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name.Value] = literalValue(f.Value)
		}
		return out
	}
	return nil
}
