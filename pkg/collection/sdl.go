package collection

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/platinummonkey/cristata/pkg/apierr"
)

// actionAccessFields are the booleans returned by the action access queries
var actionAccessFields = []string{
	"get", "create", "modify", "hide", "lock", "archive", "watch", "delete", "publish", "bypassDocPermissions",
}

// BaseTypeDefs declares the types shared by every tenant schema
func BaseTypeDefs() string {
	var b strings.Builder
	b.WriteString("scalar ObjectID\nscalar Date\nscalar JSON\n\n")

	b.WriteString("type CollectionActionAccess {\n")
	for _, f := range actionAccessFields {
		fmt.Fprintf(&b, "  %s: Boolean!\n", f)
	}
	b.WriteString("}\n\n")

	b.WriteString(`type CollectionInfo {
  name: String!
  pluralName: String!
  canPublish: Boolean!
  withPermissions: Boolean!
  singleDocument: Boolean!
  previewUrl: String
}

type SignS3Result {
  signedRequest: String!
  location: String!
}

type Query {
  collections: [CollectionInfo!]!
}

type Mutation {
  signS3(fileName: String!, fileType: String!): SignS3Result!
}
`)
	return b.String()
}

func renderCollection(c *Collection) string {
	var b strings.Builder
	for _, obj := range c.Objects {
		fmt.Fprintf(&b, "type %s {\n", obj.Name)
		for _, f := range obj.Fields {
			fmt.Fprintf(&b, "  %s: %s\n", f.Name, f.Type)
		}
		b.WriteString("}\n\n")
	}
	for _, in := range c.Inputs {
		fmt.Fprintf(&b, "input %s {\n", in.Name)
		for _, f := range in.Fields {
			fmt.Fprintf(&b, "  %s: %s\n", f.Name, f.Type)
		}
		b.WriteString("}\n\n")
	}
	renderOperations(&b, "Query", c.Queries)
	renderOperations(&b, "Mutation", c.Mutations)
	return b.String()
}

func renderOperations(b *strings.Builder, root string, ops []Operation) {
	if len(ops) == 0 {
		return
	}
	fmt.Fprintf(b, "extend type %s {\n", root)
	for _, op := range ops {
		b.WriteString("  " + op.Name)
		if len(op.Args) > 0 {
			args := make([]string, 0, len(op.Args))
			for _, a := range op.Args {
				arg := a.Name + ": " + a.Type.String()
				if a.Default != nil {
					arg += fmt.Sprintf(" = %v", a.Default)
				}
				args = append(args, arg)
			}
			b.WriteString("(" + strings.Join(args, ", ") + ")")
		}
		fmt.Fprintf(b, ": %s\n", op.Type)
	}
	b.WriteString("}\n\n")
}

// TypeDefs assembles the tenant schema document from its collections
func TypeDefs(collections []*Collection) string {
	var b strings.Builder
	b.WriteString(BaseTypeDefs())
	for _, c := range collections {
		b.WriteString("\n")
		b.WriteString(c.TypeDefs)
	}
	return b.String()
}

// ValidateTypeDefs parses and validates a schema document
func ValidateTypeDefs(tenant, typeDefs string) (*ast.Schema, error) {
	parsed, err := gqlparser.LoadSchema(&ast.Source{Name: tenant + ".graphql", Input: typeDefs})
	if err != nil {
		return nil, apierr.Schema("tenant %s: invalid type definitions: %v", tenant, err)
	}
	return parsed, nil
}
