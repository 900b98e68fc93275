package collection

import (
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/platinummonkey/cristata/pkg/references"
)

// selectedFields converts the selection of the resolving field into the
// field set the reference resolver understands. GraphQL field names are
// the storage keys, so the tree maps onto document paths directly.
func selectedFields(info graphql.ResolveInfo) references.FieldSet {
	fs := references.FieldSet{}
	for _, field := range info.FieldASTs {
		collectSelections(fs, field.SelectionSet, info.Fragments)
	}
	return fs
}

func collectSelections(fs references.FieldSet, set *ast.SelectionSet, fragments map[string]ast.Definition) {
	if set == nil {
		return
	}
	for _, selection := range set.Selections {
		switch s := selection.(type) {
		case *ast.Field:
			name := s.Name.Value
			if strings.HasPrefix(name, "__") {
				continue
			}
			child, ok := fs[name]
			if !ok {
				child = references.FieldSet{}
				fs[name] = child
			}
			collectSelections(child, s.SelectionSet, fragments)
		case *ast.InlineFragment:
			collectSelections(fs, s.SelectionSet, fragments)
		case *ast.FragmentSpread:
			if def, ok := fragments[s.Name.Value].(*ast.FragmentDefinition); ok {
				collectSelections(fs, def.SelectionSet, fragments)
			}
		}
	}
}
