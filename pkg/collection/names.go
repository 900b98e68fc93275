package collection

import (
	"regexp"
	"strings"
	"unicode"

	pluralize "github.com/gertd/go-pluralize"
)

var (
	plurals      = pluralize.NewClient()
	namePattern  = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
	fieldPattern = regexp.MustCompile(`^[_A-Za-z][_A-Za-z0-9]*$`)
)

// Names are the identifiers derived from a collection name
type Names struct {
	// Type is the GraphQL object type, for example "Article".
	Type string
	// One is the single document query, for example "article".
	One string
	// Many is the paged query, for example "articles".
	Many string
	// Collection is the storage collection, for example "articles".
	Collection string
}

// NamesFor derives the GraphQL and storage names of a collection
func NamesFor(name string) Names {
	one := uncapitalize(name)
	many := plurals.Plural(one)
	if many == one {
		many = one + "List"
	}
	return Names{
		Type:       name,
		One:        one,
		Many:       many,
		Collection: strings.ToLower(plurals.Plural(name)),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func uncapitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// typeName joins path segments into a nested type name:
// ("Article", "people") -> "ArticlePeople".
func typeName(parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		for _, seg := range strings.Split(p, "_") {
			b.WriteString(capitalize(seg))
		}
	}
	return b.String()
}
