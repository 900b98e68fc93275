// Package schema models collection field definitions and flattens them into
// ordered (path, definition) pairs.
//
// # Type tokens
//
// A field definition's type is one of:
//
//	"String"                  scalar
//	["String"]                array of scalars
//	["User", "ObjectId"]      reference to one User
//	["[User]", "ObjectId"]    reference to many Users
//	"DocArray"                array of sub-documents described by "docs"
//
// # Paths
//
// Deconstruct visits keys in sorted order. Sub-fields of a DocArray are
// emitted with a positional marker, e.g. "history.$.user". A path that passes
// through more than one marker cannot be addressed unambiguously by a single
// update and is rejected by the reference resolver.
//
// The package also owns the standard field sets merged into every collection
// and renders a MongoDB $jsonSchema validator from a definition.
package schema
