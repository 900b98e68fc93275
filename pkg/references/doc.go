// Package references replaces reference ids in query results with the
// documents they point to.
//
// A Resolver walks the reference fields of a collection that the caller
// selected, including fields inside doc arrays, and loads every target in
// one batch per collection and nesting level. Lookups are shared through
// futures keyed by collection and id, so two fields or two documents
// pointing at the same target issue one query as long as the first lookup
// selects enough fields. When only _id is selected no query runs at all.
// Doc arrays nested inside other doc arrays are rejected with
// ErrAmbiguousPath.
package references
