// Package documents reads and mutates documents of generated collections.
//
// Reads go through FindDoc and FindDocs. Both combine the caller's filter
// with an access filter: empty for full access, administrators, callers
// granted bypassDocPermissions and collections without a permissions
// field, otherwise the condition built by rbac.AccessFilter. FindDoc
// returns the newest match by _id and nil when nothing matches. FindDocs
// pages with page or offset (offset wins) and caps every page at MaxLimit.
//
// Mutations share one sequence:
//
//  1. require a profile
//  2. load the target with full access; documents the caller cannot see
//     fail with the same not-found error as missing ones
//  3. check the action, plus publish rights when hiding, archiving or
//     locking a published document
//  4. apply the change in memory and append a history entry
//  5. persist
//  6. record an activity (best effort)
//  7. mirror the change to the collaborative store; a failure is returned
//     while the persisted change stays
//  8. re-read the document
package documents
