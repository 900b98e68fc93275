// Package rbac evaluates collection permissions for tenant documents.
//
// # Overview
//
// Every collection carries an ActionAccess configuration mapping actions
// (get, create, modify, ...) onto a Rule. A rule lists team grants and user
// grants. Grants are classified once, when the collection is generated:
//
//	0 or "0"              - anyone (in either list)
//	24 hex characters     - a team id (teams) or a user id (users)
//	any other team value  - a team slug, resolved at check time
//	any other user value  - a document path holding user ids
//
// # Evaluation
//
// PermissionChecker.CanDo fails with an unauthenticated error when no
// profile is present. A profile with a pending NextStep is denied. Grants are
// then checked cheapest first: anyone sentinels, user ids, document paths,
// team ids and finally team slugs.
//
// # Document access
//
// AccessFilter builds the query condition limiting reads to documents whose
// permissions field lists one of the caller's teams, the caller, or one of
// the open sentinels.
//
// # Team slugs
//
// Store resolves slugs against the tenant's teams collection. TeamCache puts
// an in-process LRU and an optional redis tier in front of it.
package rbac
