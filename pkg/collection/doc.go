// Package collection turns collection specs into GraphQL.
//
// Generate compiles one spec into a Collection: the merged field
// definitions, the document model used by the documents package, a
// declarative table of field resolvers and the type definitions. Build
// combines a tenant's collections with the built in User, Team, File and
// Activity collections, validates the type definitions and returns an
// executable schema whose resolvers delegate to the document service and
// the reference resolver.
//
// Generated operations for a collection named Article:
//
//	article(_id)                  articles(filter, sort, page, offset, limit)
//	articleActionAccess(_id)      articlePublic / articlesPublic / articleBySlugPublic
//	articleCreate(input)          articleModify(_id, input)
//	articleClone / Hide / Archive / Lock / Watch / Delete / Publish
package collection
