// Package audit records document lifecycle activity.
//
// Every mutation of a tenant document appends a HistoryEntry to the
// document itself and writes an Activity to the tenant's activity
// collection. Activity writes are a best-effort side effect: callers log a
// failed Record and carry on. The Activity collection never records
// activity about itself.
//
// Modify activities carry a path-level Diff of the document before and
// after the change, split into added, deleted and updated values. Fields
// that change on every write (history, modification timestamps and
// modifiers) are left out.
//
// MongoLogger writes to MongoDB, StructuredLogger mirrors records to the
// application log and MultiLogger fans out to both.
package audit
