// Package crdt mirrors document changes into the collaborative editing
// server.
//
// Collaborative documents are addressed as tenant.collection.id. A Change
// carries typed field setters built by Ops from a collection definition.
// Client sends changes over a single websocket, correlating responses by
// message id. Every call is bounded by a timeout and reconnects are capped;
// the outcome is a Result (ok, timed out or transport error) rather than a
// bare error so callers can tell slow servers from broken ones.
package crdt
