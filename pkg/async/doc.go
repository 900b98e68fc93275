// Package async runs best-effort background work.
//
// SafeGo detaches a task from request cancellation, bounds it with a
// timeout and recovers panics. Batch fans work out over a bounded number of
// goroutines and collects the errors in item order. Once drops overlapping
// runs for the same key.
package async
