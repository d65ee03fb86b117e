// Package engine implements cascading invalidation of provenance records.
//
// Invalidate marks a record invalid and, by default, walks its successors
// depth-first marking each descendant invalid with the same cause. Every
// descendant's invalidation points at the cascade root directly (the root is
// flattened, not chained per hop), so "why is this invalid" is one lookup.
//
// ALGORITHM:
//
// The walk uses an explicit stack, not call recursion, so deep derivation
// chains cost heap, not goroutine stack. For each record:
//  1. Re-read it; an already invalid record is skipped
//  2. Create an Invalidation and bind it
//  3. Push its successors
//  4. When all successors are finished, fire its action (post-order)
//
// Records already invalid are skipped, which makes diamonds safe. A record
// reached again while it is still on the active path is a cycle and fails
// the call with CYCLE_DETECTED. Paths deeper than the configured maximum fail
// with LIMIT_EXCEEDED.
//
// TRANSACTIONS:
//
// The engine never commits. Pass a *store.Session to make a cascade atomic;
// on error the caller rolls back. With a nil session every store call is its
// own transaction and a failed cascade leaves a partial result.
package engine
