// Package engine implements the execution environment that hosts the pet
// registry.
//
// The environment accepts signed requests, applies them to the registry one
// at a time, journals each request with its receipt, and answers read-only
// queries against the current state.
//
// ARCHITECTURE:
//
// Single-Writer Apply Loop:
// Every mutation happens in the goroutine running Engine.Run. Submissions
// from any goroutine are stamped with a seq and placed on a FIFO queue.
// This ensures:
// - Requests are applied in seq order, so replay reproduces state exactly
// - Two adoptions of the same pet race deterministically: the lower seq wins
// - Queries never observe a half-applied request
//
// Request Flow:
//  1. Submit validates and preflights the request against current state
//  2. Accepted requests get a seq and a content-addressed request id
//  3. Run dequeues the request and re-checks it against the then-current state
//  4. The request and its receipt are journaled in one transaction
//  5. The registry is mutated and the waiting Handle is completed
//
// A request that passes preflight may still fail at apply time when an
// earlier request in the queue changed the state. That failure is recorded
// as a failure receipt, never silently dropped.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// All requests stamped with monotonic seq counter from Clock.Next().
// NEVER use wall-clock timestamps for ordering.
//
// Journal Before Mutation:
// The registry changes only after the journal write commits. A failed
// write leaves both the journal and the registry untouched.
package engine
