// Package registry implements the authoritative pet registry state machine.
//
// The registry owns entity existence, adoption status and the two ownership
// indexes. Every mutation is applied atomically: it either fully applies or
// returns an error with no effect.
//
// STATE MACHINE (per entity):
//
//	NonExistent --AddEntity--> Unadopted --AdoptEntity--> Adopted (terminal)
//
// INVARIANTS (hold after every Apply):
//  1. entityCount increases by exactly 1 per successful AddEntity and never
//     decreases.
//  2. An id is adoptable iff id < entityCount and it has no owner.
//  3. An owner, once recorded, is never overwritten or cleared.
//  4. id appears in byAddress[a] iff ownerOf[id] == a; no duplicates and no
//     id under more than one address.
//  5. The set of adopted ids equals the disjoint union of all byAddress
//     sequences.
//
// Verify checks all five and is run by tests after every step.
//
// CONCURRENCY:
// A Registry is a plain value with no internal locking. It must be driven by
// a single writer (see internal/engine) so that concurrent adoptions of the
// same id are totally ordered: the first applied succeeds, every later one
// observes ALREADY_ADOPTED. The registry never blocks.
package registry
