// Package store provides SQLite-backed durable storage for the registry
// journal.
//
// The store is an append-only ledger with:
//   - Registry meta: owner, initial pet count and network id, written once
//   - Requests: every request the environment accepted, in seq order
//   - Receipts: exactly one terminal receipt per accepted request
//   - Adoptions: projection of successful adoptions, one row per pet
//
// Requests rejected before acceptance are never journaled.
//
// # Ordering
//
// All ordering uses the seq INTEGER assigned by the engine's logical clock,
// never timestamps. Journal reads are ORDER BY seq ASC so that replay
// re-applies requests in exactly the order they were first applied.
//
// # At-most-once adoption
//
// adoptions.entity_id is the PRIMARY KEY. A request, its receipt and the
// adoption row are written in one transaction, so the database itself
// refuses a second owner for a pet even if a caller bypassed the engine.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: receipts must reference a journaled request
package store
