// Package ir provides the shared request/response contracts for petadopt.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// contracts the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Requests are a closed set (AddEntity, AdoptEntity). New operations
//     extend the set and every switch over Request must be updated.
//   - Entity ids are unsigned. Negative ids are rejected at the parsing
//     boundary and never reach the registry.
//   - Addresses are normalised to lowercase 0x-prefixed hex.
//   - Logical clocks (seq) only, never wall-clock timestamps.
package ir
