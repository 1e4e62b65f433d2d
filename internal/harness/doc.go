// Package harness runs conformance scenarios against the pet registry.
//
// A scenario starts a fresh environment (in-memory journal, registry with
// an owner and an initial pet count), connects one session per named
// account and drives adoptions and additions through those sessions. Every
// request outcome is appended to a trace that can be asserted on and
// compared with a golden file.
//
// # Scenario Format
//
//	name: adopt_once
//	description: "A pet can be adopted exactly once"
//	registry:
//	  owner: owner
//	  initial_pets: 3
//	accounts:
//	  owner: "0x0000000000000000000000000000000000000001"
//	  alice: "0x00000000000000000000000000000000000000a1"
//	flow:
//	  - as: alice
//	    adopt: 1
//	    expect: { outcome: confirmed }
//	  - concurrent:
//	      - { as: alice, adopt: 2 }
//	      - { as: bob, adopt: 2 }
//	assertions:
//	  - type: owner_of
//	    entity: 1
//	    account: alice
//
// A concurrent group submits every member before any is applied, so each
// passes the environment's preflight and the apply order decides the
// winner.
//
// # Assertion Types
//
//   - trace_contains: some trace event matches kind/account/outcome/entity
//   - trace_count: exactly count trace events match
//   - owner_of: the adopter of entity (account "none" for unadopted)
//   - adopted_ids: every adopted id, ascending
//   - adopted_by: ids adopted by account, in adoption order
//   - journal_count: number of journaled requests
//
// # Deterministic Testing
//
// Session tokens come from testutil.SequentialTokens seeded with the
// scenario name, and queued requests are applied with
// engine.ApplyQueued instead of a background loop, so identical scenarios
// produce byte-identical traces.
package harness
