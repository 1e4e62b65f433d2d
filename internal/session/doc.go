// Package session implements the client side of a pet adoption: the
// transaction orchestrator and the cached view it maintains for one
// connected identity.
//
// # Lifecycle
//
// A session drives at most one state-changing request at a time:
//
//	Idle -> Building -> Submitted -> Confirmed | Failed
//
// Confirmed and Failed are resting states; the next Submit starts a new
// cycle from either of them exactly as from Idle. A Submit while a request
// is Building or Submitted fails with BUSY.
//
// # State transitions
//
// All orchestrator state lives in a Machine value. The only way to change
// it is Transition, a pure function of the current Machine and an Event.
// Session is the impure shell around it: it talks to the wallet and the
// environment, turns what they report into Events, and stores the Machine
// Transition returns. Nothing mutates state from inside a wait.
//
// # Cache
//
// The cache (adopted flags plus the identity's owned ids) is derived from
// one registry snapshot whenever the identity changes, and updated
// optimistically only after a confirmed adoption. A failed request never
// touches it.
//
// # Identity changes
//
// When the wallet reports a new identity the cache and any pending request
// tracking are discarded, and AwaitOutcome returns ABANDONED. The request
// itself is not withdrawn; the environment still applies it.
package session
