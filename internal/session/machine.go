package session

import (
	"fmt"
	"slices"

	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/registry"
)

// State is the orchestrator lifecycle state.
type State int

const (
	// StateIdle means no request has been made since the last reset.
	StateIdle State = iota
	// StateBuilding means a request is being built and not yet accepted.
	StateBuilding
	// StateSubmitted means the environment accepted the request and its
	// outcome is not yet known.
	StateSubmitted
	// StateConfirmed means the last request succeeded.
	StateConfirmed
	// StateFailed means the last request was rejected or failed.
	StateFailed
)

// String returns the lowercase state name used in views and logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSubmitted:
		return "submitted"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// InFlight reports whether a request occupies the session.
func (s State) InFlight() bool {
	return s == StateBuilding || s == StateSubmitted
}

// PendingRequest tracks the one request a session may have in flight.
type PendingRequest struct {
	RequestID string         `json:"request_id,omitempty"`
	Seq       int64          `json:"seq,omitempty"`
	Kind      ir.RequestKind `json:"kind"`
	EntityID  ir.EntityID    `json:"entity_id"`
	State     State          `json:"-"`
}

// Cache is the client's derived, non-authoritative view of the registry
// for one identity.
type Cache struct {
	Identity ir.Address
	Version  uint64 // registry version the cache was last derived from
	adopted  map[ir.EntityID]bool
	owned    []ir.EntityID
}

// cacheFrom derives a cache from an authoritative snapshot.
func cacheFrom(identity ir.Address, snap registry.Snapshot) Cache {
	c := Cache{
		Identity: identity,
		Version:  snap.Version,
		adopted:  make(map[ir.EntityID]bool, len(snap.Adopted)),
		owned:    slices.Clone(snap.Owned),
	}
	for _, id := range snap.Adopted {
		c.adopted[id] = true
	}
	return c
}

func (c Cache) clone() Cache {
	out := c
	out.adopted = make(map[ir.EntityID]bool, len(c.adopted))
	for id := range c.adopted {
		out.adopted[id] = true
	}
	out.owned = slices.Clone(c.owned)
	return out
}

// IsAdopted reports whether the cache marks id as adopted.
func (c Cache) IsAdopted(id ir.EntityID) bool {
	return c.adopted[id]
}

// Adopted returns the cached adopted ids in ascending order.
func (c Cache) Adopted() []ir.EntityID {
	out := make([]ir.EntityID, 0, len(c.adopted))
	for id := range c.adopted {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Owned returns the identity's ids in adoption order.
func (c Cache) Owned() []ir.EntityID {
	if c.owned == nil {
		return []ir.EntityID{}
	}
	return slices.Clone(c.owned)
}

// Machine is the complete orchestrator state.
type Machine struct {
	State     State
	Pending   *PendingRequest
	Cache     Cache
	LastError error
}

// Event is the closed set of inputs to Transition.
type Event interface {
	isEvent()
}

// Build starts a new request.
type Build struct {
	Request ir.Request
}

// Accepted reports that the environment queued the request.
type Accepted struct {
	RequestID string
	Seq       int64
}

// Rejected reports that the environment declined the request at submit.
type Rejected struct {
	Err error
}

// Outcome reports the terminal result for the pending request.
// Err is set when the environment produced no receipt. Snapshot, when set,
// is an authoritative read taken after the receipt; a confirmed outcome
// reconciles the cache against it.
type Outcome struct {
	RequestID string
	Receipt   ir.Receipt
	Err       error
	Snapshot  *registry.Snapshot
}

// IdentityChanged replaces the identity. Snapshot is ignored when Identity
// is unset.
type IdentityChanged struct {
	Identity ir.Address
	Snapshot registry.Snapshot
}

// Refreshed re-derives the cache for the current identity.
type Refreshed struct {
	Snapshot registry.Snapshot
}

// Dismissed clears the last error.
type Dismissed struct{}

func (Build) isEvent()           {}
func (Accepted) isEvent()        {}
func (Rejected) isEvent()        {}
func (Outcome) isEvent()         {}
func (IdentityChanged) isEvent() {}
func (Refreshed) isEvent()       {}
func (Dismissed) isEvent()       {}

// Transition returns the Machine that results from applying ev to m.
//
// m is never modified. When ev is not valid in m's state, Transition
// returns m unchanged together with an error: BUSY for a Build while a
// request is in flight, a plain error for out-of-order events.
func Transition(m Machine, ev Event) (Machine, error) {
	switch e := ev.(type) {
	case Build:
		if m.State.InFlight() {
			return m, ir.NewError(ir.ErrCodeBusy, "a request is already in flight", "")
		}
		if e.Request == nil {
			return m, fmt.Errorf("build: request is required")
		}
		target, _ := ir.TargetOf(e.Request)
		next := m
		next.State = StateBuilding
		next.Pending = &PendingRequest{Kind: e.Request.Kind(), EntityID: target, State: StateBuilding}
		return next, nil

	case Accepted:
		if m.State != StateBuilding {
			return m, fmt.Errorf("accepted in state %s", m.State)
		}
		p := *m.Pending
		p.RequestID = e.RequestID
		p.Seq = e.Seq
		p.State = StateSubmitted
		next := m
		next.State = StateSubmitted
		next.Pending = &p
		return next, nil

	case Rejected:
		if m.State != StateBuilding {
			return m, fmt.Errorf("rejected in state %s", m.State)
		}
		next := m
		next.State = StateFailed
		next.Pending = nil
		next.LastError = e.Err
		return next, nil

	case Outcome:
		if m.State != StateSubmitted || m.Pending == nil || m.Pending.RequestID != e.RequestID {
			return m, fmt.Errorf("outcome for %s does not match pending request", e.RequestID)
		}
		return settle(m, e), nil

	case IdentityChanged:
		next := Machine{State: StateIdle}
		if e.Identity.IsZero() {
			// Disconnection clears everything, including the last error.
			return next, nil
		}
		next.Cache = cacheFrom(e.Identity, e.Snapshot)
		next.LastError = m.LastError
		return next, nil

	case Refreshed:
		next := m
		next.Cache = cacheFrom(m.Cache.Identity, e.Snapshot)
		return next, nil

	case Dismissed:
		next := m
		next.LastError = nil
		return next, nil

	default:
		return m, fmt.Errorf("unknown event %T", ev)
	}
}

// settle moves a submitted request to Confirmed or Failed and clears the
// pending slot either way.
func settle(m Machine, e Outcome) Machine {
	next := m
	next.Pending = nil

	if e.Err != nil {
		next.State = StateFailed
		next.LastError = e.Err
		return next
	}

	if !e.Receipt.Succeeded() {
		reason := e.Receipt.Reason
		if reason == "" {
			reason = ir.ReasonTxFailed
		}
		next.State = StateFailed
		next.LastError = &ir.Error{
			Code:    ir.ErrCodeEnvironmentFailed,
			Message: fmt.Sprintf("%s %s failed at seq %d", e.Receipt.Kind, e.RequestID, e.Receipt.Seq),
			Reason:  reason,
		}
		return next
	}

	next.State = StateConfirmed
	if e.Snapshot != nil && e.Snapshot.Version >= e.Receipt.Version {
		next.Cache = cacheFrom(m.Cache.Identity, *e.Snapshot)
	} else {
		next.Cache = m.Cache.clone()
	}
	if e.Receipt.Kind == ir.KindAdoptEntity {
		id := e.Receipt.EntityID
		next.Cache.adopted[id] = true
		if !slices.Contains(next.Cache.owned, id) {
			next.Cache.owned = append(next.Cache.owned, id)
		}
	}
	return next
}
