package registry

import (
	"fmt"
	"slices"

	"github.com/roach88/petadopt/internal/ir"
)

// EntityState is the lifecycle position of one id.
type EntityState int

const (
	// StateNonExistent means the id has not been created yet.
	StateNonExistent EntityState = iota
	// StateUnadopted means the id exists and can be adopted.
	StateUnadopted
	// StateAdopted is terminal.
	StateAdopted
)

// String returns the state name.
func (s EntityState) String() string {
	switch s {
	case StateNonExistent:
		return "non_existent"
	case StateUnadopted:
		return "unadopted"
	case StateAdopted:
		return "adopted"
	default:
		return fmt.Sprintf("EntityState(%d)", int(s))
	}
}

// Entity is the registry's view of one pet.
type Entity struct {
	ID      ir.EntityID `json:"id"`
	Adopted bool        `json:"adopted"`
	Owner   ir.Address  `json:"owner,omitempty"`
}

// Effect describes what a successful Apply changed.
type Effect struct {
	Kind     ir.RequestKind
	EntityID ir.EntityID // Created id for add, adopted id for adopt
	Version  uint64      // Registry version after the change
}

// Registry is the versioned registry state.
type Registry struct {
	owner       ir.Address
	entityCount uint64
	ownerOf     map[ir.EntityID]ir.Address
	byAddress   map[ir.Address][]ir.EntityID
	version     uint64
}

// New creates a registry owned by owner with initial pets already created
// (ids 0..initial-1, all unadopted). The owner is fixed for the lifetime of
// the registry.
func New(owner ir.Address, initial uint64) (*Registry, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("registry owner is required")
	}
	return &Registry{
		owner:       owner,
		entityCount: initial,
		ownerOf:     make(map[ir.EntityID]ir.Address),
		byAddress:   make(map[ir.Address][]ir.EntityID),
	}, nil
}

// Apply executes one request on behalf of caller.
// Dispatch is exhaustive over the closed request set.
func (r *Registry) Apply(caller ir.Address, req ir.Request) (Effect, error) {
	switch q := req.(type) {
	case ir.AddEntity:
		id, err := r.AddEntity(caller)
		if err != nil {
			return Effect{}, err
		}
		return Effect{Kind: ir.KindAddEntity, EntityID: id, Version: r.version}, nil

	case ir.AdoptEntity:
		if err := r.AdoptEntity(caller, q.ID); err != nil {
			return Effect{}, err
		}
		return Effect{Kind: ir.KindAdoptEntity, EntityID: q.ID, Version: r.version}, nil

	default:
		return Effect{}, fmt.Errorf("unknown request type %T", req)
	}
}

// Check reports the error Apply would return for req, without mutating.
// Used by the environment to preflight submissions.
func (r *Registry) Check(caller ir.Address, req ir.Request) error {
	switch q := req.(type) {
	case ir.AddEntity:
		return r.checkAdd(caller)
	case ir.AdoptEntity:
		return r.checkAdopt(caller, q.ID)
	default:
		return fmt.Errorf("unknown request type %T", req)
	}
}

// AddEntity creates one pet with id = entityCount. Owner only.
func (r *Registry) AddEntity(caller ir.Address) (ir.EntityID, error) {
	if err := r.checkAdd(caller); err != nil {
		return 0, err
	}
	id := ir.EntityID(r.entityCount)
	r.entityCount++
	r.version++
	return id, nil
}

// AdoptEntity records caller as the owner of id.
func (r *Registry) AdoptEntity(caller ir.Address, id ir.EntityID) error {
	if err := r.checkAdopt(caller, id); err != nil {
		return err
	}
	r.ownerOf[id] = caller
	r.byAddress[caller] = append(r.byAddress[caller], id)
	r.version++
	return nil
}

func (r *Registry) checkAdd(caller ir.Address) error {
	if caller != r.owner {
		return ir.NewError(ir.ErrCodeUnauthorized,
			fmt.Sprintf("caller %s is not the registry owner", caller.Hex()), ir.ReasonOnlyOwner)
	}
	return nil
}

func (r *Registry) checkAdopt(caller ir.Address, id ir.EntityID) error {
	if caller.IsZero() {
		return ir.NewError(ir.ErrCodeUnauthorized, "adopter address is required", "")
	}
	if uint64(id) >= r.entityCount {
		return ir.NewError(ir.ErrCodeOutOfRange,
			fmt.Sprintf("pet %d does not exist (count=%d)", id, r.entityCount), ir.ReasonDoesNotExist)
	}
	if _, taken := r.ownerOf[id]; taken {
		return ir.NewError(ir.ErrCodeAlreadyAdopted,
			fmt.Sprintf("pet %d already adopted", id), ir.ReasonAlreadyAdopted)
	}
	return nil
}

// GetOwner returns the registry owner.
func (r *Registry) GetOwner() ir.Address {
	return r.owner
}

// EntityCount returns the next id to assign.
func (r *Registry) EntityCount() uint64 {
	return r.entityCount
}

// Version returns the number of successful mutations applied.
func (r *Registry) Version() uint64 {
	return r.version
}

// GetAllAdoptedIds returns every adopted id in ascending order.
// Never nil.
func (r *Registry) GetAllAdoptedIds() []ir.EntityID {
	ids := make([]ir.EntityID, 0, len(r.ownerOf))
	for id := range r.ownerOf {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// GetAdoptedIdsByOwner returns the ids adopted by addr in adoption order.
// Never nil. The returned slice is a copy.
func (r *Registry) GetAdoptedIdsByOwner(addr ir.Address) []ir.EntityID {
	return append([]ir.EntityID{}, r.byAddress[addr]...)
}

// GetOwnerOfEntity returns the owner of id, or ir.NoAddress when the id is
// unadopted or out of range. Total: never fails.
func (r *Registry) GetOwnerOfEntity(id ir.EntityID) ir.Address {
	return r.ownerOf[id]
}

// StateOf returns the lifecycle state of id.
func (r *Registry) StateOf(id ir.EntityID) EntityState {
	switch {
	case uint64(id) >= r.entityCount:
		return StateNonExistent
	case !r.ownerOf[id].IsZero():
		return StateAdopted
	default:
		return StateUnadopted
	}
}

// Entity returns the entity with the given id, or false if it does not exist.
func (r *Registry) Entity(id ir.EntityID) (Entity, bool) {
	if r.StateOf(id) == StateNonExistent {
		return Entity{}, false
	}
	owner := r.ownerOf[id]
	return Entity{ID: id, Adopted: !owner.IsZero(), Owner: owner}, true
}

// Clone returns an independent deep copy.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		owner:       r.owner,
		entityCount: r.entityCount,
		ownerOf:     make(map[ir.EntityID]ir.Address, len(r.ownerOf)),
		byAddress:   make(map[ir.Address][]ir.EntityID, len(r.byAddress)),
		version:     r.version,
	}
	for id, a := range r.ownerOf {
		c.ownerOf[id] = a
	}
	for a, ids := range r.byAddress {
		c.byAddress[a] = append([]ir.EntityID(nil), ids...)
	}
	return c
}
