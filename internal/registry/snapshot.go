package registry

import "github.com/roach88/petadopt/internal/ir"

// Snapshot is a point-in-time read of the registry for one address.
// Adopted and Owned are taken at the same Version.
type Snapshot struct {
	Version     uint64        `json:"version"`
	Owner       ir.Address    `json:"owner"`
	EntityCount uint64        `json:"entity_count"`
	Adopted     []ir.EntityID `json:"adopted"`
	Owned       []ir.EntityID `json:"owned"`
}

// SnapshotFor reads the global adopted set and addr's adoptions together.
func (r *Registry) SnapshotFor(addr ir.Address) Snapshot {
	owned := []ir.EntityID{}
	if !addr.IsZero() {
		owned = r.GetAdoptedIdsByOwner(addr)
	}
	return Snapshot{
		Version:     r.version,
		Owner:       r.owner,
		EntityCount: r.entityCount,
		Adopted:     r.GetAllAdoptedIds(),
		Owned:       owned,
	}
}
