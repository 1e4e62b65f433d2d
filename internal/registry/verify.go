package registry

import "fmt"

// Verify checks the registry invariants and returns the first violation.
func (r *Registry) Verify() error {
	seen := make(map[uint64]bool, len(r.ownerOf))
	for addr, ids := range r.byAddress {
		if addr.IsZero() {
			return fmt.Errorf("invariant 4: ids indexed under the unset address")
		}
		for _, id := range ids {
			if uint64(id) >= r.entityCount {
				return fmt.Errorf("invariant 2: adopted id %d >= entity count %d", id, r.entityCount)
			}
			if seen[uint64(id)] {
				return fmt.Errorf("invariant 4: id %d indexed more than once", id)
			}
			seen[uint64(id)] = true
			if r.ownerOf[id] != addr {
				return fmt.Errorf("invariant 4: id %d indexed under %s but owned by %s", id, addr.Hex(), r.ownerOf[id].Hex())
			}
		}
	}
	if len(seen) != len(r.ownerOf) {
		return fmt.Errorf("invariant 5: %d adopted ids but %d indexed", len(r.ownerOf), len(seen))
	}
	for id, owner := range r.ownerOf {
		if owner.IsZero() {
			return fmt.Errorf("invariant 3: id %d has an empty owner record", id)
		}
	}
	return nil
}
