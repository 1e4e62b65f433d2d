package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/petadopt/internal/ir"
)

var (
	testOwner   = ir.MustAddress("0x0000000000000000000000000000000000000001")
	testAdopter = ir.MustAddress("0x0000000000000000000000000000000000000002")
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// adoptEntry builds a journal entry for an adoption with the given outcome.
func adoptEntry(id string, seq int64, caller ir.Address, pet ir.EntityID, status ir.Status) Entry {
	r := ir.Receipt{
		RequestID: id,
		Seq:       seq,
		Caller:    caller,
		Kind:      ir.KindAdoptEntity,
		EntityID:  pet,
		Status:    status,
		Version:   uint64(seq),
	}
	if status == ir.StatusFailure {
		r.Code = ir.ErrCodeAlreadyAdopted
		r.Reason = ir.ReasonAlreadyAdopted
	}
	return Entry{Session: "session-1", Request: ir.AdoptEntity{ID: pet}, Receipt: r}
}

// addEntry builds a successful add-entity journal entry.
func addEntry(id string, seq int64, created ir.EntityID) Entry {
	return Entry{
		Session: "session-owner",
		Request: ir.AddEntity{},
		Receipt: ir.Receipt{
			RequestID: id,
			Seq:       seq,
			Caller:    testOwner,
			Kind:      ir.KindAddEntity,
			EntityID:  created,
			Status:    ir.StatusSuccess,
			Version:   uint64(seq),
		},
	}
}
