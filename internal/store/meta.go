package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/petadopt/internal/ir"
)

// Meta is the immutable registry configuration recorded at creation.
type Meta struct {
	Owner        ir.Address
	InitialCount uint64
	NetworkID    uint64
}

// ErrMetaMismatch is returned when InitMeta is called with a configuration
// that differs from the one already recorded.
var ErrMetaMismatch = errors.New("registry meta already recorded with different values")

// InitMeta records the registry configuration once.
// Calling it again with identical values is a no-op; different values fail
// with ErrMetaMismatch because the owner is immutable.
func (s *Store) InitMeta(ctx context.Context, m Meta) error {
	existing, ok, err := s.ReadMeta(ctx)
	if err != nil {
		return fmt.Errorf("init meta: %w", err)
	}
	if ok {
		if existing != m {
			return fmt.Errorf("init meta: %w (have owner=%s count=%d network=%d)",
				ErrMetaMismatch, existing.Owner.Hex(), existing.InitialCount, existing.NetworkID)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO registry_meta (id, owner, initial_count, network_id)
		VALUES (1, ?, ?, ?)
	`, m.Owner.Hex(), int64(m.InitialCount), int64(m.NetworkID))
	if err != nil {
		return fmt.Errorf("init meta: %w", err)
	}
	return nil
}

// ReadMeta returns the recorded configuration, or ok=false if none exists.
func (s *Store) ReadMeta(ctx context.Context) (Meta, bool, error) {
	var (
		owner   string
		count   int64
		network int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner, initial_count, network_id FROM registry_meta WHERE id = 1
	`).Scan(&owner, &count, &network)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, fmt.Errorf("read meta: %w", err)
	}

	addr, err := ir.ParseAddress(owner)
	if err != nil {
		return Meta{}, false, fmt.Errorf("read meta: %w", err)
	}
	return Meta{Owner: addr, InitialCount: uint64(count), NetworkID: uint64(network)}, true, nil
}
