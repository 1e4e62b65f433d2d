package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/petadopt/internal/registry"
	"github.com/roach88/petadopt/internal/store"
)

// Open rebuilds an Engine from a journal.
//
// The registry is recreated from the recorded meta and every journal entry
// is re-applied in seq order through the same code path Run uses. Each
// replayed receipt must equal the recorded one; the first mismatch aborts
// with a *DivergenceError. The clock resumes after the last journaled seq.
//
// The store must have been initialised with store.InitMeta. WithStore is
// implied; WithNetworkID defaults to the recorded network id.
func Open(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	meta, ok, err := s.ReadMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("open environment: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("open environment: registry not initialised")
	}

	reg, err := registry.New(meta.Owner, meta.InitialCount)
	if err != nil {
		return nil, fmt.Errorf("open environment: %w", err)
	}

	entries, err := s.ReadJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("open environment: %w", err)
	}

	for _, entry := range entries {
		replayed := outcome(reg, entry.Receipt.Caller, entry.Request)
		replayed.RequestID = entry.Receipt.RequestID
		replayed.Seq = entry.Receipt.Seq

		if replayed != entry.Receipt {
			return nil, &DivergenceError{
				RequestID: entry.Receipt.RequestID,
				Seq:       entry.Receipt.Seq,
				Recorded:  entry.Receipt,
				Replayed:  replayed,
			}
		}
		if replayed.Succeeded() {
			if _, err := reg.Apply(entry.Receipt.Caller, entry.Request); err != nil {
				return nil, fmt.Errorf("open environment: replay seq %d: %w", entry.Receipt.Seq, err)
			}
		}
	}

	if err := reg.Verify(); err != nil {
		return nil, fmt.Errorf("open environment: %w", err)
	}

	lastSeq, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("open environment: %w", err)
	}

	slog.Info("journal replayed",
		"entries", len(entries),
		"last_seq", lastSeq,
		"version", reg.Version(),
		"owner", meta.Owner.Hex(),
	)

	base := []Option{
		WithStore(s),
		WithNetworkID(meta.NetworkID),
		WithClock(NewClockAt(lastSeq)),
	}
	return New(reg, append(base, opts...)...), nil
}
