package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/petadopt/internal/ir"
)

// Entry is one journaled request together with its terminal receipt.
type Entry struct {
	Session string
	Request ir.Request
	Receipt ir.Receipt
}

// WriteEntry atomically writes a request, its receipt and, for a successful
// adoption, the adoption projection row.
//
// The adoptions PRIMARY KEY rejects a second owner for the same pet; in that
// case nothing from the entry is persisted.
func (s *Store) WriteEntry(ctx context.Context, e Entry) error {
	target, _ := ir.TargetOf(e.Request)
	r := e.Receipt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests
		(id, seq, session, caller, kind, entity_id, engine_version, contract_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RequestID,
		r.Seq,
		e.Session,
		r.Caller.Hex(),
		string(e.Request.Kind()),
		int64(target),
		ir.EngineVersion,
		ir.ContractVersion,
	)
	if err != nil {
		return fmt.Errorf("write entry: insert request %s: %w", r.RequestID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts
		(request_id, seq, status, code, reason, entity_id, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		r.RequestID,
		r.Seq,
		string(r.Status),
		string(r.Code),
		r.Reason,
		int64(r.EntityID),
		int64(r.Version),
	)
	if err != nil {
		return fmt.Errorf("write entry: insert receipt %s: %w", r.RequestID, err)
	}

	if r.Succeeded() && r.Kind == ir.KindAdoptEntity {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO adoptions (entity_id, owner, request_id)
			VALUES (?, ?, ?)
		`, int64(r.EntityID), r.Caller.Hex(), r.RequestID)
		if err != nil {
			return fmt.Errorf("write entry: insert adoption of pet %d: %w", r.EntityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write entry: commit: %w", err)
	}
	return nil
}

// journalSelect reads requests joined with their receipts.
const journalSelect = `
	SELECT r.id, r.seq, r.session, r.caller, r.kind, r.entity_id,
	       c.status, c.code, c.reason, c.entity_id, c.version
	FROM requests r
	JOIN receipts c ON c.request_id = r.id
`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc rowScanner) (Entry, error) {
	var (
		e                     Entry
		caller, kind          string
		status, code          string
		target, resultID, ver int64
	)
	if err := sc.Scan(
		&e.Receipt.RequestID, &e.Receipt.Seq, &e.Session, &caller, &kind, &target,
		&status, &code, &e.Receipt.Reason, &resultID, &ver,
	); err != nil {
		return Entry{}, err
	}

	addr, err := ir.ParseAddress(caller)
	if err != nil {
		return Entry{}, fmt.Errorf("journal %s: %w", e.Receipt.RequestID, err)
	}
	req, err := ir.DecodeRequest(ir.RequestKind(kind), target)
	if err != nil {
		return Entry{}, fmt.Errorf("journal %s: %w", e.Receipt.RequestID, err)
	}

	e.Request = req
	e.Receipt.Caller = addr
	e.Receipt.Kind = req.Kind()
	e.Receipt.Status = ir.Status(status)
	e.Receipt.Code = ir.ErrorCode(code)
	e.Receipt.EntityID = ir.EntityID(resultID)
	e.Receipt.Version = uint64(ver)
	return e, nil
}

// ReadJournal returns every entry in seq order.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadJournal(ctx context.Context) ([]Entry, error) {
	return s.queryEntries(ctx, journalSelect+` ORDER BY r.seq ASC`)
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}

	return entries, nil
}

// ReadReceipt returns the receipt for one request, or ok=false if the
// request was never journaled.
func (s *Store) ReadReceipt(ctx context.Context, requestID string) (ir.Receipt, bool, error) {
	row := s.db.QueryRowContext(ctx, journalSelect+` WHERE r.id = ?`, requestID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Receipt{}, false, nil
	}
	if err != nil {
		return ir.Receipt{}, false, fmt.Errorf("read receipt %s: %w", requestID, err)
	}
	return e.Receipt, true, nil
}

// ReadAdoptions returns the adoption projection as entity id -> owner.
func (s *Store) ReadAdoptions(ctx context.Context) (map[ir.EntityID]ir.Address, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, owner FROM adoptions ORDER BY entity_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query adoptions: %w", err)
	}
	defer rows.Close()

	out := make(map[ir.EntityID]ir.Address)
	for rows.Next() {
		var (
			id    int64
			owner string
		)
		if err := rows.Scan(&id, &owner); err != nil {
			return nil, fmt.Errorf("scan adoption: %w", err)
		}
		addr, err := ir.ParseAddress(owner)
		if err != nil {
			return nil, fmt.Errorf("adoption %d: %w", id, err)
		}
		out[ir.EntityID(id)] = addr
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate adoptions: %w", err)
	}
	return out, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM requests`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
