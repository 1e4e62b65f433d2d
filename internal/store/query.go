package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/petadopt/internal/ir"
)

// Predicate filters journal entries.
//
// This is a sealed interface: only Equals and And implement it, so
// CompilePredicate can switch over every case.
type Predicate interface {
	predicateNode()
}

// Column names a filterable journal column.
type Column string

// Filterable columns.
const (
	ColumnKind    Column = "r.kind"
	ColumnCaller  Column = "r.caller"
	ColumnSession Column = "r.session"
	ColumnStatus  Column = "c.status"
	ColumnEntity  Column = "c.entity_id" // receipt entity: created id for add, target for adopt
)

func (c Column) valid() bool {
	switch c {
	case ColumnKind, ColumnCaller, ColumnSession, ColumnStatus, ColumnEntity:
		return true
	}
	return false
}

// Equals matches rows whose column equals a literal value.
type Equals struct {
	Column Column
	Value  any // string, int64, ir.Address, ir.EntityID, ir.RequestKind or ir.Status
}

func (Equals) predicateNode() {}

// And matches rows that satisfy every predicate. An empty And matches all
// rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// CompilePredicate converts p into a parameterized WHERE fragment.
// Values are never interpolated. A nil predicate compiles to "1 = 1".
func CompilePredicate(p Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case Equals:
		return compileEquals(pred)
	case *Equals:
		return compileEquals(*pred)
	case And:
		return compileAnd(pred)
	case *And:
		return compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq Equals) (string, []any, error) {
	if !eq.Column.valid() {
		return "", nil, fmt.Errorf("unknown journal column %q", eq.Column)
	}
	param, err := toParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", eq.Column, err)
	}
	return string(eq.Column) + " = ?", []any{param}, nil
}

func compileAnd(and And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, p := range and.Predicates {
		sql, ps, err := CompilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// toParam converts a predicate value into the form it is stored in.
func toParam(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int64:
		return val, nil
	case ir.Address:
		return val.Hex(), nil
	case ir.EntityID:
		return int64(val), nil
	case ir.RequestKind:
		return string(val), nil
	case ir.Status:
		return string(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// QueryJournal returns the entries matching p in seq order.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) QueryJournal(ctx context.Context, p Predicate) ([]Entry, error) {
	where, params, err := CompilePredicate(p)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	return s.queryEntries(ctx, journalSelect+` WHERE `+where+` ORDER BY r.seq ASC`, params...)
}
