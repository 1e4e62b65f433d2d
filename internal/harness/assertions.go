package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/petadopt/internal/engine"
	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s entity=%s -> %s", ev.Step, ev.Account, ev.Kind, formatEntity(ev.EntityID), ev.Outcome)
			if ev.Reason != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Reason)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// AssertionContext provides what state assertions read from.
type AssertionContext struct {
	Ctx      context.Context
	Engine   *engine.Engine
	Store    *store.Store
	Accounts map[string]ir.Address
}

// matches reports whether ev satisfies every filter set on a.
func matches(ev TraceEvent, a Assertion) bool {
	if a.Kind != "" && ev.Kind != a.Kind {
		return false
	}
	if a.Account != "" && ev.Account != a.Account {
		return false
	}
	if a.Outcome != "" && ev.Outcome != a.Outcome {
		return false
	}
	if a.Entity != nil && (ev.EntityID == nil || int64(*ev.EntityID) != *a.Entity) {
		return false
	}
	return true
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Kind != "" {
		parts = append(parts, "kind="+a.Kind)
	}
	if a.Account != "" {
		parts = append(parts, "account="+a.Account)
	}
	if a.Outcome != "" {
		parts = append(parts, "outcome="+a.Outcome)
	}
	if a.Entity != nil {
		parts = append(parts, fmt.Sprintf("entity=%d", *a.Entity))
	}
	if len(parts) == 0 {
		return "any event"
	}
	return strings.Join(parts, " ")
}

// assertTraceContains checks that at least one event matches the filters.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describeFilter(a),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count events match the filters.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events matching %s", *a.Count, describeFilter(a)),
			Actual:   fmt.Sprintf("%d events", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertOwnerOf checks the adopter recorded for one pet.
func assertOwnerOf(actx *AssertionContext, a Assertion) error {
	id, err := ir.EntityIDFromInt(*a.Entity)
	if err != nil {
		return err
	}

	want := ir.NoAddress
	if a.Account != NoAccount {
		want = actx.Accounts[a.Account]
	}
	got := actx.Engine.GetOwnerOfEntity(id)
	if got != want {
		return &AssertionError{
			Type:     AssertOwnerOf,
			Expected: fmt.Sprintf("pet %d owned by %s (%s)", id, a.Account, want.Hex()),
			Actual:   fmt.Sprintf("owned by %s (%s)", accountName(actx.Accounts, got), got.Hex()),
		}
	}
	return nil
}

// assertIDs compares an id list, order included.
func assertIDs(typ string, want []int64, got []ir.EntityID) error {
	equal := len(want) == len(got)
	for i := 0; equal && i < len(want); i++ {
		equal = want[i] >= 0 && ir.EntityID(want[i]) == got[i]
	}
	if !equal {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertJournalCount checks the number of journaled requests.
func assertJournalCount(actx *AssertionContext, a Assertion) error {
	entries, err := actx.Store.ReadJournal(actx.Ctx)
	if err != nil {
		return fmt.Errorf("journal_count: %w", err)
	}
	if len(entries) != *a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journaled requests", *a.Count),
			Actual:   fmt.Sprintf("%d journaled requests", len(entries)),
		}
	}
	return nil
}

func accountName(accounts map[string]ir.Address, addr ir.Address) string {
	if addr.IsZero() {
		return NoAccount
	}
	for name, a := range accounts {
		if a == addr {
			return name
		}
	}
	return "unknown"
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertOwnerOf, AssertAdoptedIDs, AssertAdoptedBy, AssertJournalCount:
			if actx == nil || actx.Engine == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an environment", i, a.Type)
				break
			}
			switch a.Type {
			case AssertOwnerOf:
				err = assertOwnerOf(actx, a)
			case AssertAdoptedIDs:
				err = assertIDs(a.Type, a.IDs, actx.Engine.GetAllAdoptedIds())
			case AssertAdoptedBy:
				err = assertIDs(a.Type, a.IDs, actx.Engine.GetAdoptedIdsByOwner(actx.Accounts[a.Account]))
			case AssertJournalCount:
				err = assertJournalCount(actx, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
