package harness

import "github.com/roach88/petadopt/internal/ir"

// Outcomes recorded in the trace.
const (
	OutcomeConfirmed = "confirmed" // applied, receipt succeeded
	OutcomeFailed    = "failed"    // applied, receipt failed
	OutcomeRejected  = "rejected"  // refused before a seq was assigned
)

// TraceEvent is the outcome of one submitted request.
type TraceEvent struct {
	Step     int          `json:"step"` // 1-based flow index
	Account  string       `json:"account"`
	Kind     string       `json:"kind"`
	EntityID *ir.EntityID `json:"entity_id,omitempty"`
	Outcome  string       `json:"outcome"`
	Seq      int64        `json:"seq,omitempty"`
	Version  uint64       `json:"version,omitempty"`
	Code     string       `json:"code,omitempty"`
	Reason   string       `json:"reason,omitempty"`
}

// FinalState is the registry as observed after the flow.
type FinalState struct {
	Owner       ir.Address    `json:"owner"`
	EntityCount uint64        `json:"entity_count"`
	Version     uint64        `json:"version"`
	Adopted     []ir.EntityID `json:"adopted"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per submitted request, in flow order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// State is the registry after the flow.
	State FinalState `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
