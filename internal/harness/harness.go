package harness

import (
	"context"
	"fmt"

	"github.com/roach88/petadopt/internal/engine"
	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/registry"
	"github.com/roach88/petadopt/internal/session"
	"github.com/roach88/petadopt/internal/store"
	"github.com/roach88/petadopt/internal/testutil"
	"github.com/roach88/petadopt/internal/wallet"
)

// Harness is the test execution engine for one scenario run.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	engine   *engine.Engine
	accounts map[string]ir.Address
	sessions map[string]*session.Session
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create the journal and record the registry meta
//  2. Create the environment with deterministic session tokens
//  3. Execute flow steps, recording one trace event per request
//  4. Evaluate assertions and capture the final registry state
//
// The returned error reports a broken run (store failure, invalid account);
// expectation and assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(ctx, scenario, st)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{
		Ctx:      ctx,
		Engine:   h.engine,
		Store:    st,
		Accounts: h.accounts,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	result.State = FinalState{
		Owner:       h.engine.GetOwner(),
		EntityCount: h.engine.EntityCount(),
		Version:     h.engine.Version(),
		Adopted:     h.engine.GetAllAdoptedIds(),
	}
	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario, st *store.Store) (*Harness, error) {
	accounts := make(map[string]ir.Address, len(scenario.Accounts))
	for _, name := range scenario.AccountNames() {
		addr, err := ir.ParseAddress(scenario.Accounts[name])
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		accounts[name] = addr
	}

	networkID := scenario.NetworkID
	if networkID == 0 {
		networkID = engine.DefaultNetworkID
	}
	owner := accounts[scenario.Registry.Owner]

	meta := store.Meta{
		Owner:        owner,
		InitialCount: scenario.Registry.InitialPets,
		NetworkID:    networkID,
	}
	if err := st.InitMeta(ctx, meta); err != nil {
		return nil, fmt.Errorf("failed to record registry meta: %w", err)
	}

	reg, err := registry.New(owner, scenario.Registry.InitialPets)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	eng := engine.New(reg,
		engine.WithStore(st),
		engine.WithNetworkID(networkID),
		engine.WithSessionGenerator(testutil.NewSequentialTokens(scenario.Name)),
	)

	return &Harness{
		scenario: scenario,
		store:    st,
		engine:   eng,
		accounts: accounts,
		sessions: make(map[string]*session.Session),
	}, nil
}

// sessionFor returns the connected session for account, creating it on
// first use. Sessions are created in first-use order, which fixes their
// tokens.
func (h *Harness) sessionFor(ctx context.Context, account string) (*session.Session, error) {
	if s, ok := h.sessions[account]; ok {
		return s, nil
	}

	addr := h.accounts[account]
	w := wallet.NewMemory(
		wallet.WithAccounts(addr),
		wallet.WithNetwork(h.engine.NetworkID()),
	)
	if err := w.Select(addr); err != nil {
		return nil, fmt.Errorf("account %s: %w", account, err)
	}

	s := session.New(h.engine, w)
	if err := s.Connect(ctx); err != nil {
		return nil, fmt.Errorf("account %s: %w", account, err)
	}
	h.sessions[account] = s
	return s, nil
}

// submitted tracks one request between Submit and its outcome.
type submitted struct {
	step    FlowStep
	sess    *session.Session
	event   TraceEvent
	pending bool
}

// executeStep runs one flow step. A concurrent group submits every member,
// applies the queue once, then collects outcomes in member order.
func (h *Harness) executeStep(ctx context.Context, index int, step FlowStep, result *Result) error {
	members := step.Concurrent
	if len(members) == 0 {
		members = []FlowStep{step}
	}

	subs := make([]*submitted, 0, len(members))
	for _, member := range members {
		sub, err := h.submit(ctx, index, member)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	if _, err := h.engine.ApplyQueued(ctx); err != nil {
		return fmt.Errorf("failed to apply requests: %w", err)
	}

	for _, sub := range subs {
		if sub.pending {
			if err := h.collect(ctx, sub); err != nil {
				return err
			}
		}
		result.AddTrace(sub.event)
		if msg := checkExpect(index, sub.step, sub.event); msg != "" {
			result.AddError(msg)
		}
	}
	return nil
}

func (h *Harness) submit(ctx context.Context, index int, step FlowStep) (*submitted, error) {
	sess, err := h.sessionFor(ctx, step.As)
	if err != nil {
		return nil, err
	}

	sub := &submitted{
		step: step,
		sess: sess,
		event: TraceEvent{
			Step:    index,
			Account: step.As,
		},
	}

	var req ir.Request
	if step.Add {
		req = ir.AddEntity{}
	} else {
		id, err := ir.EntityIDFromInt(*step.Adopt)
		if err != nil {
			// Refused at the input boundary; nothing reaches the session.
			sub.event.Kind = string(ir.KindAdoptEntity)
			sub.event.Outcome = OutcomeRejected
			sub.event.Code = string(ir.CodeOf(err))
			sub.event.Reason = ir.ReasonOf(err)
			return sub, nil
		}
		req = ir.AdoptEntity{ID: id}
		sub.event.EntityID = &id
	}
	sub.event.Kind = string(req.Kind())

	pending, err := sess.Submit(ctx, req)
	if err != nil {
		sub.event.Outcome = OutcomeRejected
		sub.event.Code = string(ir.CodeOf(err))
		sub.event.Reason = ir.ReasonOf(err)
		return sub, nil
	}

	sub.event.Seq = pending.Seq
	sub.pending = true
	return sub, nil
}

func (h *Harness) collect(ctx context.Context, sub *submitted) error {
	receipt, err := sub.sess.AwaitOutcome(ctx)
	if err != nil && receipt.RequestID == "" {
		return fmt.Errorf("request seq %d has no receipt: %w", sub.event.Seq, err)
	}

	id := receipt.EntityID
	sub.event.EntityID = &id
	sub.event.Version = receipt.Version
	if receipt.Succeeded() {
		sub.event.Outcome = OutcomeConfirmed
		return nil
	}

	sub.event.Outcome = OutcomeFailed
	sub.event.Code = string(receipt.Code)
	sub.event.Reason = receipt.Reason
	return nil
}

// checkExpect compares a step's event with its expect clause and returns a
// failure message, or "" when it matches.
func checkExpect(index int, step FlowStep, ev TraceEvent) string {
	exp := step.Expect
	if exp == nil {
		return ""
	}

	if ev.Outcome != exp.Outcome {
		return fmt.Sprintf("flow step %d (%s %s): expected outcome %s, got %s (%s)",
			index, ev.Account, ev.Kind, exp.Outcome, ev.Outcome, ev.Reason)
	}
	if exp.Reason != "" && ev.Reason != exp.Reason {
		return fmt.Sprintf("flow step %d (%s %s): expected reason %q, got %q",
			index, ev.Account, ev.Kind, exp.Reason, ev.Reason)
	}
	if exp.EntityID != nil {
		if ev.EntityID == nil || int64(*ev.EntityID) != *exp.EntityID {
			return fmt.Sprintf("flow step %d (%s %s): expected entity %d, got %s",
				index, ev.Account, ev.Kind, *exp.EntityID, formatEntity(ev.EntityID))
		}
	}
	return ""
}

func formatEntity(id *ir.EntityID) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *id)
}
