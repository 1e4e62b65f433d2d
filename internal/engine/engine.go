package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/registry"
	"github.com/roach88/petadopt/internal/store"
)

// DefaultNetworkID is the network the environment reports when none is
// configured. It matches the local development chain id.
const DefaultNetworkID uint64 = 31337

// Engine is the execution environment: a single-writer apply loop in front
// of the registry, with optional journaling to a store.
//
// Thread-safety model:
//   - Submit(), queries, NewSession(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - The registry is mutated only by apply, which holds applyMu for the
//     whole request and mu only around the registry change
//   - Requests are applied in seq order (submitMu makes seq assignment and
//     enqueue one step)
//   - With a store, a request's journal entry commits before the registry
//     changes; queries never wait on journal I/O
type Engine struct {
	mu      sync.RWMutex // guards reg
	reg     *registry.Registry
	applyMu sync.Mutex // serializes apply; held across the journal write

	store     *store.Store
	clock     *Clock
	queue     *jobQueue
	submitMu  sync.Mutex
	networkID uint64
	sessions  SessionTokenGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore journals every applied request to s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithNetworkID sets the network id the environment reports.
func WithNetworkID(id uint64) Option {
	return func(e *Engine) {
		e.networkID = id
	}
}

// WithSessionGenerator replaces the UUIDv7 session token generator.
// Tests use NewFixedGenerator for reproducible request ids.
func WithSessionGenerator(g SessionTokenGenerator) Option {
	return func(e *Engine) {
		e.sessions = g
	}
}

// WithClock sets the logical clock. Used to resume after a journal's last seq.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine hosting reg.
// The engine takes ownership of reg; callers must not mutate it afterwards.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:       reg,
		clock:     NewClock(),
		queue:     newJobQueue(),
		networkID: DefaultNetworkID,
		sessions:  UUIDv7Generator{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NewSession returns a fresh session token for request id derivation.
func (e *Engine) NewSession() string {
	return e.sessions.Generate()
}

// NetworkID returns the network the environment runs on.
func (e *Engine) NetworkID() uint64 {
	return e.networkID
}

// Submit preflights req for caller and, if it would currently succeed,
// queues it for application.
//
// Rejections happen before a seq is assigned and are never journaled:
//   - the request is nil
//   - the registry would refuse it against the current state
//
// Both fail with ENVIRONMENT_REJECTED carrying the registry's reason.
func (e *Engine) Submit(ctx context.Context, session string, caller ir.Address, req ir.Request) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ir.NewError(ir.ErrCodeEnvironmentRejected, "request is required", "")
	}

	e.mu.RLock()
	err := e.reg.Check(caller, req)
	e.mu.RUnlock()
	if err != nil {
		slog.Debug("request rejected",
			"session", session,
			"caller", caller.Hex(),
			"kind", req.Kind(),
			"code", ir.CodeOf(err),
		)
		return nil, rejected(fmt.Sprintf("%s rejected", req.Kind()), err)
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	seq := e.clock.Next()
	id, err := ir.RequestID(session, caller, req, seq)
	if err != nil {
		return nil, fmt.Errorf("derive request id: %w", err)
	}

	h := newHandle(id, seq)
	if !e.queue.Enqueue(job{session: session, caller: caller, req: req, handle: h}) {
		return nil, ErrStopped
	}

	slog.Debug("request accepted",
		"request_id", id,
		"seq", seq,
		"kind", req.Kind(),
		"caller", caller.Hex(),
	)
	return h, nil
}

// Run starts the single-writer apply loop.
// Blocks until ctx is cancelled or Stop() is called and the queue drains.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: A journal write failure completes the affected handle
// with ENVIRONMENT_FAILED and leaves the registry untouched; the loop
// continues with the next request.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("environment starting", "network_id", e.networkID, "seq", e.clock.Current())

	for {
		if j, ok := e.queue.TryDequeue(); ok {
			if err := e.apply(ctx, j); err != nil {
				slog.Error("request apply failed",
					"error", err,
					"request_id", j.handle.ID,
					"seq", j.handle.Seq,
					"kind", j.req.Kind(),
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("environment stopping: context cancelled")
			e.queue.Close()
			e.abandonQueued()
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				slog.Info("environment stopping: queue closed")
				return nil
			}
		}
	}
}

// ApplyQueued applies every request queued so far on the calling goroutine
// and returns how many were applied. It is the deterministic alternative to
// Run for harnesses and must not be used while Run is active.
func (e *Engine) ApplyQueued(ctx context.Context) (int, error) {
	n := 0
	for {
		j, ok := e.queue.TryDequeue()
		if !ok {
			return n, nil
		}
		if err := e.apply(ctx, j); err != nil {
			return n, fmt.Errorf("apply seq %d: %w", j.handle.Seq, err)
		}
		n++
	}
}

// Stop stops accepting requests. Run applies what is already queued and
// then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// QueueLen returns the number of accepted requests not yet applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// abandonQueued completes every still-queued handle with ErrStopped.
func (e *Engine) abandonQueued() {
	for _, j := range e.queue.Drain() {
		j.handle.complete(ir.Receipt{}, ir.WrapError(ir.ErrCodeEnvironmentFailed, "request not applied", ErrStopped))
	}
}

// apply re-checks, journals and applies one request.
// CRITICAL: Called only from Run() or ApplyQueued() - single-writer guarantee.
func (e *Engine) apply(ctx context.Context, j job) error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	// Only apply mutates reg, so the outcome read here stays valid until
	// the write lock below.
	e.mu.RLock()
	r := outcome(e.reg, j.caller, j.req)
	e.mu.RUnlock()
	r.RequestID = j.handle.ID
	r.Seq = j.handle.Seq

	if e.store != nil {
		entry := store.Entry{Session: j.session, Request: j.req, Receipt: r}
		if err := e.store.WriteEntry(ctx, entry); err != nil {
			j.handle.complete(ir.Receipt{}, ir.WrapError(ir.ErrCodeEnvironmentFailed, "journal write failed", err))
			return err
		}
	}

	if r.Succeeded() {
		e.mu.Lock()
		eff, err := e.reg.Apply(j.caller, j.req)
		e.mu.Unlock()
		if err != nil {
			// Unreachable while outcome and Apply agree; the entry is
			// already journaled so replay will report the divergence.
			j.handle.complete(ir.Receipt{}, ir.WrapError(ir.ErrCodeEnvironmentFailed, "apply after journal", err))
			return err
		}
		if eff.EntityID != r.EntityID || eff.Version != r.Version {
			err := fmt.Errorf("effect %d@v%d does not match receipt %d@v%d",
				eff.EntityID, eff.Version, r.EntityID, r.Version)
			j.handle.complete(ir.Receipt{}, ir.WrapError(ir.ErrCodeEnvironmentFailed, "apply after journal", err))
			return err
		}
	}

	slog.Info("request applied",
		"request_id", r.RequestID,
		"seq", r.Seq,
		"kind", r.Kind,
		"entity_id", r.EntityID,
		"status", r.Status,
		"code", r.Code,
		"version", r.Version,
	)

	j.handle.complete(r, nil)
	return nil
}

// outcome predicts the receipt Apply would produce without mutating reg.
// RequestID and Seq are left for the caller.
func outcome(reg *registry.Registry, caller ir.Address, req ir.Request) ir.Receipt {
	r := ir.Receipt{
		Caller:  caller,
		Kind:    req.Kind(),
		Version: reg.Version(),
	}
	if target, ok := ir.TargetOf(req); ok {
		r.EntityID = target
	}

	if err := reg.Check(caller, req); err != nil {
		r.Status = ir.StatusFailure
		r.Code = ir.CodeOf(err)
		r.Reason = ir.ReasonOf(err)
		return r
	}

	r.Status = ir.StatusSuccess
	r.Version++
	if req.Kind() == ir.KindAddEntity {
		r.EntityID = ir.EntityID(reg.EntityCount())
	}
	return r
}

// GetOwner returns the registry owner.
func (e *Engine) GetOwner() ir.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.GetOwner()
}

// EntityCount returns the number of pets created so far.
func (e *Engine) EntityCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.EntityCount()
}

// Version returns the registry version.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.Version()
}

// GetAllAdoptedIds returns every adopted id in ascending order.
func (e *Engine) GetAllAdoptedIds() []ir.EntityID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.GetAllAdoptedIds()
}

// GetAdoptedIdsByOwner returns addr's adoptions in adoption order.
func (e *Engine) GetAdoptedIdsByOwner(addr ir.Address) []ir.EntityID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.GetAdoptedIdsByOwner(addr)
}

// GetOwnerOfEntity returns the adopter of id, or ir.NoAddress.
func (e *Engine) GetOwnerOfEntity(id ir.EntityID) ir.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.GetOwnerOfEntity(id)
}

// Snapshot reads the adopted set and addr's adoptions at one version.
func (e *Engine) Snapshot(addr ir.Address) registry.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.SnapshotFor(addr)
}
