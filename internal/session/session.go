package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/petadopt/internal/engine"
	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/registry"
	"github.com/roach88/petadopt/internal/wallet"
)

// Environment is what a session needs from the execution environment.
// Implemented by *engine.Engine.
type Environment interface {
	NewSession() string
	NetworkID() uint64
	Submit(ctx context.Context, session string, caller ir.Address, req ir.Request) (*engine.Handle, error)
	Snapshot(addr ir.Address) registry.Snapshot
}

// ErrNothingPending is returned by AwaitOutcome when no request is in flight.
var ErrNothingPending = errors.New("no request in flight")

// Session is the transaction orchestrator for one client.
//
// Thread-safety: all methods are safe for concurrent use. Wallet
// notifications may arrive on any goroutine.
type Session struct {
	env    Environment
	wallet wallet.Wallet
	token  string

	mu          sync.Mutex
	m           Machine
	connected   bool
	handle      *engine.Handle
	abandon     chan struct{} // closed when pending tracking is discarded
	unsubscribe func()
}

// New creates a disconnected session. Call Connect before submitting.
func New(env Environment, w wallet.Wallet) *Session {
	return &Session{
		env:    env,
		wallet: w,
		token:  env.NewSession(),
	}
}

// Token returns the session token used to derive request ids.
func (s *Session) Token() string {
	return s.token
}

// Connect verifies the wallet network, subscribes to identity changes and
// derives the cache for the current identity.
//
// When the wallet is on a different network than the environment,
// SwitchNetwork is attempted once. If it is refused, or the wallet still
// reports the wrong network afterwards, Connect fails with
// NETWORK_MISMATCH and the session stays disconnected.
func (s *Session) Connect(ctx context.Context) error {
	identity, err := s.wallet.CurrentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if identity.IsZero() {
		return ir.NewError(ir.ErrCodeDisconnected, "wallet has no selected identity", "")
	}

	if err := s.checkNetwork(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subscribed := false
	if s.unsubscribe == nil {
		s.unsubscribe = s.wallet.OnIdentityChanged(s.HandleIdentityChange)
		subscribed = true
	}

	// Read again now that changes are delivered: a switch before this point
	// is seen here, one after it reaches HandleIdentityChange once s.mu is
	// released.
	identity, err = s.wallet.CurrentIdentity(ctx)
	if err == nil && identity.IsZero() {
		err = ir.NewError(ir.ErrCodeDisconnected, "wallet has no selected identity", "")
	}
	if err != nil {
		if subscribed {
			s.unsubscribe()
			s.unsubscribe = nil
		}
		return fmt.Errorf("connect: %w", err)
	}
	s.connected = true
	s.resetLocked(identity)

	slog.Info("session connected",
		"session", s.token,
		"identity", identity.Hex(),
		"network_id", s.env.NetworkID(),
	)
	return nil
}

func (s *Session) checkNetwork(ctx context.Context) error {
	want := s.env.NetworkID()

	got, err := s.wallet.CurrentNetworkID(ctx)
	if err != nil {
		return fmt.Errorf("connect: read network: %w", err)
	}
	if got == want {
		return nil
	}

	slog.Info("network mismatch, switching", "session", s.token, "current", got, "expected", want)
	if err := s.wallet.SwitchNetwork(ctx, want); err != nil {
		return ir.WrapError(ir.ErrCodeNetworkMismatch,
			fmt.Sprintf("wallet on network %d, expected %d", got, want), err)
	}

	got, err = s.wallet.CurrentNetworkID(ctx)
	if err != nil {
		return fmt.Errorf("connect: read network: %w", err)
	}
	if got != want {
		return ir.NewError(ir.ErrCodeNetworkMismatch,
			fmt.Sprintf("wallet still on network %d after switch, expected %d", got, want), "")
	}
	return nil
}

// Disconnect unsubscribes from the wallet and clears all session state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.connected = false
	s.resetLocked(ir.NoAddress)
}

// HandleIdentityChange discards the cache and pending tracking, then
// re-derives the cache for identity from one registry snapshot. An unset
// identity disconnects the session.
//
// It is registered as the wallet callback by Connect and may also be
// called directly.
func (s *Session) HandleIdentityChange(identity ir.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return
	}
	if identity.IsZero() {
		s.connected = false
	}
	s.resetLocked(identity)

	slog.Info("session identity changed", "session", s.token, "identity", identity.Hex())
}

// resetLocked abandons any pending request and rebuilds the machine for
// identity. Caller must hold s.mu.
func (s *Session) resetLocked(identity ir.Address) {
	if s.abandon != nil {
		close(s.abandon)
		s.abandon = nil
	}
	if s.handle != nil {
		slog.Debug("pending request abandoned", "session", s.token, "request_id", s.handle.ID)
		s.handle = nil
	}

	ev := IdentityChanged{Identity: identity}
	if !identity.IsZero() {
		ev.Snapshot = s.env.Snapshot(identity)
	}
	s.m, _ = Transition(s.m, ev)
}

// Refresh re-derives the cache for the current identity.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ir.NewError(ir.ErrCodeDisconnected, "session is not connected", "")
	}
	snap := s.env.Snapshot(s.m.Cache.Identity)
	s.m, _ = Transition(s.m, Refreshed{Snapshot: snap})
	return nil
}

// Submit builds req for the connected identity and hands it to the
// environment. It returns as soon as the environment accepted the request,
// exposing the pending request before its outcome is known.
//
// Errors: DISCONNECTED without a connected identity, BUSY while another
// request is in flight, ENVIRONMENT_REJECTED when the environment declines.
func (s *Session) Submit(ctx context.Context, req ir.Request) (PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return PendingRequest{}, ir.NewError(ir.ErrCodeDisconnected, "session is not connected", "")
	}

	next, err := Transition(s.m, Build{Request: req})
	if err != nil {
		return PendingRequest{}, err
	}
	s.m = next

	caller := s.m.Cache.Identity
	h, err := s.env.Submit(ctx, s.token, caller, req)
	if err != nil {
		if ir.CodeOf(err) == "" {
			err = ir.WrapError(ir.ErrCodeEnvironmentRejected, "submit failed", err)
		}
		s.m, _ = Transition(s.m, Rejected{Err: err})
		slog.Info("request rejected",
			"session", s.token,
			"kind", req.Kind(),
			"code", ir.CodeOf(err),
			"reason", ir.ReasonOf(err),
		)
		return PendingRequest{}, err
	}

	s.m, err = Transition(s.m, Accepted{RequestID: h.ID, Seq: h.Seq})
	if err != nil {
		return PendingRequest{}, err
	}
	s.handle = h
	s.abandon = make(chan struct{})

	slog.Info("request submitted",
		"session", s.token,
		"request_id", h.ID,
		"seq", h.Seq,
		"kind", req.Kind(),
		"caller", caller.Hex(),
	)
	return *s.m.Pending, nil
}

// AwaitOutcome waits for the pending request's terminal result and applies
// it: a successful receipt confirms and reconciles the cache against a fresh
// registry snapshot, any other result fails with ENVIRONMENT_FAILED carrying
// the environment's reason. The pending slot is cleared in both cases.
//
// If the identity changes while waiting, AwaitOutcome returns ABANDONED.
// Cancelling ctx stops a wait that has no outcome yet; the request stays
// pending and AwaitOutcome may be called again.
func (s *Session) AwaitOutcome(ctx context.Context) (ir.Receipt, error) {
	s.mu.Lock()
	if s.m.State != StateSubmitted || s.handle == nil {
		s.mu.Unlock()
		return ir.Receipt{}, ErrNothingPending
	}
	h := s.handle
	abandon := s.abandon
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		// An outcome that is already known is applied even if the wait
		// was cancelled at the same moment.
		if _, ok, _ := h.Result(); !ok {
			return ir.Receipt{}, ctx.Err()
		}
	case <-abandon:
		return ir.Receipt{}, abandoned(h)
	case <-h.Done():
	}

	// h is complete, so the outcome no longer depends on ctx.
	receipt, _, waitErr := h.Result()

	s.mu.Lock()
	defer s.mu.Unlock()

	// The identity may have changed between Done and re-acquiring the lock.
	if s.handle != h {
		return ir.Receipt{}, abandoned(h)
	}

	out := Outcome{RequestID: h.ID, Receipt: receipt, Err: waitErr}
	if waitErr == nil && receipt.Succeeded() {
		snap := s.env.Snapshot(s.m.Cache.Identity)
		out.Snapshot = &snap
	}
	next, err := Transition(s.m, out)
	if err != nil {
		return ir.Receipt{}, err
	}
	s.m = next
	s.handle = nil
	s.abandon = nil

	if s.m.State == StateFailed {
		slog.Info("request failed",
			"session", s.token,
			"request_id", h.ID,
			"code", ir.CodeOf(s.m.LastError),
			"reason", ir.ReasonOf(s.m.LastError),
		)
		return receipt, s.m.LastError
	}

	slog.Info("request confirmed",
		"session", s.token,
		"request_id", h.ID,
		"entity_id", receipt.EntityID,
		"version", receipt.Version,
	)
	return receipt, nil
}

func abandoned(h *engine.Handle) error {
	return ir.NewError(ir.ErrCodeAbandoned,
		fmt.Sprintf("request %s abandoned after identity change", h.ID), "")
}

// Adopt submits an adoption of id and waits for its outcome.
func (s *Session) Adopt(ctx context.Context, id ir.EntityID) (ir.Receipt, error) {
	if _, err := s.Submit(ctx, ir.AdoptEntity{ID: id}); err != nil {
		return ir.Receipt{}, err
	}
	return s.AwaitOutcome(ctx)
}

// Add submits a pet creation and waits for its outcome.
// Only the registry owner can add pets.
func (s *Session) Add(ctx context.Context) (ir.Receipt, error) {
	if _, err := s.Submit(ctx, ir.AddEntity{}); err != nil {
		return ir.Receipt{}, err
	}
	return s.AwaitOutcome(ctx)
}

// Pending returns the in-flight request, if any.
func (s *Session) Pending() (PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m.Pending == nil {
		return PendingRequest{}, false
	}
	return *s.m.Pending, true
}

// LastError returns the most recent request failure, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.LastError
}

// DismissError clears LastError.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m, _ = Transition(s.m, Dismissed{})
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.State
}

// Connected reports whether the session has a connected identity.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Snapshot returns a read-only copy of the session's view.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return viewOf(s.connected, s.m)
}
