// Package wallet provides the identity and network collaborator the
// session depends on.
//
// A Wallet reports the currently selected identity and network, notifies
// subscribers when the identity changes, and can be asked to switch
// networks. Memory is an in-process implementation used by the CLI and by
// tests; it behaves like a browser wallet with a fixed set of accounts.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/petadopt/internal/ir"
)

// Wallet is the identity/network collaborator contract.
type Wallet interface {
	// CurrentIdentity returns the selected identity, or ir.NoAddress when
	// nothing is selected.
	CurrentIdentity(ctx context.Context) (ir.Address, error)

	// OnIdentityChanged registers fn to be called with the new identity
	// (ir.NoAddress on disconnect). The returned func unsubscribes.
	OnIdentityChanged(fn func(ir.Address)) (unsubscribe func())

	// CurrentNetworkID returns the network the wallet is connected to.
	CurrentNetworkID(ctx context.Context) (uint64, error)

	// SwitchNetwork asks the wallet to move to network id.
	SwitchNetwork(ctx context.Context, id uint64) error
}

// ErrSwitchRejected is returned when the user declines a network switch.
var ErrSwitchRejected = errors.New("network switch rejected")

// ErrUnknownAccount is returned when selecting an account the wallet does
// not hold.
var ErrUnknownAccount = errors.New("unknown account")

// Memory is an in-process Wallet.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run on
// the goroutine that caused the change, after the wallet lock is released,
// in registration order.
type Memory struct {
	mu          sync.Mutex
	accounts    []ir.Address
	selected    ir.Address
	networkID   uint64
	allowSwitch bool
	subs        map[int]func(ir.Address)
	nextSub     int
}

// MemoryOption configures a Memory wallet.
type MemoryOption func(*Memory)

// WithAccounts sets the accounts the wallet holds.
func WithAccounts(accounts ...ir.Address) MemoryOption {
	return func(m *Memory) {
		m.accounts = append(m.accounts, accounts...)
	}
}

// WithNetwork sets the network the wallet starts on.
func WithNetwork(id uint64) MemoryOption {
	return func(m *Memory) {
		m.networkID = id
	}
}

// WithSwitchRejected makes every SwitchNetwork call fail, as if the user
// declined the prompt.
func WithSwitchRejected() MemoryOption {
	return func(m *Memory) {
		m.allowSwitch = false
	}
}

// NewMemory creates a wallet with no identity selected.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		allowSwitch: true,
		subs:        make(map[int]func(ir.Address)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CurrentIdentity implements Wallet.
func (m *Memory) CurrentIdentity(ctx context.Context) (ir.Address, error) {
	if err := ctx.Err(); err != nil {
		return ir.NoAddress, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected, nil
}

// CurrentNetworkID implements Wallet.
func (m *Memory) CurrentNetworkID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.networkID, nil
}

// SwitchNetwork implements Wallet.
func (m *Memory) SwitchNetwork(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.allowSwitch {
		slog.Debug("network switch rejected", "from", m.networkID, "to", id)
		return fmt.Errorf("switch to network %d: %w", id, ErrSwitchRejected)
	}
	slog.Debug("network switched", "from", m.networkID, "to", id)
	m.networkID = id
	return nil
}

// OnIdentityChanged implements Wallet.
func (m *Memory) OnIdentityChanged(fn func(ir.Address)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Accounts returns the accounts the wallet holds.
func (m *Memory) Accounts() []ir.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.accounts)
}

// Select makes addr the current identity and notifies subscribers.
// Selecting the already-selected account is a no-op.
func (m *Memory) Select(addr ir.Address) error {
	if addr.IsZero() {
		return fmt.Errorf("select: %w: empty address", ErrUnknownAccount)
	}

	m.mu.Lock()
	if !slices.Contains(m.accounts, addr) {
		m.mu.Unlock()
		return fmt.Errorf("select %s: %w", addr.Hex(), ErrUnknownAccount)
	}
	if m.selected == addr {
		m.mu.Unlock()
		return nil
	}
	m.selected = addr
	subs := m.subscribersLocked()
	m.mu.Unlock()

	slog.Debug("identity selected", "address", addr.Hex())
	notify(subs, addr)
	return nil
}

// Disconnect clears the current identity and notifies subscribers with
// ir.NoAddress.
func (m *Memory) Disconnect() {
	m.mu.Lock()
	if m.selected.IsZero() {
		m.mu.Unlock()
		return
	}
	m.selected = ir.NoAddress
	subs := m.subscribersLocked()
	m.mu.Unlock()

	slog.Debug("identity disconnected")
	notify(subs, ir.NoAddress)
}

// subscribersLocked returns subscribers in registration order.
// Caller must hold m.mu.
func (m *Memory) subscribersLocked() []func(ir.Address) {
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]func(ir.Address), 0, len(ids))
	for _, id := range ids {
		out = append(out, m.subs[id])
	}
	return out
}

func notify(subs []func(ir.Address), addr ir.Address) {
	for _, fn := range subs {
		fn(addr)
	}
}
