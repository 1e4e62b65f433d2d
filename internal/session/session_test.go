package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/petadopt/internal/catalog"
	"github.com/roach88/petadopt/internal/engine"
	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/registry"
	"github.com/roach88/petadopt/internal/wallet"
)

const testNetwork = 31337

type fixture struct {
	env    *engine.Engine
	wallet *wallet.Memory
	s      *Session
}

// newFixture builds a 5-pet registry with pet 0 already adopted by bob.
// The apply loop is not started; call run.
func newFixture(t *testing.T, walletOpts ...wallet.MemoryOption) *fixture {
	t.Helper()

	reg, err := registry.New(owner, 5)
	require.NoError(t, err)
	require.NoError(t, reg.AdoptEntity(bob, 0))

	env := engine.New(reg,
		engine.WithNetworkID(testNetwork),
		engine.WithSessionGenerator(engine.NewFixedGenerator("session-1", "session-2", "session-3")),
	)

	opts := append([]wallet.MemoryOption{
		wallet.WithAccounts(alice, bob, owner),
		wallet.WithNetwork(testNetwork),
	}, walletOpts...)
	w := wallet.NewMemory(opts...)

	return &fixture{env: env, wallet: w, s: New(env, w)}
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.env.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		f.env.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
		cancel()
	})
}

func (f *fixture) connectAs(t *testing.T, addr ir.Address) {
	t.Helper()
	require.NoError(t, f.wallet.Select(addr))
	require.NoError(t, f.s.Connect(context.Background()))
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnect_RequiresIdentity(t *testing.T) {
	f := newFixture(t)

	err := f.s.Connect(testCtx(t))
	assert.True(t, ir.IsCode(err, ir.ErrCodeDisconnected))
	assert.False(t, f.s.Connected())

	_, err = f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 1})
	assert.True(t, ir.IsCode(err, ir.ErrCodeDisconnected))
}

func TestConnect_DerivesCache(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, bob)

	v := f.s.Snapshot()
	assert.True(t, v.Connected)
	assert.Equal(t, bob, v.Identity)
	assert.Equal(t, "idle", v.State)
	assert.Equal(t, []ir.EntityID{0}, v.Adopted)
	assert.Equal(t, []ir.EntityID{0}, v.Owned)
	assert.Equal(t, "session-1", f.s.Token())
}

func TestConnect_SwitchesNetwork(t *testing.T) {
	f := newFixture(t, wallet.WithNetwork(1))
	f.connectAs(t, alice)

	net, err := f.wallet.CurrentNetworkID(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(testNetwork), net)
	assert.True(t, f.s.Connected())
}

func TestConnect_NetworkMismatchWhenSwitchRejected(t *testing.T) {
	f := newFixture(t, wallet.WithNetwork(1), wallet.WithSwitchRejected())
	require.NoError(t, f.wallet.Select(alice))

	err := f.s.Connect(testCtx(t))
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeNetworkMismatch))
	assert.ErrorIs(t, err, wallet.ErrSwitchRejected)
	assert.False(t, f.s.Connected(), "session stays disconnected")
}

func TestAdopt_Confirmed(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	f.connectAs(t, alice)

	r, err := f.s.Adopt(testCtx(t), 1)
	require.NoError(t, err)
	assert.True(t, r.Succeeded())

	_, err = f.s.Adopt(testCtx(t), 2)
	require.NoError(t, err)

	v := f.s.Snapshot()
	assert.Equal(t, "confirmed", v.State)
	assert.Nil(t, v.Pending)
	assert.Equal(t, []ir.EntityID{0, 1, 2}, v.Adopted)
	assert.Equal(t, []ir.EntityID{1, 2}, v.Owned)

	// The cache agrees with authoritative state.
	assert.Equal(t, alice, f.env.GetOwnerOfEntity(1))
	assert.Equal(t, []ir.EntityID{1, 2}, f.env.GetAdoptedIdsByOwner(alice))
}

func TestSubmit_ExposesPendingBeforeOutcome(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)

	p, err := f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 3})
	require.NoError(t, err)
	assert.Len(t, p.RequestID, 66)
	assert.Equal(t, ir.KindAdoptEntity, p.Kind)
	assert.Equal(t, ir.EntityID(3), p.EntityID)

	got, ok := f.s.Pending()
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.Equal(t, StateSubmitted, f.s.State())
	assert.NotContains(t, f.s.Snapshot().Adopted, ir.EntityID(3), "cache waits for confirmation")

	f.run(t)
	_, err = f.s.AwaitOutcome(testCtx(t))
	require.NoError(t, err)
	assert.Contains(t, f.s.Snapshot().Adopted, ir.EntityID(3))

	_, ok = f.s.Pending()
	assert.False(t, ok)
}

func TestSubmit_BusyWhileInFlight(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)

	_, err := f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 1})
	require.NoError(t, err)

	_, err = f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 2})
	assert.True(t, ir.IsCode(err, ir.ErrCodeBusy))
	assert.Equal(t, 1, f.env.QueueLen(), "busy request never reaches the environment")

	f.run(t)
	_, err = f.s.AwaitOutcome(testCtx(t))
	require.NoError(t, err)

	_, err = f.s.Adopt(testCtx(t), 2)
	assert.NoError(t, err, "session accepts a new request once settled")
}

func TestSubmit_RejectedByEnvironment(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	f.connectAs(t, alice)

	_, err := f.s.Adopt(testCtx(t), 0)
	require.Error(t, err)
	assert.True(t, ir.IsCode(err, ir.ErrCodeEnvironmentRejected))
	assert.Equal(t, ir.ReasonAlreadyAdopted, ir.ReasonOf(err))

	_, err = f.s.Adopt(testCtx(t), 5)
	assert.Equal(t, ir.ReasonDoesNotExist, ir.ReasonOf(err))

	_, err = f.s.Add(testCtx(t))
	assert.Equal(t, ir.ReasonOnlyOwner, ir.ReasonOf(err))

	v := f.s.Snapshot()
	assert.Equal(t, "failed", v.State)
	assert.Equal(t, ir.ReasonOnlyOwner, v.LastError)
	assert.Nil(t, v.Pending)
	assert.Equal(t, []ir.EntityID{}, v.Owned)

	f.s.DismissError()
	assert.Nil(t, f.s.LastError())
	assert.Empty(t, f.s.Snapshot().LastError)
}

func TestAwaitOutcome_AcceptedButFailed(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)

	rivalWallet := wallet.NewMemory(wallet.WithAccounts(bob), wallet.WithNetwork(testNetwork))
	require.NoError(t, rivalWallet.Select(bob))
	rival := New(f.env, rivalWallet)
	require.NoError(t, rival.Connect(testCtx(t)))

	// Both pass preflight; the rival is queued first.
	_, err := rival.Submit(testCtx(t), ir.AdoptEntity{ID: 4})
	require.NoError(t, err)
	_, err = f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 4})
	require.NoError(t, err)

	f.run(t)

	_, err = rival.AwaitOutcome(testCtx(t))
	require.NoError(t, err)

	r, err := f.s.AwaitOutcome(testCtx(t))
	require.Error(t, err)
	assert.False(t, r.Succeeded())
	assert.True(t, ir.IsCode(err, ir.ErrCodeEnvironmentFailed))
	assert.Equal(t, ir.ReasonAlreadyAdopted, ir.ReasonOf(err))

	v := f.s.Snapshot()
	assert.Equal(t, "failed", v.State)
	assert.Nil(t, v.Pending, "pending cleared on failure")
	assert.NotContains(t, v.Adopted, ir.EntityID(4), "cache unchanged on failure")
	assert.Empty(t, v.Owned)
	assert.Equal(t, bob, f.env.GetOwnerOfEntity(4))
}

func TestAwaitOutcome_NothingPending(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)

	_, err := f.s.AwaitOutcome(testCtx(t))
	assert.ErrorIs(t, err, ErrNothingPending)
}

func TestAwaitOutcome_ContextCancelKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)

	_, err := f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.s.AwaitOutcome(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateSubmitted, f.s.State())

	f.run(t)
	_, err = f.s.AwaitOutcome(testCtx(t))
	assert.NoError(t, err)
}

func TestIdentityChange_AbandonsPending(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)

	_, err := f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 2})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = f.wallet.Select(bob)
	}()

	_, err = f.s.AwaitOutcome(testCtx(t))
	assert.True(t, ir.IsCode(err, ir.ErrCodeAbandoned), "got %v", err)

	v := f.s.Snapshot()
	assert.Equal(t, bob, v.Identity)
	assert.Equal(t, "idle", v.State)
	assert.Nil(t, v.Pending)
	assert.Equal(t, []ir.EntityID{0}, v.Adopted, "re-derived from authoritative state only")
	assert.Equal(t, []ir.EntityID{0}, v.Owned)

	// The abandoned request is still applied by the environment.
	f.run(t)
	require.Eventually(t, func() bool {
		return f.env.GetOwnerOfEntity(2) == alice
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.s.Refresh())
	assert.Equal(t, []ir.EntityID{0, 2}, f.s.Snapshot().Adopted)
}

func TestIdentityChange_Disconnect(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	f.connectAs(t, bob)
	_, err := f.s.Adopt(testCtx(t), 0)
	require.Error(t, err)

	f.wallet.Disconnect()

	v := f.s.Snapshot()
	assert.False(t, v.Connected)
	assert.True(t, v.Identity.IsZero())
	assert.Empty(t, v.Adopted)
	assert.Empty(t, v.Owned)
	assert.Empty(t, v.LastError, "disconnect clears the last error")

	assert.True(t, ir.IsCode(f.s.Refresh(), ir.ErrCodeDisconnected))
}

func TestDisconnect_Unsubscribes(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)
	f.s.Disconnect()

	require.NoError(t, f.wallet.Select(bob))
	assert.False(t, f.s.Connected(), "wallet changes no longer reach the session")
}

func TestAdd_ByOwner(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	f.connectAs(t, owner)

	r, err := f.s.Add(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, ir.EntityID(5), r.EntityID)
	assert.Equal(t, uint64(6), f.env.EntityCount())
}

func TestItems(t *testing.T) {
	cat, err := catalog.Load(filepath.Join("..", "catalog", "testdata", "pets.json"))
	require.NoError(t, err)

	f := newFixture(t)
	f.run(t)

	assert.Len(t, f.s.Items(cat, FilterHome), 5)
	for _, item := range f.s.Items(cat, FilterHome) {
		assert.False(t, item.Actionable, "nothing is actionable while disconnected")
	}

	f.connectAs(t, alice)
	_, err = f.s.Adopt(testCtx(t), 3)
	require.NoError(t, err)

	home := f.s.Items(cat, FilterHome)
	require.Len(t, home, 5)
	assert.True(t, home[0].Adopted)
	assert.False(t, home[0].Owned)
	assert.False(t, home[0].Actionable)
	assert.True(t, home[1].Actionable)
	assert.True(t, home[3].Owned)
	assert.False(t, home[3].Actionable)

	owned := f.s.Items(cat, FilterOwned)
	require.Len(t, owned, 1)
	assert.Equal(t, "Melissa", owned[0].Pet.Name)
	assert.False(t, owned[0].Actionable)
}

func TestItems_NotActionableWhileInFlight(t *testing.T) {
	cat, err := catalog.Parse([]byte(`[{id: 1, name: A, age: 1, breed: b, location: l, picture: p}]`))
	require.NoError(t, err)

	f := newFixture(t)
	f.connectAs(t, alice)
	_, err = f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 2})
	require.NoError(t, err)

	items := f.s.Items(cat, FilterHome)
	require.Len(t, items, 1)
	assert.False(t, items[0].Actionable)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("owned")
	require.NoError(t, err)
	assert.Equal(t, FilterOwned, f)

	_, err = ParseFilter("adopted")
	assert.Error(t, err)
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "", ErrorText(nil))
	assert.Equal(t, ir.ReasonAlreadyAdopted,
		ErrorText(ir.NewError(ir.ErrCodeEnvironmentFailed, "x", ir.ReasonAlreadyAdopted)))
	assert.Equal(t, "BUSY: a request is already in flight",
		ErrorText(ir.NewError(ir.ErrCodeBusy, "a request is already in flight", "")))
}

func TestAwaitOutcome_AppliedBeforeCancelledWait(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		f.connectAs(t, alice)

		_, err := f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 1})
		require.NoError(t, err)
		_, err = f.env.ApplyQueued(testCtx(t))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r, err := f.s.AwaitOutcome(ctx)
		require.NoError(t, err, "run %d: a known outcome is applied despite the cancelled wait", i)
		assert.True(t, r.Succeeded())

		v := f.s.Snapshot()
		assert.Equal(t, "confirmed", v.State)
		assert.Empty(t, v.LastError)
		assert.Equal(t, []ir.EntityID{1}, v.Owned)
		assert.Equal(t, alice, f.env.GetOwnerOfEntity(1))
	}
}

func TestAwaitOutcome_ConfirmReconcilesCache(t *testing.T) {
	f := newFixture(t)
	f.connectAs(t, alice)

	rivalWallet := wallet.NewMemory(wallet.WithAccounts(bob), wallet.WithNetwork(testNetwork))
	require.NoError(t, rivalWallet.Select(bob))
	rival := New(f.env, rivalWallet)
	require.NoError(t, rival.Connect(testCtx(t)))

	// Bob's adoption lands after alice's cache was derived.
	_, err := rival.Submit(testCtx(t), ir.AdoptEntity{ID: 3})
	require.NoError(t, err)
	_, err = f.env.ApplyQueued(testCtx(t))
	require.NoError(t, err)
	_, err = rival.AwaitOutcome(testCtx(t))
	require.NoError(t, err)
	assert.NotContains(t, f.s.Snapshot().Adopted, ir.EntityID(3))

	_, err = f.s.Submit(testCtx(t), ir.AdoptEntity{ID: 1})
	require.NoError(t, err)
	_, err = f.env.ApplyQueued(testCtx(t))
	require.NoError(t, err)
	_, err = f.s.AwaitOutcome(testCtx(t))
	require.NoError(t, err)

	v := f.s.Snapshot()
	assert.Equal(t, f.env.GetAllAdoptedIds(), v.Adopted)
	assert.Equal(t, []ir.EntityID{0, 1, 3}, v.Adopted)
	assert.Equal(t, []ir.EntityID{1}, v.Owned)
	assert.Equal(t, f.env.Version(), v.Version)
}

// switchingWallet selects another account while a network switch is in
// progress.
type switchingWallet struct {
	*wallet.Memory
	to ir.Address
}

func (w *switchingWallet) SwitchNetwork(ctx context.Context, id uint64) error {
	if err := w.Memory.Select(w.to); err != nil {
		return err
	}
	return w.Memory.SwitchNetwork(ctx, id)
}

func TestConnect_AccountSwitchDuringConnect(t *testing.T) {
	f := newFixture(t, wallet.WithNetwork(1))
	w := &switchingWallet{Memory: f.wallet, to: bob}
	s := New(f.env, w)

	require.NoError(t, f.wallet.Select(alice))
	require.NoError(t, s.Connect(testCtx(t)))

	v := s.Snapshot()
	assert.Equal(t, bob, v.Identity, "cache is derived for the account selected during connect")
	assert.Equal(t, []ir.EntityID{0}, v.Owned)

	// Later switches are delivered.
	require.NoError(t, f.wallet.Select(alice))
	assert.Equal(t, alice, s.Snapshot().Identity)
}
