package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/petadopt/internal/config"
	"github.com/roach88/petadopt/internal/engine"
	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/session"
	"github.com/roach88/petadopt/internal/store"
	"github.com/roach88/petadopt/internal/wallet"
)

// environment is an engine rebuilt from the journal with its apply loop
// running.
type environment struct {
	store  *store.Store
	engine *engine.Engine
	cancel context.CancelFunc
	done   chan error
}

// openEnvironment replays the journal at cfg.Database.Path and starts the
// apply loop. The database must already exist; `petadopt init` creates it.
func openEnvironment(ctx context.Context, cfg *config.Config) (*environment, error) {
	if err := requireDatabase(cfg.Database.Path); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng, err := engine.Open(ctx, st)
	if err != nil {
		st.Close()
		if engine.IsDivergence(err) {
			return nil, WrapExitError(ExitFailure, "journal does not replay", err)
		}
		return nil, WrapExitError(ExitCommandError, "failed to open registry", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	env := &environment{
		store:  st,
		engine: eng,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { env.done <- eng.Run(runCtx) }()
	return env, nil
}

// requireDatabase fails unless path exists. Opening a missing path would
// silently create an empty, uninitialised database.
func requireDatabase(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("database not found: %s (run `petadopt init` first)", path))
	}
	return nil
}

// Close stops the apply loop after it drains and closes the store.
func (e *environment) Close() error {
	e.engine.Stop()
	runErr := <-e.done
	e.cancel()
	if err := e.store.Close(); err != nil {
		return err
	}
	return runErr
}

// connect opens a session for identity using an in-process wallet that
// starts on the configured wallet network.
func (e *environment) connect(ctx context.Context, cfg *config.Config, identity ir.Address) (*session.Session, error) {
	walletOpts := []wallet.MemoryOption{
		wallet.WithAccounts(identity),
		wallet.WithNetwork(cfg.WalletNetwork()),
	}
	if cfg.Network.RejectSwitch {
		walletOpts = append(walletOpts, wallet.WithSwitchRejected())
	}
	w := wallet.NewMemory(walletOpts...)
	if err := w.Select(identity); err != nil {
		return nil, err
	}

	s := session.New(e.engine, w)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// parseIdentity parses --as, falling back to the configured owner.
func parseIdentity(flag string, cfg *config.Config) (ir.Address, error) {
	if flag == "" {
		if cfg.Registry.Owner == "" {
			return ir.NoAddress, NewExitError(ExitCommandError, "--as is required (no registry.owner configured)")
		}
		return cfg.OwnerAddress()
	}
	addr, err := ir.ParseAddress(flag)
	if err != nil {
		return ir.NoAddress, WrapExitError(ExitCommandError, "invalid --as address", err)
	}
	if addr.IsZero() {
		return ir.NoAddress, NewExitError(ExitCommandError, "--as must not be the zero address")
	}
	return addr, nil
}
