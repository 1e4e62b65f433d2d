package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Owner     string
	Pets      uint64
	NetworkID uint64
}

// InitResult is the recorded registry configuration.
type InitResult struct {
	Database    string     `json:"database"`
	Owner       ir.Address `json:"owner"`
	InitialPets uint64     `json:"initial_pets"`
	NetworkID   uint64     `json:"network_id"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the registry database",
		Long: `Create the journal database and record the registry owner, the number
of pets that exist from the start, and the network the registry runs on.

Values default to registry.owner, registry.initial_pets and network.id from
the config file. Running init again with the same values is a no-op; the
owner can never change.

Examples:
  petadopt init --owner 0x627306090abaB3A6e1400e9345bC60c78a8BEf57 --pets 16
  petadopt init --config petadopt.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "registry owner address (default registry.owner)")
	cmd.Flags().Uint64Var(&opts.Pets, "pets", 0, "number of pets created with the registry (default registry.initial_pets)")
	cmd.Flags().Uint64Var(&opts.NetworkID, "network", 0, "network id (default network.id)")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	ownerHex := cfg.Registry.Owner
	if cmd.Flags().Changed("owner") {
		ownerHex = opts.Owner
	}
	if ownerHex == "" {
		return NewExitError(ExitCommandError, "--owner is required (no registry.owner configured)")
	}
	owner, err := ir.ParseAddress(ownerHex)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid owner address", err)
	}
	if owner.IsZero() {
		return NewExitError(ExitCommandError, "owner must not be the zero address")
	}

	meta := store.Meta{
		Owner:        owner,
		InitialCount: cfg.Registry.InitialPets,
		NetworkID:    cfg.Network.ID,
	}
	if cmd.Flags().Changed("pets") {
		meta.InitialCount = opts.Pets
	}
	if cmd.Flags().Changed("network") {
		if opts.NetworkID == 0 {
			return NewExitError(ExitCommandError, "--network must be positive")
		}
		meta.NetworkID = opts.NetworkID
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.InitMeta(ctx, meta); err != nil {
		if errors.Is(err, store.ErrMetaMismatch) {
			return WrapExitError(ExitCommandError, "registry already initialised", err)
		}
		return WrapExitError(ExitCommandError, "failed to initialise registry", err)
	}

	result := InitResult{
		Database:    cfg.Database.Path,
		Owner:       meta.Owner,
		InitialPets: meta.InitialCount,
		NetworkID:   meta.NetworkID,
	}
	return opts.formatter(cmd).Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "Initialized registry at %s\n", result.Database)
		fmt.Fprintf(w, "  owner:   %s\n", result.Owner.Hex())
		fmt.Fprintf(w, "  pets:    %d\n", result.InitialPets)
		fmt.Fprintf(w, "  network: %d\n", result.NetworkID)
	})
}
