package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/petadopt/internal/ir"
)

// OwnerResult is the output of the owner command.
type OwnerResult struct {
	Owner       ir.Address `json:"owner"`
	EntityCount uint64     `json:"entity_count"`
	Version     uint64     `json:"version"`
}

// AdoptedResult is the output of the adopted command.
type AdoptedResult struct {
	By  *ir.Address   `json:"by,omitempty"`
	IDs []ir.EntityID `json:"ids"`
}

// OwnerOfResult is the output of the owner-of command.
type OwnerOfResult struct {
	EntityID ir.EntityID `json:"entity_id"`
	Adopter  string      `json:"adopter"` // zero address when unadopted
}

// NewOwnerCommand creates the owner command.
func NewOwnerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "owner",
		Short:         "Show the registry owner",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(rootOpts, func(env *environment) error {
				result := OwnerResult{
					Owner:       env.engine.GetOwner(),
					EntityCount: env.engine.EntityCount(),
					Version:     env.engine.Version(),
				}
				return rootOpts.formatter(cmd).Render(result, func(w io.Writer) {
					fmt.Fprintln(w, result.Owner.Hex())
				})
			})
		},
	}
}

// AdoptedOptions holds flags for the adopted command.
type AdoptedOptions struct {
	*RootOptions
	By string
}

// NewAdoptedCommand creates the adopted command.
func NewAdoptedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AdoptedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "adopted",
		Short: "List adopted pet ids",
		Long: `List every adopted pet id in ascending order, or with --by the ids
adopted by one address in the order they were adopted.

Examples:
  petadopt adopted
  petadopt adopted --by 0xf17f52151EbEF6C7334FAD080c5704D77216b732`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdopted(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.By, "by", "", "only pets adopted by this address")

	return cmd
}

func runAdopted(opts *AdoptedOptions, cmd *cobra.Command) error {
	var by *ir.Address
	if opts.By != "" {
		addr, err := ir.ParseAddress(opts.By)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --by address", err)
		}
		by = &addr
	}

	return withEnvironment(opts.RootOptions, func(env *environment) error {
		result := AdoptedResult{By: by}
		if by != nil {
			result.IDs = env.engine.GetAdoptedIdsByOwner(*by)
		} else {
			result.IDs = env.engine.GetAllAdoptedIds()
		}
		if result.IDs == nil {
			result.IDs = []ir.EntityID{}
		}

		return opts.formatter(cmd).Render(result, func(w io.Writer) {
			if len(result.IDs) == 0 {
				fmt.Fprintln(w, "No pets adopted.")
				return
			}
			for _, id := range result.IDs {
				fmt.Fprintln(w, id)
			}
		})
	})
}

// NewOwnerOfCommand creates the owner-of command.
func NewOwnerOfCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "owner-of <pet-id>",
		Short: "Show who adopted a pet",
		Long: `Print the adopter of a pet. Unadopted and nonexistent pets report the
zero address.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ir.ParseEntityID(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid pet id", err)
			}
			return withEnvironment(rootOpts, func(env *environment) error {
				result := OwnerOfResult{
					EntityID: id,
					Adopter:  env.engine.GetOwnerOfEntity(id).Hex(),
				}
				return rootOpts.formatter(cmd).Render(result, func(w io.Writer) {
					fmt.Fprintln(w, result.Adopter)
				})
			})
		},
	}
}

// withEnvironment opens the environment, runs fn and closes it.
func withEnvironment(opts *RootOptions, fn func(env *environment) error) error {
	ctx := context.Background()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	return fn(env)
}
