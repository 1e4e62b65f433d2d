package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/session"
)

// RequestOptions holds flags shared by add and adopt.
type RequestOptions struct {
	*RootOptions
	As string // submitting identity
}

// RequestResult is printed after a request reaches a terminal state.
type RequestResult struct {
	Receipt ir.Receipt   `json:"receipt"`
	View    session.View `json:"session"`
}

// NewAdoptCommand creates the adopt command.
func NewAdoptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "adopt <pet-id>",
		Short: "Adopt a pet",
		Long: `Adopt an unadopted pet as --as (default registry.owner).

The request is preflighted against the current registry, submitted, and
the command waits for its receipt (up to session.await_timeout).

Exit codes:
  0 - Pet adopted
  1 - Request rejected or failed (reason printed)
  2 - Command error

Examples:
  petadopt adopt 3 --as 0xf17f52151EbEF6C7334FAD080c5704D77216b732
  petadopt adopt 3 --as 0xf17f52151EbEF6C7334FAD080c5704D77216b732 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ir.ParseEntityID(args[0])
			if err != nil {
				// Negative and non-numeric ids are refused here, before any
				// request is built.
				return opts.formatter(cmd).RequestFailed(err, map[string]string{"input": args[0]})
			}
			return runRequest(opts, cmd, ir.AdoptEntity{ID: id})
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "adopter address (default registry.owner)")

	return cmd
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RequestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a pet (owner only)",
		Long: `Create one new pet. Its id is the current pet count.
Only the registry owner can add pets.

Examples:
  petadopt add
  petadopt add --as 0x627306090abaB3A6e1400e9345bC60c78a8BEf57`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(opts, cmd, ir.AddEntity{})
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "caller address (default registry.owner)")

	return cmd
}

func runRequest(opts *RequestOptions, cmd *cobra.Command, req ir.Request) error {
	ctx := context.Background()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	identity, err := parseIdentity(opts.As, cfg)
	if err != nil {
		return err
	}

	env, err := openEnvironment(ctx, cfg)
	if err != nil {
		return err
	}
	defer env.Close()

	out := opts.formatter(cmd)

	sess, err := env.connect(ctx, cfg, identity)
	if err != nil {
		return out.RequestFailed(err, nil)
	}
	defer sess.Disconnect()

	pending, err := sess.Submit(ctx, req)
	if err != nil {
		return out.RequestFailed(err, nil)
	}
	out.VerboseLog("submitted %s seq=%d request_id=%s", pending.Kind, pending.Seq, pending.RequestID)

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Session.AwaitTimeout)
	defer cancel()

	receipt, err := sess.AwaitOutcome(waitCtx)
	if err != nil {
		return out.RequestFailed(err, receiptDetails(receipt))
	}

	result := RequestResult{Receipt: receipt, View: sess.Snapshot()}
	return out.Render(result, func(w io.Writer) {
		switch receipt.Kind {
		case ir.KindAddEntity:
			fmt.Fprintf(w, "Added pet %d\n", receipt.EntityID)
		default:
			fmt.Fprintf(w, "Adopted pet %d as %s\n", receipt.EntityID, identity.Hex())
		}
		fmt.Fprintf(w, "  seq:        %d\n", receipt.Seq)
		fmt.Fprintf(w, "  request_id: %s\n", receipt.RequestID)
		fmt.Fprintf(w, "  version:    %d\n", receipt.Version)
		if len(result.View.Owned) > 0 {
			fmt.Fprintf(w, "  you own:    %v\n", result.View.Owned)
		}
	})
}

// receiptDetails returns the receipt for error output, or nil if none was
// produced.
func receiptDetails(r ir.Receipt) any {
	if r.RequestID == "" {
		return nil
	}
	return r
}
