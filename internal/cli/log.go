package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/store"
)

// LogEntry is one journal row as printed by the log command.
type LogEntry struct {
	Session string     `json:"session"`
	Receipt ir.Receipt `json:"receipt"`
}

// LogResult is the output of the log command.
type LogResult struct {
	Owner       ir.Address `json:"owner"`
	InitialPets uint64     `json:"initial_pets"`
	NetworkID   uint64     `json:"network_id"`
	Entries     []LogEntry `json:"entries"`
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Kind   string
	Caller string
	Status string
	Pet    int64
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the request journal",
		Long: `Print journaled requests and their receipts in seq order, including
requests that were accepted but failed when applied. Filters combine with AND.

Examples:
  petadopt log
  petadopt log --kind adopt_entity --status success
  petadopt log --caller 0xf17f52151EbEF6C7334FAD080c5704D77216b732 --pet 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only add_entity or adopt_entity requests")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "only requests from this address")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only success or failure receipts")
	cmd.Flags().Int64Var(&opts.Pet, "pet", -1, "only requests for this pet id")

	return cmd
}

// journalFilter builds the journal predicate from the log flags.
func journalFilter(opts *LogOptions) (store.Predicate, error) {
	var preds []store.Predicate
	if opts.Kind != "" {
		kind := ir.RequestKind(opts.Kind)
		if kind != ir.KindAddEntity && kind != ir.KindAdoptEntity {
			return nil, fmt.Errorf("invalid --kind %q: must be add_entity or adopt_entity", opts.Kind)
		}
		preds = append(preds, store.Equals{Column: store.ColumnKind, Value: kind})
	}
	if opts.Caller != "" {
		addr, err := ir.ParseAddress(opts.Caller)
		if err != nil {
			return nil, fmt.Errorf("invalid --caller: %w", err)
		}
		preds = append(preds, store.Equals{Column: store.ColumnCaller, Value: addr})
	}
	if opts.Status != "" {
		status := ir.Status(opts.Status)
		if status != ir.StatusSuccess && status != ir.StatusFailure {
			return nil, fmt.Errorf("invalid --status %q: must be success or failure", opts.Status)
		}
		preds = append(preds, store.Equals{Column: store.ColumnStatus, Value: status})
	}
	if opts.Pet >= 0 {
		preds = append(preds, store.Equals{Column: store.ColumnEntity, Value: ir.EntityID(opts.Pet)})
	}
	return store.And{Predicates: preds}, nil
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	filter, err := journalFilter(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	if err := requireDatabase(cfg.Database.Path); err != nil {
		return err
	}

	// Listing reads the journal directly; a journal that no longer replays
	// can still be inspected.
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	meta, ok, err := st.ReadMeta(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read registry meta", err)
	}
	if !ok {
		return NewExitError(ExitCommandError, "registry not initialised (run `petadopt init` first)")
	}

	entries, err := st.QueryJournal(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := LogResult{
		Owner:       meta.Owner,
		InitialPets: meta.InitialCount,
		NetworkID:   meta.NetworkID,
		Entries:     make([]LogEntry, 0, len(entries)),
	}
	for _, e := range entries {
		result.Entries = append(result.Entries, LogEntry{Session: e.Session, Receipt: e.Receipt})
	}

	return opts.formatter(cmd).Render(result, func(w io.Writer) {
		if len(result.Entries) == 0 {
			fmt.Fprintln(w, "No journal entries.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SEQ\tKIND\tPET\tCALLER\tSTATUS\tVERSION")
		for _, e := range result.Entries {
			r := e.Receipt
			status := string(r.Status)
			if r.Reason != "" {
				status += " (" + r.Reason + ")"
			}
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%d\n", r.Seq, r.Kind, r.EntityID, r.Caller.Hex(), status, r.Version)
		}
		tw.Flush()
	})
}
