package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/petadopt/internal/catalog"
	"github.com/roach88/petadopt/internal/ir"
	"github.com/roach88/petadopt/internal/session"
)

// PetsOptions holds flags for the pets command.
type PetsOptions struct {
	*RootOptions
	As      string
	Filter  string
	Catalog string
}

// PetsResult is the output of the pets command.
type PetsResult struct {
	Identity ir.Address     `json:"identity"`
	Filter   session.Filter `json:"filter"`
	Items    []session.Item `json:"items"`
}

// NewPetsCommand creates the pets command.
func NewPetsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PetsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pets",
		Short: "List pets from the catalog with their adoption state",
		Long: `Join the pet catalog with the registry as seen by --as.

Filters:
  home  - every pet; unadopted pets are marked adoptable
  owned - only pets adopted by --as

Examples:
  petadopt pets --catalog pets.json
  petadopt pets --filter owned --as 0xf17f52151EbEF6C7334FAD080c5704D77216b732`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPets(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "", "viewer address (default registry.owner)")
	cmd.Flags().StringVar(&opts.Filter, "filter", string(session.FilterHome), "home|owned")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "catalog file (default catalog.path)")

	return cmd
}

func runPets(opts *PetsOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	filter, err := session.ParseFilter(opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --filter", err)
	}

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	path := opts.Catalog
	if path == "" {
		path = cfg.Catalog.Path
	}
	if path == "" {
		return NewExitError(ExitCommandError, "--catalog is required (no catalog.path configured)")
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
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

	result := PetsResult{
		Identity: identity,
		Filter:   filter,
		Items:    sess.Items(cat, filter),
	}
	return out.Render(result, func(w io.Writer) {
		writePetsTable(w, result.Items)
	})
}

func writePetsTable(w io.Writer, items []session.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No pets.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tBREED\tAGE\tLOCATION\tSTATUS")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			it.Pet.ID, it.Pet.Name, it.Pet.Breed, it.Pet.Age, it.Pet.Location, itemStatus(it))
	}
	tw.Flush()
}

func itemStatus(it session.Item) string {
	switch {
	case it.Owned:
		return "yours"
	case it.Adopted:
		return "adopted"
	case it.Actionable:
		return "adoptable"
	default:
		return "-"
	}
}
