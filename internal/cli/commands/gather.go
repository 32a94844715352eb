package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaptable/internal/cli/config"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// NewGatherCommand creates the gather command.
func NewGatherCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gather <object-type> <query>",
		Short: "Evaluate one query column",
		Long: `Evaluate a query expression for every object of an object type and print
the formatted column.

The column comes from the local catalog built from the data directory, or
from a running server when --server is set.`,
		Example: `  # Halo masses from the local data directory
  leaptable gather halo Mvir

  # Expressions are Starlark
  leaptable gather halo "log10(Mvir) if not contam else None"

  # Ask a running server instead
  leaptable gather halo Mvir --server http://localhost:8765 -o json`,
		Args: cobra.ExactArgs(2),
		RunE: runGather,
	}
	return cmd
}

func runGather(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfig()
	logger := config.GetLogger(ctx)

	fetcher, release, err := newFetcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	objectType, q := core.ObjectType(args[0]), args[1]
	res, err := fetcher.Fetch(ctx, objectType, q)
	if err != nil {
		return fmt.Errorf("gather %s/%s: %w", objectType, q, err)
	}

	format := resolveFormat(cmd.OutOrStdout(), cfg.OutputFormat)
	if format == FormatJSON {
		// Failed results are printed as they are so scripts can read the error class.
		if err := renderJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Failed() {
			return columnError(q, res)
		}
		return nil
	}
	if res.Failed() {
		return columnError(q, res)
	}

	g := grid{Headers: []string{"#", q}}
	for i, v := range res.DataFormatted {
		g.Rows = append(g.Rows, []string{strconv.Itoa(i + 1), v})
	}
	if res.Timestep != "" {
		g.Caption = fmt.Sprintf("%s, %d rows", res.Timestep, res.Len())
	}
	return renderGrid(cmd.OutOrStdout(), g, format, res)
}
