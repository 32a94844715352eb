package commands

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaptable/internal/cli/config"
	"github.com/leapstack-labs/leaptable/internal/table"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// BrowseOptions holds options for the browse command.
type BrowseOptions struct {
	Filters []string
	Sort    string
	Desc    bool
	Page    int
	Timeout time.Duration
}

// BrowseResult is the JSON form of a browsed page.
type BrowseResult struct {
	ObjectType    core.ObjectType   `json:"object_type"`
	Columns       []string          `json:"columns"`
	Rows          []BrowseRow       `json:"rows"`
	Page          int               `json:"page"`
	PageCount     int               `json:"page_count"`
	PageSize      int               `json:"page_size"`
	FilteredCount int               `json:"filtered_count"`
	Sort          *core.SortState   `json:"sort,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// BrowseRow is one row of a browsed page. Index is the object number minus one.
type BrowseRow struct {
	Index int      `json:"index"`
	Cells []string `json:"cells"`
}

// NewBrowseCommand creates the browse command.
func NewBrowseCommand() *cobra.Command {
	opts := &BrowseOptions{}

	cmd := &cobra.Command{
		Use:   "browse <object-type> [query...]",
		Short: "Show a filtered, sorted page of a table",
		Long: `Open a table of an object type with the given query columns and print one
page of it.

Filter queries must evaluate to booleans; only rows where every filter is
true are shown. With --session the columns, filters, page and sort are
stored in the state database and restored on the next call with the same
session name.`,
		Example: `  # First page of halos with two extra columns
  leaptable browse halo Mvir Rvir

  # Uncontaminated halos, heaviest first
  leaptable browse halo Mvir --filter "not contam" --sort Mvir --desc

  # Keep the table between calls
  leaptable browse halo Mvir --session mine
  leaptable browse halo --session mine --page 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, args, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "Boolean query rows must satisfy (repeatable)")
	cmd.Flags().StringVarP(&opts.Sort, "sort", "s", "", "Query to sort by")
	cmd.Flags().BoolVar(&opts.Desc, "desc", false, "Sort descending")
	cmd.Flags().IntVarP(&opts.Page, "page", "p", 1, "Page to show, 1-based")
	cmd.Flags().Int("page-size", 0, "Rows per page")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "Give up waiting for columns after this long")

	return cmd
}

func runBrowse(cmd *cobra.Command, args []string, opts *BrowseOptions) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	fetcher, release, err := newFetcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	tc := table.Config{
		Fetcher:        fetcher,
		IdentityColumn: cfg.IdentityColumn,
		PageSize:       cfg.PageSize,
		Logger:         logger,
	}
	if cfg.Session != "" {
		store, err := openStore(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		tc.Storage = store.Session(cfg.Session)
	}

	sess := table.New(tc)
	nav := &table.Lifecycle{}
	sess.Attach(nav)

	objectType := core.ObjectType(args[0])
	sess.BeginPage()
	sess.Open(ctx, objectType)
	nav.Arrive()

	// Queries, filters and the sort column all become header columns so
	// they are stored with the session.
	wanted := append(slices.Clone(args[1:]), opts.Filters...)
	if opts.Sort != "" {
		wanted = append(wanted, opts.Sort)
	}
	for _, q := range wanted {
		if err := addColumn(sess, objectType, q); err != nil {
			return err
		}
	}

	if err := sess.Wait(ctx, objectType); err != nil {
		return fmt.Errorf("waiting for columns: %w", err)
	}
	if res, ok := sess.Cache().Get(objectType, sess.IdentityColumn()); ok && res.Failed() {
		return columnError(sess.IdentityColumn(), res)
	}

	for _, f := range opts.Filters {
		if err := sess.SetFilter(objectType, f, true); err != nil {
			return err
		}
	}
	if opts.Sort != "" {
		if err := sess.Sort(ctx, objectType, opts.Sort, !opts.Desc); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("page-size") {
		if err := sess.SetPageSize(objectType, cfg.PageSize); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("page") || cfg.Session == "" {
		if err := sess.SetPage(objectType, strconv.Itoa(opts.Page)); err != nil {
			return err
		}
	}

	view, err := sess.Render(ctx, objectType)
	if err != nil {
		return err
	}

	if cfg.Session != "" {
		nav.Leave()
	}

	return renderView(cmd, cfg, view)
}

// addColumn types q into the trailing placeholder of the header unless the
// table already shows it.
func addColumn(sess *table.Session, objectType core.ObjectType, q string) error {
	cols, err := sess.Columns(objectType)
	if err != nil {
		return err
	}
	placeholder := ""
	for _, c := range cols {
		if c.Query == q {
			return nil
		}
		if c.Editable && c.Query == "" {
			placeholder = c.SlotID
		}
	}
	if placeholder == "" {
		return fmt.Errorf("no free column for %q", q)
	}
	return sess.EditColumn(objectType, placeholder, q)
}

func renderView(cmd *cobra.Command, cfg *config.Config, view table.View) error {
	out := BrowseResult{
		ObjectType:    view.ObjectType,
		Page:          view.Page.Page,
		PageCount:     view.PageCount,
		PageSize:      view.PageSize,
		FilteredCount: view.FilteredCount,
		Sort:          view.Sort,
	}

	var keep []int
	for j, h := range view.Headers {
		if h.Query == "" {
			continue
		}
		keep = append(keep, j)
		out.Columns = append(out.Columns, h.Query)
		if h.ErrorClass != "" {
			if out.Errors == nil {
				out.Errors = make(map[string]string)
			}
			out.Errors[h.Query] = h.ErrorClass + ": " + h.Error
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: column %q failed: %s: %s\n", h.Query, h.ErrorClass, h.Error)
		}
	}

	g := grid{Headers: out.Columns}
	for _, r := range view.Rows {
		cells := make([]string, len(keep))
		for i, j := range keep {
			cells[i] = r.Cells[j]
		}
		out.Rows = append(out.Rows, BrowseRow{Index: r.Index, Cells: cells})
		g.Rows = append(g.Rows, cells)
	}
	g.Caption = fmt.Sprintf("page %d of %d, %d rows", out.Page, max(out.PageCount, 1), out.FilteredCount)
	if view.Sort != nil {
		dir := "ascending"
		if !view.Sort.Ascending {
			dir = "descending"
		}
		g.Caption += fmt.Sprintf(", sorted by %s %s", view.Sort.Query, dir)
	}

	return renderGrid(cmd.OutOrStdout(), g, cfg.OutputFormat, out)
}
