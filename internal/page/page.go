// Package page derives the visible rows of a table from cached columns,
// the filter mask and the current ordering. Rendering never fetches
// columns other than filter inputs.
package page

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/leapstack-labs/leaptable/internal/column"
	"github.com/leapstack-labs/leaptable/internal/filter"
	"github.com/leapstack-labs/leaptable/internal/order"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// DefaultPageSize is used when a request carries no positive page size.
const DefaultPageSize = 20

// PageSizes are the page sizes offered to users.
var PageSizes = []int{10, 20, 50, 100, 500}

// Request describes the view to render.
type Request struct {
	// Columns are the header queries in display order. Empty entries are
	// placeholder columns.
	Columns  []string
	PageSize int
	// Page is the selected page as typed by the user, 1-based.
	Page    string
	Filters []string
}

// Header describes one displayed column.
type Header struct {
	Query      string `json:"query"`
	Loaded     bool   `json:"loaded"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"errorClass,omitempty"`
}

// Row is one displayed row. Index is the row index in the column arrays.
type Row struct {
	Index int      `json:"index"`
	Cells []string `json:"cells"`
}

// Option is one entry of the page selector.
type Option struct {
	Value    int  `json:"value"`
	Selected bool `json:"selected"`
}

// Page is a rendered view. When Ready is false no ordering exists yet and
// nothing else is set.
type Page struct {
	Ready         bool     `json:"ready"`
	Headers       []Header `json:"headers"`
	Rows          []Row    `json:"rows"`
	Page          int      `json:"page"`
	PageSize      int      `json:"pageSize"`
	FilteredCount int      `json:"filteredCount"`
	PageCount     int      `json:"pageCount"`
	Options       []Option `json:"options"`
}

// Options configures a View.
type Options struct {
	// PageSize overrides DefaultPageSize.
	PageSize int
	// OnRender is called when a filter column needed by a previous render
	// has arrived.
	OnRender func(objectType core.ObjectType)
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// View renders pages for every ObjectType of a session.
type View struct {
	cache       *column.Cache
	filters     *filter.Evaluator
	orders      *order.Engine
	render      func(core.ObjectType)
	defaultSize int
	logger      *slog.Logger
}

// New creates a View.
func New(cache *column.Cache, filters *filter.Evaluator, orders *order.Engine, opts Options) *View {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &View{
		cache:       cache,
		filters:     filters,
		orders:      orders,
		render:      opts.OnRender,
		defaultSize: size,
		logger:      logger,
	}
}

// ParsePage parses a user supplied page number. Anything that is not a
// positive integer selects page 1.
func ParsePage(s string) int {
	p, err := strconv.Atoi(s)
	if err != nil || p < 1 {
		return 1
	}
	return p
}

// Render builds the page described by req.
func (v *View) Render(ctx context.Context, objectType core.ObjectType, req Request) Page {
	ordering, ok := v.orders.Peek(objectType)
	if !ok {
		return Page{}
	}

	size := req.PageSize
	if size <= 0 {
		size = v.defaultSize
	}
	pageNo := ParsePage(req.Page)

	headers := make([]Header, len(req.Columns))
	data := make([][]string, len(req.Columns))
	n := 0
	for j, q := range req.Columns {
		headers[j].Query = q
		if q == "" {
			continue
		}
		res, cached := v.cache.Get(objectType, q)
		if !cached {
			continue
		}
		headers[j].Loaded = true
		if res.Failed() {
			headers[j].Error = res.Error
			headers[j].ErrorClass = res.ErrorClass
			continue
		}
		data[j] = res.DataFormatted
		if len(res.DataFormatted) > n {
			n = len(res.DataFormatted)
		}
	}

	mask, maskReady := v.filters.Mask(ctx, objectType, req.Filters, v.retry(objectType))
	if !maskReady {
		v.logger.Debug("filter columns pending, showing unfiltered rows", "object_type", objectType)
	}

	start := (pageNo - 1) * size
	end := start + size
	limit := min(len(ordering), n)

	var rows []Row
	count := 0
	for rank := 0; rank < limit; rank++ {
		i := ordering[rank]
		if maskReady && (i >= len(mask) || !mask[i]) {
			continue
		}
		if count >= start && count < end {
			rows = append(rows, Row{Index: i, Cells: cells(data, i)})
		}
		count++
	}

	pageCount := (count + size - 1) / size
	options := make([]Option, pageCount)
	for k := range options {
		options[k] = Option{Value: k + 1, Selected: k+1 == pageNo}
	}

	return Page{
		Ready:         true,
		Headers:       headers,
		Rows:          rows,
		Page:          pageNo,
		PageSize:      size,
		FilteredCount: count,
		PageCount:     pageCount,
		Options:       options,
	}
}

func (v *View) retry(objectType core.ObjectType) column.Callback {
	if v.render == nil {
		return nil
	}
	return func(*core.ColumnResult) { v.render(objectType) }
}

func cells(data [][]string, i int) []string {
	out := make([]string, len(data))
	for j, col := range data {
		if i < len(col) {
			out[j] = col[i]
		}
	}
	return out
}
