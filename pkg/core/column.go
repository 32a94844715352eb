package core

import "context"

// ObjectType identifies a logical table (a class of catalogued objects).
// Caches, orderings and persisted editable sets are scoped per ObjectType.
type ObjectType string

// ColumnResult is the fetched result set of one query column.
// A semantic failure is carried in Error/ErrorClass rather than as a Go error;
// callers must check Failed before using DataFormatted.
type ColumnResult struct {
	DataFormatted  []string `json:"data_formatted"`
	CanUseInPlot   bool     `json:"can_use_in_plot"`
	CanUseAsFilter bool     `json:"can_use_as_filter"`
	IsArray        bool     `json:"is_array"`
	Error          string   `json:"error,omitempty"`
	ErrorClass     string   `json:"error_class,omitempty"`
	Timestep       string   `json:"timestep,omitempty"`
}

// Failed reports whether the result is error-flagged.
func (r *ColumnResult) Failed() bool {
	return r != nil && (r.Error != "" || r.ErrorClass != "")
}

// Len returns the number of rows in the column.
func (r *ColumnResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.DataFormatted)
}

// Value returns the formatted value at row i, or false when out of range.
func (r *ColumnResult) Value(i int) (string, bool) {
	if r == nil || i < 0 || i >= len(r.DataFormatted) {
		return "", false
	}
	return r.DataFormatted[i], true
}

// Fetcher fetches a single column by query.
// A returned error is a transport failure; semantic errors are reported
// through ColumnResult.Error.
type Fetcher interface {
	Fetch(ctx context.Context, objectType ObjectType, query string) (*ColumnResult, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, objectType ObjectType, query string) (*ColumnResult, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, objectType ObjectType, query string) (*ColumnResult, error) {
	return f(ctx, objectType, query)
}
