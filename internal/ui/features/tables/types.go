package tables

import "github.com/leapstack-labs/leaptable/internal/table"

// ViewSignals is the signal patch carrying a table view.
type ViewSignals struct {
	Table table.View `json:"table"`
}

// ColumnSignals is sent when an editable header cell is confirmed.
type ColumnSignals struct {
	Query string `json:"query"`
}

// SortSignals is sent by a sort control.
type SortSignals struct {
	Query     string `json:"query"`
	Ascending bool   `json:"ascending"`
}

// FilterSignals is sent by a filter toggle.
type FilterSignals struct {
	Query   string `json:"query"`
	Enabled bool   `json:"enabled"`
}

// PlotSignals is sent by a plot axis selector.
type PlotSignals struct {
	Field string `json:"field"`
	Query string `json:"query"`
}
