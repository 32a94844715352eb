package table

import (
	"github.com/leapstack-labs/leaptable/internal/query"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// ControlKind identifies a column control.
type ControlKind string

// Column control kinds.
const (
	ControlFilter    ControlKind = "filter"
	ControlSortAsc   ControlKind = "sort-asc"
	ControlSortDesc  ControlKind = "sort-desc"
	ControlPlotX     ControlKind = "plot-x"
	ControlPlotY     ControlKind = "plot-y"
	ControlPlotArray ControlKind = "plot-array"
)

// Plot axis form fields.
const (
	FieldPlotX     = "x"
	FieldPlotY     = "y"
	FieldPlotArray = "justthis"
)

const checkedValue = "on"

// Control is one toggle attached to a column. Name and Value identify the
// form field backing a checkable control.
type Control struct {
	Kind    ControlKind `json:"kind"`
	Name    string      `json:"name,omitempty"`
	Value   string      `json:"value,omitempty"`
	Checked bool        `json:"checked"`
	Active  bool        `json:"active"`
}

// Controls is the control set of a column. Hidden controls keep their
// checked state but have no effect.
type Controls struct {
	Visible []Control `json:"visible"`
	Hidden  []Control `json:"hidden"`
	Delete  bool      `json:"delete"`
}

// FilterField returns the form field name of the filter toggle for q.
func FilterField(q string) string {
	return "filter-" + query.Encode(q)
}

// ControlsFor derives the control set of a column from its result. A nil
// result means the column has not arrived yet. Column headings offer sort
// controls in place of plot controls and have no array controls.
func ControlsFor(res *core.ColumnResult, q string, heading bool) Controls {
	enc := query.Encode(q)
	scalar := []Control{
		{Kind: ControlPlotX, Name: FieldPlotX, Value: enc},
		{Kind: ControlPlotY, Name: FieldPlotY, Value: enc},
	}
	array := []Control{{Kind: ControlPlotArray, Name: FieldPlotArray, Value: enc}}
	filters := []Control{{Kind: ControlFilter, Name: FilterField(q), Value: checkedValue}}
	if heading {
		array = nil
		scalar = []Control{{Kind: ControlSortAsc}, {Kind: ControlSortDesc}}
	}

	var c Controls
	switch {
	case res == nil || res.Failed():
		c.Hidden = concat(scalar, filters, array)
	case res.CanUseAsFilter:
		c.Visible = filters
		c.Hidden = concat(array, scalar)
	case res.CanUseInPlot:
		c.Visible = scalar
		c.Hidden = concat(array, filters)
	case res.IsArray:
		c.Visible = array
		c.Hidden = concat(scalar, filters)
	default:
		c.Hidden = concat(scalar, filters, array)
	}
	return c
}

func concat(groups ...[]Control) []Control {
	var out []Control
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// apply sets checked and active flags from form values and the active sort.
func (c *Controls) apply(values map[string]string, q string, sort core.SortState, sorted bool) {
	mark := func(list []Control) {
		for i := range list {
			ctl := &list[i]
			if ctl.Name != "" {
				ctl.Checked = values[ctl.Name] == ctl.Value
			}
			if sorted && sort.Query == q {
				ctl.Active = (ctl.Kind == ControlSortAsc && sort.Ascending) ||
					(ctl.Kind == ControlSortDesc && !sort.Ascending)
			}
		}
	}
	mark(c.Visible)
	mark(c.Hidden)
}
