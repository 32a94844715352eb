package table

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

func kinds(list []Control) []ControlKind {
	out := make([]ControlKind, 0, len(list))
	for _, c := range list {
		out = append(out, c.Kind)
	}
	return out
}

func TestControlsFor(t *testing.T) {
	tests := []struct {
		name    string
		res     *core.ColumnResult
		heading bool
		visible []ControlKind
		hidden  []ControlKind
	}{
		{
			name:    "not loaded",
			res:     nil,
			heading: true,
			visible: []ControlKind{},
			hidden:  []ControlKind{ControlSortAsc, ControlSortDesc, ControlFilter},
		},
		{
			name:    "filter heading",
			res:     &core.ColumnResult{CanUseAsFilter: true},
			heading: true,
			visible: []ControlKind{ControlFilter},
			hidden:  []ControlKind{ControlSortAsc, ControlSortDesc},
		},
		{
			name:    "scalar heading",
			res:     &core.ColumnResult{CanUseInPlot: true},
			heading: true,
			visible: []ControlKind{ControlSortAsc, ControlSortDesc},
			hidden:  []ControlKind{ControlFilter},
		},
		{
			name:    "scalar property",
			res:     &core.ColumnResult{CanUseInPlot: true},
			heading: false,
			visible: []ControlKind{ControlPlotX, ControlPlotY},
			hidden:  []ControlKind{ControlPlotArray, ControlFilter},
		},
		{
			name:    "array property",
			res:     &core.ColumnResult{IsArray: true},
			heading: false,
			visible: []ControlKind{ControlPlotArray},
			hidden:  []ControlKind{ControlPlotX, ControlPlotY, ControlFilter},
		},
		{
			name:    "array heading",
			res:     &core.ColumnResult{IsArray: true},
			heading: true,
			visible: []ControlKind{},
			hidden:  []ControlKind{ControlSortAsc, ControlSortDesc, ControlFilter},
		},
		{
			name:    "error column",
			res:     &core.ColumnResult{Error: "bad", CanUseInPlot: true},
			heading: false,
			visible: []ControlKind{},
			hidden:  []ControlKind{ControlPlotX, ControlPlotY, ControlFilter, ControlPlotArray},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ControlsFor(tt.res, "a/b", tt.heading)
			assert.Equal(t, tt.visible, kinds(c.Visible))
			assert.Equal(t, tt.hidden, kinds(c.Hidden))
		})
	}
}

func TestControls_ApplyCheckedState(t *testing.T) {
	c := ControlsFor(&core.ColumnResult{CanUseInPlot: true}, "a/b", false)
	c.apply(map[string]string{FieldPlotY: "a_slash_b", FilterField("a/b"): "on"}, "a/b", core.SortState{}, false)

	assert.False(t, c.Visible[0].Checked)
	assert.True(t, c.Visible[1].Checked)
	assert.True(t, c.Hidden[1].Checked, "hidden filter keeps its checked state")
	assert.Equal(t, "filter-a_slash_b", c.Hidden[1].Name)
}
