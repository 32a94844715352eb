package catalog

import (
	"fmt"
	"math"
	"strings"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// MaxArrayLength is the longest array rendered element by element; longer
// arrays render as "Array".
const MaxArrayLength = 3

// FormatColumn builds the result of a gathered column. Capability flags are
// taken from the first value.
func FormatColumn(values []starlark.Value, timestep string) *core.ColumnResult {
	res := &core.ColumnResult{
		DataFormatted: make([]string, len(values)),
		Timestep:      timestep,
	}
	for i, v := range values {
		res.DataFormatted[i] = FormatValue(v)
	}
	if len(values) > 0 {
		res.CanUseInPlot = isNumber(values[0])
		res.CanUseAsFilter = isBool(values[0])
		res.IsArray = isArray(values[0])
	}
	return res
}

// FormatValue renders one value for display.
func FormatValue(v starlark.Value) string {
	switch val := v.(type) {
	case starlark.Int:
		return val.String()
	case starlark.Float:
		return formatFloat(float64(val))
	case starlark.Indexable:
		if _, ok := v.(starlark.String); ok {
			return v.String()
		}
		return formatArray(val)
	case nil:
		return starlark.None.String()
	default:
		return v.String()
	}
}

func formatArray(v starlark.Indexable) string {
	if v.Len() > MaxArrayLength {
		return "Array"
	}
	parts := make([]string, v.Len())
	for i := range parts {
		parts[i] = FormatValue(v.Index(i))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if a := math.Abs(f); a > 1e5 || a < 1e-2 {
		return fmt.Sprintf("%.2e", f)
	}
	return fmt.Sprintf("%.2f", f)
}

func isNumber(v starlark.Value) bool {
	switch v.(type) {
	case starlark.Int, starlark.Float:
		return true
	}
	return false
}

func isBool(v starlark.Value) bool {
	_, ok := v.(starlark.Bool)
	return ok
}

func isArray(v starlark.Value) bool {
	switch v.(type) {
	case *starlark.List, starlark.Tuple:
		return true
	}
	return false
}
