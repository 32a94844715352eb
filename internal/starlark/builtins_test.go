package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestPredeclared(t *testing.T) {
	globals := Predeclared(&DatasetInfo{Name: "sim"}, "halo")

	for _, key := range []string{"math", "log10", "length", "object_type", "dataset"} {
		_, ok := globals[key]
		assert.True(t, ok, "global %q not found", key)
	}

	globals = Predeclared(nil, "halo")
	_, ok := globals["dataset"]
	assert.False(t, ok, "dataset is omitted when unknown")
}

func TestBuiltins(t *testing.T) {
	ctx := NewExecutionContext(nil, "halo")

	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{expr: "log10(1)", want: "0.0"},
		{expr: `log10("x")`, wantErr: true},
		{expr: "length([1, 2, 3])", want: "3"},
		{expr: "math.sqrt(16)", want: "4.0"},
		{expr: "object_type", want: `"halo"`},
	}

	got, err := ctx.EvalExprWithLocals("log10(1000)", "test", 0, nil)
	require.NoError(t, err)
	f, ok := starlark.AsFloat(got)
	require.True(t, ok)
	assert.InDelta(t, 3.0, f, 1e-12)

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ctx.EvalExprWithLocals(tt.expr, "test", 0, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestBuiltinNames(t *testing.T) {
	names := BuiltinNames()

	for _, want := range []string{"dataset", "number", "log10", "length", "math", "object_type", "math.sqrt"} {
		assert.Contains(t, names, want)
	}
	assert.IsIncreasing(t, names)
}
