package starlark

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func rows() []Row {
	return []Row{
		{Number: 1, Properties: map[string]any{"Mvir": 1e12, "Rvir": 200.0, "tag": "a"}},
		{Number: 2, Properties: map[string]any{"Mvir": 4e11, "Rvir": 0.0, "tag": "b"}},
		{Number: 3, Properties: map[string]any{"Mvir": nil, "Rvir": 100.0, "tag": "c"}},
	}
}

func TestExecutionContext_EvalRow(t *testing.T) {
	ctx := NewExecutionContext(&DatasetInfo{Name: "sim"}, "halo")
	r := rows()[0]

	tests := []struct {
		name    string
		expr    string
		want    string
		wantErr bool
	}{
		{name: "property", expr: "Mvir", want: "1e+12"},
		{name: "arithmetic", expr: "Mvir/Rvir", want: "5e+09"},
		{name: "comparison", expr: "Mvir > 5e11", want: "True"},
		{name: "row number", expr: "number()", want: "1"},
		{name: "number takes no arguments", expr: "number(1)", wantErr: true},
		{name: "unknown property", expr: "Mgas", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ctx.EvalRow(tt.expr, &r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestExecutionContext_EvalColumn(t *testing.T) {
	ctx := NewExecutionContext(nil, "halo")

	values, err := ctx.EvalColumn(context.Background(), "Mvir/Rvir", rows(), 4)
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.Equal(t, "5e+09", values[0].String())
	assert.Equal(t, starlark.None, values[1], "division by zero yields None")
	assert.Equal(t, starlark.None, values[2], "None operand yields None")
}

func TestExecutionContext_EvalColumnErrors(t *testing.T) {
	ctx := NewExecutionContext(nil, "halo")

	tests := []struct {
		name  string
		expr  string
		class string
	}{
		{name: "syntax", expr: "Mvir +", class: ClassSyntax},
		{name: "unknown name", expr: "Mgas * 2", class: ClassName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ctx.EvalColumn(context.Background(), tt.expr, rows(), 2)
			require.Error(t, err)

			var evalErr *EvalError
			require.True(t, errors.As(err, &evalErr), "expected *EvalError, got %T", err)
			assert.Equal(t, tt.class, evalErr.Class)
			assert.Equal(t, tt.expr, evalErr.Expr)
		})
	}
}

func TestExecutionContext_AddFunctions(t *testing.T) {
	ctx := NewExecutionContext(nil, "halo")

	double := starlark.NewBuiltin("double", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x float64
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
			return nil, err
		}
		return starlark.Float(x * 2), nil
	})

	require.NoError(t, ctx.AddFunctions(starlark.StringDict{"double": double}))
	r := rows()[0]
	got, err := ctx.EvalRow("double(Rvir)", &r)
	require.NoError(t, err)
	assert.Equal(t, "400.0", got.String())

	err = ctx.AddFunctions(starlark.StringDict{"log10": double})
	assert.ErrorContains(t, err, "conflicts with builtin")
	err = ctx.AddFunctions(starlark.StringDict{"number": double})
	assert.Error(t, err)
}

func TestEvalError_Error(t *testing.T) {
	err := &EvalError{File: "halo", Line: 3, Expr: "x", Message: "boom"}
	assert.Equal(t, `halo:3: error evaluating "x": boom`, err.Error())

	err.Line = 0
	assert.Equal(t, `halo: error evaluating "x": boom`, err.Error())
}

func TestExecutionContext_EvalColumnEmptyTable(t *testing.T) {
	ctx := NewExecutionContext(nil, "halo")

	values, err := ctx.EvalColumn(context.Background(), "Mvir", nil, 2)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = ctx.EvalColumn(context.Background(), "Mvir +", nil, 2)
	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, ClassSyntax, evalErr.Class)
}

func TestExecutionContext_EvalColumnCancelled(t *testing.T) {
	ctx := NewExecutionContext(nil, "halo")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ctx.EvalColumn(cancelled, "Mvir", rows(), 2)
	assert.ErrorIs(t, err, context.Canceled)
}
