package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestPropertyValue(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    string
		wantErr bool
	}{
		{name: "nil", input: nil, want: "None"},
		{name: "bool", input: true, want: "True"},
		{name: "int", input: 42, want: "42"},
		{name: "int64", input: int64(123456789), want: "123456789"},
		{name: "float", input: 3.14, want: "3.14"},
		{name: "string", input: "main", want: `"main"`},
		{name: "empty list", input: []any{}, want: "[]"},
		{name: "mixed list", input: []any{int64(1), 2.5, false, nil}, want: "[1, 2.5, False, None]"},
		{name: "unsupported", input: struct{}{}, wantErr: true},
		{name: "unsupported element", input: []any{map[string]any{}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PropertyValue(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPropertyValue_ListsAreFrozen(t *testing.T) {
	v, err := PropertyValue([]any{int64(1)})
	require.NoError(t, err)

	list, ok := v.(*starlark.List)
	require.True(t, ok)
	assert.Error(t, list.Append(starlark.MakeInt(2)))
}

func TestDatasetInfo_ToStarlark(t *testing.T) {
	ds := &DatasetInfo{Name: "sim", Version: "abc123"}
	require.NotNil(t, ds.ToStarlark())

	ctx := NewExecutionContext(ds, "halo")
	got, err := ctx.EvalExprWithLocals("dataset.version", "test", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, `"abc123"`, got.String())
}

func TestRow_Locals(t *testing.T) {
	row := &Row{Number: 7, Properties: map[string]any{"Mvir": 1.5e12, "name": "a"}}

	locals, err := row.Locals()
	require.NoError(t, err)
	assert.Equal(t, "1.5e+12", locals["Mvir"].String())
	assert.Contains(t, locals, "number")

	bad := &Row{Properties: map[string]any{"x": struct{}{}}}
	_, err = bad.Locals()
	assert.ErrorContains(t, err, `property "x"`)
}
