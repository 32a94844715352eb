// Package starlark evaluates query expressions against catalog rows.
//
// A query is a single Starlark expression. Every property of the row is a
// predeclared name, so "Mvir", "Mvir/Rvir" and "log10(Mvir) > 12" are all
// valid queries.
package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DatasetInfo describes the loaded dataset.
// Exposed as the "dataset" global.
type DatasetInfo struct {
	Name    string // Dataset directory name
	Version string // Content hash of the loaded files
}

// ToStarlark converts DatasetInfo to a frozen Starlark struct.
func (d *DatasetInfo) ToStarlark() starlark.Value {
	s := starlarkstruct.FromStringDict(starlark.String("dataset"), starlark.StringDict{
		"name":    starlark.String(d.Name),
		"version": starlark.String(d.Version),
	})
	s.Freeze()
	return s
}

// Row is one object of an object type.
type Row struct {
	// Number is the 1-based row number returned by number().
	Number int
	// Properties maps property names to parsed cell values.
	Properties map[string]any
}

// Locals returns the row properties and the row bound builtins.
// The returned dict is fresh and may be extended by the caller.
func (r *Row) Locals() (starlark.StringDict, error) {
	locals := make(starlark.StringDict, len(r.Properties)+1)
	for name, v := range r.Properties {
		sv, err := PropertyValue(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		locals[name] = sv
	}
	locals["number"] = numberBuiltin(r.Number)
	return locals, nil
}

func numberBuiltin(n int) *starlark.Builtin {
	return starlark.NewBuiltin("number", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return starlark.MakeInt(n), nil
	})
}

// PropertyValue converts a parsed cell to a Starlark value.
//
//	nil      -> None
//	bool     -> bool
//	int64    -> int
//	float64  -> float
//	string   -> string
//	[]any    -> frozen list
//
// int is accepted for callers building rows by hand.
func PropertyValue(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		elems := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := PropertyValue(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = sv
		}
		list := starlark.NewList(elems)
		list.Freeze()
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported property type %T", v)
	}
}
