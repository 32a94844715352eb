package starlark

import (
	"math"
	"sort"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

// log10 returns the base 10 logarithm of a number.
var log10 = starlark.NewBuiltin("log10", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(x)
	if !ok {
		return nil, errNotNumber(b.Name(), x)
	}
	return starlark.Float(math.Log10(f)), nil
})

var length = starlark.NewBuiltin("length", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Sequence
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	return starlark.MakeInt(x.Len()), nil
})

func errNotNumber(fn string, v starlark.Value) error {
	return &notNumberError{fn: fn, typ: v.Type()}
}

type notNumberError struct {
	fn  string
	typ string
}

func (e *notNumberError) Error() string {
	return e.fn + ": got " + e.typ + ", want number"
}

// EnvToStarlark converts the object type name to a Starlark value.
// The name is accessible as the "object_type" global.
func EnvToStarlark(objectType string) starlark.Value {
	return starlark.String(objectType)
}

// Predeclared returns all predeclared/builtin globals for query evaluation.
// This includes: math, log10, length, object_type, dataset
// Note: number() and row properties are added per row.
func Predeclared(dataset *DatasetInfo, objectType string) starlark.StringDict {
	globals := starlark.StringDict{
		"math":        starlarkmath.Module,
		"log10":       log10,
		"length":      length,
		"object_type": EnvToStarlark(objectType),
	}

	if dataset != nil {
		globals["dataset"] = dataset.ToStarlark()
	}

	return globals
}

// BuiltinNames lists the names a query can use besides row properties,
// including the members of the math module as "math.<name>".
func BuiltinNames() []string {
	names := []string{"dataset", "number"}
	for name := range Predeclared(nil, "") {
		names = append(names, name)
	}
	for name := range starlarkmath.Module.Members {
		names = append(names, "math."+name)
	}
	sort.Strings(names)
	return names
}
