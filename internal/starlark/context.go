package starlark

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Error classes reported for failed queries.
const (
	ClassSyntax = "SyntaxError"
	ClassName   = "NameError"
	ClassEval   = "EvalError"
)

// ExecutionContext provides all globals for evaluating queries of one
// object type.
type ExecutionContext struct {
	// Dataset describes the loaded dataset.
	// Accessible as: dataset.name, dataset.version
	Dataset *DatasetInfo

	// ObjectType is the object type the rows belong to.
	ObjectType string

	// Functions contains extra functions registered by the caller
	Functions starlark.StringDict

	// globals is the combined set of all globals for execution
	globals starlark.StringDict

	// mu protects globals during initialization
	mu sync.RWMutex
}

// NewExecutionContext creates a new execution context with the given parameters.
func NewExecutionContext(dataset *DatasetInfo, objectType string) *ExecutionContext {
	ec := &ExecutionContext{
		Dataset:    dataset,
		ObjectType: objectType,
		Functions:  make(starlark.StringDict),
	}
	ec.buildGlobals()
	return ec
}

// buildGlobals constructs the combined globals dict.
func (ec *ExecutionContext) buildGlobals() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	ec.globals = Predeclared(ec.Dataset, ec.ObjectType)
	for name, fn := range ec.Functions {
		ec.globals[name] = fn
	}
}

// Globals returns the combined globals dictionary for Starlark execution.
func (ec *ExecutionContext) Globals() starlark.StringDict {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.globals
}

// AddFunctions adds functions to the context.
// Returns error if a name conflicts with a builtin.
func (ec *ExecutionContext) AddFunctions(fns starlark.StringDict) error {
	builtins := Predeclared(nil, "")
	builtins["dataset"] = starlark.None
	builtins["number"] = starlark.None

	for name := range fns {
		if _, ok := builtins[name]; ok {
			return fmt.Errorf("function %q conflicts with builtin", name)
		}
	}

	ec.mu.Lock()
	for name, fn := range fns {
		ec.Functions[name] = fn
	}
	ec.mu.Unlock()

	ec.buildGlobals()
	return nil
}

// EvalRow evaluates a query against one row.
func (ec *ExecutionContext) EvalRow(expr string, row *Row) (starlark.Value, error) {
	locals, err := row.Locals()
	if err != nil {
		return nil, err
	}
	return ec.EvalExprWithLocals(expr, ec.ObjectType, row.Number, locals)
}

// EvalExprWithLocals evaluates a Starlark expression with additional local variables.
// Row properties are passed as locals and shadow globals of the same name.
func (ec *ExecutionContext) EvalExprWithLocals(expr string, filename string, line int, locals starlark.StringDict) (starlark.Value, error) {
	thread := newThread(filename)

	// Combine globals with locals (locals take precedence)
	globals := ec.Globals()
	if len(locals) > 0 {
		combined := make(starlark.StringDict, len(globals)+len(locals))
		for k, v := range globals {
			combined[k] = v
		}
		for k, v := range locals {
			combined[k] = v
		}
		globals = combined
	}

	result, err := starlark.EvalOptions(fileOptions, thread, filename, expr, globals)
	if err != nil {
		return nil, newEvalError(filename, line, expr, err)
	}

	return result, nil
}

// EvalColumn evaluates a query against every row, using up to workers
// goroutines. A query that does not parse or names an unknown property
// fails as a whole; a runtime error in one row yields None for that row.
func (ec *ExecutionContext) EvalColumn(ctx context.Context, expr string, rows []Row, workers int) ([]starlark.Value, error) {
	if _, err := fileOptions.ParseExpr(ec.ObjectType, expr, 0); err != nil {
		return nil, newEvalError(ec.ObjectType, 0, expr, err)
	}

	results := NewRunner(workers, ec.Globals()).Run(ctx, ec.ObjectType, expr, rows)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make([]starlark.Value, len(results))
	for i, r := range results {
		if r.Err == nil {
			values[i] = r.Value
			continue
		}
		evalErr := newEvalError(ec.ObjectType, r.Line, expr, r.Err)
		if evalErr.Class != ClassEval {
			return nil, evalErr
		}
		values[i] = starlark.None
	}
	return values, nil
}

// EvalError represents an error during Starlark expression evaluation.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Class   string
	Message string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}

func newEvalError(file string, line int, expr string, err error) *EvalError {
	var existing *EvalError
	if errors.As(err, &existing) {
		return existing
	}
	return &EvalError{
		File:    file,
		Line:    line,
		Expr:    expr,
		Class:   classify(err),
		Message: err.Error(),
	}
}

// classify maps a Starlark failure to an error class.
func classify(err error) string {
	var syntaxErr syntax.Error
	if errors.As(err, &syntaxErr) {
		return ClassSyntax
	}
	var resolveErrs resolve.ErrorList
	if errors.As(err, &resolveErrs) {
		return ClassName
	}
	return ClassEval
}
