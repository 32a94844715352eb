package starlark

import (
	"context"
	"runtime"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"golang.org/x/sync/errgroup"
)

// fileOptions governs how queries are parsed and resolved.
var fileOptions = &syntax.FileOptions{}

// threads recycles Starlark threads between row evaluations.
var threads = sync.Pool{
	New: func() any { return newThread("") },
}

// RowResult is the outcome of evaluating a query against one row.
type RowResult struct {
	Line  int
	Value starlark.Value
	Err   error
}

// Runner evaluates one query against many rows.
type Runner struct {
	globals starlark.StringDict
	workers int
}

// NewRunner creates a runner sharing globals between rows. At most workers
// rows are evaluated at once; zero means GOMAXPROCS.
func NewRunner(workers int, globals starlark.StringDict) *Runner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Runner{globals: globals, workers: workers}
}

// Run evaluates expr against every row and returns the results in row
// order. Rows not started before ctx is done report the context error.
func (r *Runner) Run(ctx context.Context, filename, expr string, rows []Row) []RowResult {
	results := make([]RowResult, len(rows))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i := range rows {
		if err := ctx.Err(); err != nil {
			results[i] = RowResult{Line: rows[i].Number, Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = r.evalRow(ctx, filename, expr, &rows[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) evalRow(ctx context.Context, filename, expr string, row *Row) RowResult {
	res := RowResult{Line: row.Number}

	env, err := row.Locals()
	if err != nil {
		res.Err = err
		return res
	}
	// Row properties shadow globals of the same name.
	for name, v := range r.globals {
		if _, ok := env[name]; !ok {
			env[name] = v
		}
	}

	thread := threads.Get().(*starlark.Thread)
	thread.Name = filename
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })

	res.Value, res.Err = starlark.EvalOptions(fileOptions, thread, filename, expr, env)

	// A cancelled thread stays cancelled, so only clean threads go back.
	if stop() {
		threads.Put(thread)
	}
	return res
}

// newThread creates a Starlark thread whose print is a no-op.
func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}
