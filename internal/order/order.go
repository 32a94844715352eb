// Package order maintains the display permutation of each table.
//
// An ordering starts as the identity over the row count and is rearranged
// by sorting on a cached column. The last sort choice is persisted so it can
// be re-applied when that column arrives again.
package order

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/leapstack-labs/leaptable/internal/column"
	"github.com/leapstack-labs/leaptable/internal/persist"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Options configures an Engine.
type Options struct {
	// OnRender is called after an ordering changed.
	OnRender func(objectType core.ObjectType)
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Engine holds one ordering per ObjectType.
type Engine struct {
	cache  *column.Cache
	port   *persist.Port
	render func(core.ObjectType)
	logger *slog.Logger

	mu     sync.Mutex
	orders map[core.ObjectType][]int
	active map[core.ObjectType]core.SortState
}

// New creates an engine sorting on columns from cache and persisting sort
// choices through port. The engine re-applies a persisted sort whenever its
// column arrives in the cache.
func New(cache *column.Cache, port *persist.Port, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{
		cache:  cache,
		port:   port,
		render: opts.OnRender,
		logger: logger,
		orders: make(map[core.ObjectType][]int),
		active: make(map[core.ObjectType]core.SortState),
	}
	cache.OnArrival(func(objectType core.ObjectType, query string, _ *core.ColumnResult) {
		if err := e.AutoReorder(context.Background(), objectType, query); err != nil {
			e.logger.Warn("auto reorder failed", "object_type", objectType, "query", query, "error", err)
		}
	})
	return e
}

// Order returns the ordering of objectType, creating the identity
// permutation of length n on first use. Later calls return the current
// ordering whatever n is. The returned slice must not be modified. A sort
// replaces the ordering, so a slice returned earlier keeps its contents.
func (e *Engine) Order(objectType core.ObjectType, n int) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[objectType]; ok {
		return o
	}
	o := identity(n)
	e.orders[objectType] = o
	return o
}

// Peek returns a copy of the ordering of objectType without creating one.
func (e *Engine) Peek(objectType core.ObjectType) ([]int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[objectType]
	if !ok {
		return nil, false
	}
	return append([]int(nil), o...), true
}

// Active returns the sort currently applied to objectType.
func (e *Engine) Active(objectType core.ObjectType) (core.SortState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.active[objectType]
	return st, ok
}

// ReorderBy sorts objectType by the numeric value of query. The choice is
// persisted immediately. When the column is not cached yet it is requested
// and the sort is applied on arrival.
func (e *Engine) ReorderBy(ctx context.Context, objectType core.ObjectType, query string, ascending bool) error {
	st := core.SortState{Query: query, Ascending: ascending}
	if err := e.port.SaveSortState(objectType, st); err != nil {
		return fmt.Errorf("persisting sort for %s: %w", objectType, err)
	}

	res := e.cache.Request(ctx, objectType, query, nil)
	if res == nil {
		e.logger.Debug("sort deferred until column arrives", "object_type", objectType, "query", query)
		return nil
	}
	e.apply(objectType, st, res)
	return nil
}

// AutoReorder re-applies the persisted sort of objectType if it sorts by query.
func (e *Engine) AutoReorder(ctx context.Context, objectType core.ObjectType, query string) error {
	st, ok, err := e.port.SortState(objectType)
	if err != nil {
		return err
	}
	if !ok || st.Query != query {
		return nil
	}

	res, cached := e.cache.Get(objectType, query)
	if !cached {
		return nil
	}
	e.logger.Debug("restoring order", "object_type", objectType, "query", query, "ascending", st.Ascending)
	e.apply(objectType, st, res)
	return nil
}

// Reset forgets the ordering and active sort of objectType.
func (e *Engine) Reset(objectType core.ObjectType) {
	e.mu.Lock()
	delete(e.orders, objectType)
	delete(e.active, objectType)
	e.mu.Unlock()
}

// ResetAll forgets every ordering and active sort.
func (e *Engine) ResetAll() {
	e.mu.Lock()
	e.orders = make(map[core.ObjectType][]int)
	e.active = make(map[core.ObjectType]core.SortState)
	e.mu.Unlock()
}

func (e *Engine) apply(objectType core.ObjectType, st core.SortState, res *core.ColumnResult) {
	if res.Failed() {
		e.logger.Debug("not sorting by error column", "object_type", objectType, "query", st.Query)
		return
	}

	e.mu.Lock()
	current, ok := e.orders[objectType]
	if !ok {
		current = identity(res.Len())
	}
	e.orders[objectType] = Sort(current, res.DataFormatted, st.Ascending)
	e.active[objectType] = st
	e.mu.Unlock()

	if e.render != nil {
		e.render(objectType)
	}
}

func identity(n int) []int {
	if n < 0 {
		n = 0
	}
	o := make([]int, n)
	for i := range o {
		o[i] = i
	}
	return o
}

// Sort returns order rearranged by the numeric value of values at each
// index. Entries whose value is not a number keep their position; numeric
// entries are stably sorted into the remaining positions.
func Sort(order []int, values []string, ascending bool) []int {
	out := append([]int(nil), order...)

	type entry struct {
		idx int
		v   float64
	}
	slots := make([]int, 0, len(order))
	entries := make([]entry, 0, len(order))
	for pos, idx := range order {
		v := math.NaN()
		if idx >= 0 && idx < len(values) {
			v = ParseFloat(values[idx])
		}
		if math.IsNaN(v) {
			continue
		}
		slots = append(slots, pos)
		entries = append(entries, entry{idx: idx, v: v})
	}

	sign := 1.0
	if !ascending {
		sign = -1.0
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return sign*entries[i].v < sign*entries[j].v
	})

	for k, pos := range slots {
		out[pos] = entries[k].idx
	}
	return out
}
