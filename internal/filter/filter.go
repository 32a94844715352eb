// Package filter computes per-row inclusion masks from enabled filter columns.
package filter

import (
	"context"

	"github.com/leapstack-labs/leaptable/internal/column"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// True is the canonical formatted value of a passing filter cell.
const True = "True"

// DefaultIdentityColumn is the row-number column used to size masks.
const DefaultIdentityColumn = "number()"

// Evaluator computes filter masks over cached columns. It never blocks:
// when a required column is missing it requests it and reports not ready,
// and the caller re-invokes Mask from the retry callback.
type Evaluator struct {
	cache    *column.Cache
	identity string
}

// New creates an evaluator reading from cache. An empty identity selects
// DefaultIdentityColumn.
func New(cache *column.Cache, identity string) *Evaluator {
	if identity == "" {
		identity = DefaultIdentityColumn
	}
	return &Evaluator{cache: cache, identity: identity}
}

// IdentityColumn returns the query that defines the row count.
func (e *Evaluator) IdentityColumn() string {
	return e.identity
}

// Mask returns the inclusion mask for objectType given the enabled filter
// queries. The bool is false when a required column is not cached yet; in that
// case a fetch has been triggered with retry as its callback.
func (e *Evaluator) Mask(ctx context.Context, objectType core.ObjectType, enabled []string, retry column.Callback) ([]bool, bool) {
	filters := make([]*core.ColumnResult, 0, len(enabled))
	for _, q := range enabled {
		res, ok := e.cache.Get(objectType, q)
		if !ok {
			e.cache.Request(ctx, objectType, q, retry)
			return nil, false
		}
		filters = append(filters, res)
	}

	ident, ok := e.cache.Get(objectType, e.identity)
	if !ok {
		e.cache.Request(ctx, objectType, e.identity, retry)
		return nil, false
	}

	n := ident.Len()
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	for _, f := range filters {
		for i := 0; i < n; i++ {
			if v, ok := f.Value(i); !ok || v != True {
				mask[i] = false
			}
		}
	}
	return mask, true
}

// Count returns the number of included rows.
func Count(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}
