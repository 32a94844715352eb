package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaptable/internal/column"
	"github.com/leapstack-labs/leaptable/internal/persist"
	"github.com/leapstack-labs/leaptable/internal/testutil"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

type mapFetcher map[string][]string

func (f mapFetcher) Fetch(_ context.Context, _ core.ObjectType, query string) (*core.ColumnResult, error) {
	data, ok := f[query]
	if !ok {
		return &core.ColumnResult{Error: "no such property", ErrorClass: "NameError"}, nil
	}
	return &core.ColumnResult{DataFormatted: data, CanUseInPlot: true}, nil
}

type fixture struct {
	cache   *column.Cache
	port    *persist.Port
	engine  *Engine
	renders chan core.ObjectType
	arrived chan string
}

func newFixture(t *testing.T, columns map[string][]string) *fixture {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	f := &fixture{
		cache:   column.New(mapFetcher(columns), column.Options{Logger: logger}),
		port:    persist.NewPort(persist.NewMemoryStorage(), logger),
		renders: make(chan core.ObjectType, 16),
		arrived: make(chan string, 16),
	}
	f.engine = New(f.cache, f.port, Options{
		Logger:   logger,
		OnRender: func(ot core.ObjectType) { f.renders <- ot },
	})
	// Registered after the engine, so it runs once the engine has seen the column.
	f.cache.OnArrival(func(_ core.ObjectType, query string, _ *core.ColumnResult) {
		f.arrived <- query
	})
	return f
}

func (f *fixture) prime(t *testing.T, queries ...string) {
	t.Helper()
	for _, q := range queries {
		_, err := f.cache.Await(context.Background(), "halo", q)
		require.NoError(t, err)
		select {
		case <-f.arrived:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for arrival")
		}
	}
}

func (f *fixture) waitRender(t *testing.T) {
	t.Helper()
	select {
	case <-f.renders:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for render")
	}
}

func TestSort(t *testing.T) {
	tests := []struct {
		name      string
		order     []int
		values    []string
		ascending bool
		want      []int
	}{
		{
			name:      "ascending",
			order:     []int{0, 1, 2},
			values:    []string{"5", "1", "3"},
			ascending: true,
			want:      []int{1, 2, 0},
		},
		{
			name:      "descending",
			order:     []int{0, 1, 2},
			values:    []string{"5", "1", "3"},
			ascending: false,
			want:      []int{0, 2, 1},
		},
		{
			name:      "NaN keeps its slot ascending",
			order:     []int{0, 1, 2, 3},
			values:    []string{"3", "1", "NaN", "2"},
			ascending: true,
			want:      []int{1, 3, 2, 0},
		},
		{
			name:      "NaN keeps its slot descending",
			order:     []int{0, 1, 2, 3},
			values:    []string{"3", "1", "NaN", "2"},
			ascending: false,
			want:      []int{0, 3, 2, 1},
		},
		{
			name:      "ties are stable",
			order:     []int{3, 2, 1, 0},
			values:    []string{"1", "1", "1", "0"},
			ascending: true,
			want:      []int{3, 2, 1, 0},
		},
		{
			name:      "indices past the column are not numbers",
			order:     []int{0, 1, 2},
			values:    []string{"9", "4"},
			ascending: true,
			want:      []int{1, 0, 2},
		},
		{
			name:      "formatted values",
			order:     []int{0, 1, 2},
			values:    []string{"1.00e+06", "2.50", "3.00e-03"},
			ascending: true,
			want:      []int{2, 1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]int(nil), tt.order...)
			got := Sort(tt.order, tt.values, tt.ascending)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, in, tt.order, "input order must not be modified")
			assert.ElementsMatch(t, tt.order, got)
		})
	}
}

func TestEngine_OrderIsLazyIdentity(t *testing.T) {
	f := newFixture(t, nil)

	_, ok := f.engine.Peek("halo")
	assert.False(t, ok)

	o := f.engine.Order("halo", 4)
	assert.Equal(t, []int{0, 1, 2, 3}, o)

	again := f.engine.Order("halo", 10)
	assert.Equal(t, o, again, "later calls return the existing ordering")

	peeked, ok := f.engine.Peek("halo")
	require.True(t, ok)
	assert.Equal(t, o, peeked)
}

func TestEngine_ReorderByCachedColumn(t *testing.T) {
	f := newFixture(t, map[string][]string{"Mvir": {"3", "1", "NaN", "2"}})
	f.prime(t, "Mvir")
	f.engine.Order("halo", 4)

	require.NoError(t, f.engine.ReorderBy(context.Background(), "halo", "Mvir", true))
	f.waitRender(t)

	o, ok := f.engine.Peek("halo")
	require.True(t, ok)
	assert.Equal(t, []int{1, 3, 2, 0}, o)

	active, ok := f.engine.Active("halo")
	require.True(t, ok)
	assert.Equal(t, core.SortState{Query: "Mvir", Ascending: true}, active)

	st, ok, err := f.port.SortState("halo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, active, st)
}

func TestEngine_SortReplacesOrdering(t *testing.T) {
	f := newFixture(t, map[string][]string{"Mvir": {"3", "1", "2"}})
	f.prime(t, "Mvir")
	before := f.engine.Order("halo", 3)

	require.NoError(t, f.engine.ReorderBy(context.Background(), "halo", "Mvir", false))
	f.waitRender(t)

	assert.Equal(t, []int{0, 1, 2}, before, "earlier slice is a snapshot")
	assert.Equal(t, []int{0, 2, 1}, f.engine.Order("halo", 3))
}

func TestEngine_ReorderByUncachedColumnAppliesOnArrival(t *testing.T) {
	f := newFixture(t, map[string][]string{"Mvir": {"10", "30", "20"}})
	f.engine.Order("halo", 3)

	require.NoError(t, f.engine.ReorderBy(context.Background(), "halo", "Mvir", false))

	st, ok, err := f.port.SortState("halo")
	require.NoError(t, err)
	require.True(t, ok, "sort state is persisted before the column arrives")
	assert.Equal(t, "Mvir", st.Query)

	f.waitRender(t)
	o, _ := f.engine.Peek("halo")
	assert.Equal(t, []int{1, 2, 0}, o)
}

func TestEngine_ActiveSortIsSinglePerObjectType(t *testing.T) {
	f := newFixture(t, map[string][]string{"a": {"1", "2"}, "b": {"2", "1"}})
	f.prime(t, "a", "b")
	ctx := context.Background()

	require.NoError(t, f.engine.ReorderBy(ctx, "halo", "a", true))
	require.NoError(t, f.engine.ReorderBy(ctx, "halo", "b", false))

	active, ok := f.engine.Active("halo")
	require.True(t, ok)
	assert.Equal(t, core.SortState{Query: "b", Ascending: false}, active)
}

func TestEngine_AutoReorder(t *testing.T) {
	f := newFixture(t, map[string][]string{"Mvir": {"2", "1"}, "other": {"1", "2"}})
	f.prime(t, "Mvir", "other")
	f.engine.Order("halo", 2)
	require.NoError(t, f.port.SaveSortState("halo", core.SortState{Query: "Mvir", Ascending: true}))

	require.NoError(t, f.engine.AutoReorder(context.Background(), "halo", "other"))
	o, _ := f.engine.Peek("halo")
	assert.Equal(t, []int{0, 1}, o, "a different column does not reorder")

	require.NoError(t, f.engine.AutoReorder(context.Background(), "halo", "Mvir"))
	o, _ = f.engine.Peek("halo")
	assert.Equal(t, []int{1, 0}, o)
}

func TestEngine_ErrorColumnDoesNotReorder(t *testing.T) {
	f := newFixture(t, map[string][]string{})
	f.prime(t, "missing")
	f.engine.Order("halo", 2)

	require.NoError(t, f.engine.ReorderBy(context.Background(), "halo", "missing", true))

	o, _ := f.engine.Peek("halo")
	assert.Equal(t, []int{0, 1}, o)
	_, ok := f.engine.Active("halo")
	assert.False(t, ok)
}

func TestEngine_Reset(t *testing.T) {
	f := newFixture(t, map[string][]string{"a": {"2", "1"}})
	f.prime(t, "a")
	f.engine.Order("halo", 2)
	require.NoError(t, f.engine.ReorderBy(context.Background(), "halo", "a", true))

	f.engine.Reset("halo")

	_, ok := f.engine.Peek("halo")
	assert.False(t, ok)
	_, ok = f.engine.Active("halo")
	assert.False(t, ok)
	assert.Equal(t, []int{0, 1}, f.engine.Order("halo", 2))
}
