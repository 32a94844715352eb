// Package column provides the per-session column cache.
//
// Results are stored per (ObjectType, query). At most one fetch is in
// flight per key: later requesters attach to the pending fetch and receive
// its result. Error-flagged results are cached like any other result and
// are never retried automatically. Resetting an ObjectType detaches its
// in-flight fetches; their completions are discarded.
package column

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/leapstack-labs/leaptable/pkg/core"
	"golang.org/x/sync/singleflight"
)

// ErrNoFetcher is returned by Await when the cache has no fetch capability.
var ErrNoFetcher = errors.New("column cache has no fetcher")

// errStale is delivered to requesters of a fetch detached by a reset.
var errStale = errors.New("column fetch outlived a reset")

// Callback receives a resolved column.
type Callback func(result *core.ColumnResult)

// ArrivalFunc is notified after a fetched column has been stored.
type ArrivalFunc func(objectType core.ObjectType, query string, result *core.ColumnResult)

// Options configures a Cache.
type Options struct {
	// Busy is called with true when an ObjectType gets its first pending
	// fetch, and with false when its last pending fetch completes.
	Busy func(objectType core.ObjectType, busy bool)
	// Failure is called when a fetch fails at the transport level.
	Failure func(objectType core.ObjectType, query string, err error)
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Cache stores column results per ObjectType and query.
type Cache struct {
	fetcher core.Fetcher
	logger  *slog.Logger
	busy    func(core.ObjectType, bool)
	failure func(core.ObjectType, string, error)

	group singleflight.Group

	mu       sync.Mutex
	tables   map[core.ObjectType]map[string]*core.ColumnResult
	inflight map[string]core.ObjectType
	pending  map[core.ObjectType]int
	arrivals []ArrivalFunc

	// The generation of an ObjectType is epoch + gens[objectType]. Both
	// only grow, so a reset always yields a new generation.
	epoch uint64
	gens  map[core.ObjectType]uint64
}

// New creates a cache backed by the given fetcher.
func New(fetcher core.Fetcher, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		fetcher:  fetcher,
		logger:   logger,
		busy:     opts.Busy,
		failure:  opts.Failure,
		tables:   make(map[core.ObjectType]map[string]*core.ColumnResult),
		inflight: make(map[string]core.ObjectType),
		pending:  make(map[core.ObjectType]int),
		gens:     make(map[core.ObjectType]uint64),
	}
}

// OnArrival registers a listener called after every fetched column is stored.
func (c *Cache) OnArrival(fn ArrivalFunc) {
	c.mu.Lock()
	c.arrivals = append(c.arrivals, fn)
	c.mu.Unlock()
}

func cacheKey(objectType core.ObjectType, query string, gen uint64) string {
	return string(objectType) + "\x00" + query + "\x00" + strconv.FormatUint(gen, 10)
}

// generation must be called with mu held.
func (c *Cache) generation(objectType core.ObjectType) uint64 {
	return c.epoch + c.gens[objectType]
}

// Get returns a cached column without triggering a fetch.
func (c *Cache) Get(objectType core.ObjectType, query string) (*core.ColumnResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.tables[objectType][query]
	return res, ok
}

// Pending returns the number of fetches in flight for an ObjectType.
func (c *Cache) Pending(objectType core.ObjectType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[objectType]
}

// Request returns the cached column, invoking cb synchronously, or starts
// (or joins) a fetch and returns nil. When a fetch is started or joined, cb is
// invoked from a background goroutine once the result has been stored.
// Requests that miss the completion of a fetch must request again.
func (c *Cache) Request(ctx context.Context, objectType core.ObjectType, query string, cb Callback) *core.ColumnResult {
	return c.request(ctx, objectType, query, func(res *core.ColumnResult, err error) {
		if err == nil && cb != nil {
			cb(res)
		}
	})
}

func (c *Cache) request(ctx context.Context, objectType core.ObjectType, query string, cb func(*core.ColumnResult, error)) *core.ColumnResult {
	c.mu.Lock()
	if res, ok := c.tables[objectType][query]; ok {
		c.mu.Unlock()
		metricRequests.WithLabelValues("hit").Inc()
		cb(res, nil)
		return res
	}

	if c.fetcher == nil {
		c.mu.Unlock()
		c.logger.Warn("column requested without a fetcher", "object_type", objectType, "query", query)
		cb(nil, ErrNoFetcher)
		return nil
	}

	gen := c.generation(objectType)
	key := cacheKey(objectType, query, gen)
	_, joined := c.inflight[key]
	var becameBusy bool
	if joined {
		metricRequests.WithLabelValues("joined").Inc()
	} else {
		metricRequests.WithLabelValues("miss").Inc()
		c.inflight[key] = objectType
		c.pending[objectType]++
		becameBusy = c.pending[objectType] == 1
		metricPending.Inc()
		c.logger.Debug("requesting column", "object_type", objectType, "query", query)
	}

	// Joining happens under the lock. The fetch drops its singleflight key
	// under the same lock when it stores the result, so the inflight set and
	// the singleflight keys always agree.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(fetchCtx, objectType, query, key, gen)
	})
	c.mu.Unlock()

	if becameBusy && c.busy != nil {
		c.busy(objectType, true)
	}

	leader := !joined
	go func() {
		r := <-ch
		if r.Err != nil {
			cb(nil, r.Err)
			return
		}
		res := r.Val.(*core.ColumnResult)
		cb(res, nil)
		if leader {
			c.notifyArrival(objectType, query, res)
		}
	}()
	return nil
}

// fetch runs inside singleflight, once per key and in-flight period.
func (c *Cache) fetch(ctx context.Context, objectType core.ObjectType, query, key string, gen uint64) (*core.ColumnResult, error) {
	res, err := c.fetcher.Fetch(ctx, objectType, query)
	if err == nil && res == nil {
		err = fmt.Errorf("fetcher returned no result for %q", query)
	}

	c.mu.Lock()
	c.group.Forget(key)
	if gen != c.generation(objectType) {
		// Reset already dropped this fetch from inflight and pending.
		c.mu.Unlock()
		metricFetches.WithLabelValues("stale").Inc()
		c.logger.Debug("discarding column fetched before reset", "object_type", objectType, "query", query)
		return nil, errStale
	}
	delete(c.inflight, key)
	c.pending[objectType]--
	becameIdle := c.pending[objectType] == 0
	if becameIdle {
		delete(c.pending, objectType)
	}
	if err == nil {
		if c.tables[objectType] == nil {
			c.tables[objectType] = make(map[string]*core.ColumnResult)
		}
		c.tables[objectType][query] = res
	}
	c.mu.Unlock()
	metricPending.Dec()

	if becameIdle && c.busy != nil {
		c.busy(objectType, false)
	}

	if err != nil {
		metricFetches.WithLabelValues("transport_error").Inc()
		c.logger.Error("column fetch failed", "object_type", objectType, "query", query, "error", err)
		if c.failure != nil {
			c.failure(objectType, query, err)
		}
		return nil, err
	}

	if res.Failed() {
		metricFetches.WithLabelValues("error_result").Inc()
		c.logger.Debug("column resolved with error", "object_type", objectType, "query", query,
			"error_class", res.ErrorClass, "error", res.Error)
	} else {
		metricFetches.WithLabelValues("ok").Inc()
		c.logger.Debug("column resolved", "object_type", objectType, "query", query, "rows", res.Len())
	}
	return res, nil
}

func (c *Cache) notifyArrival(objectType core.ObjectType, query string, res *core.ColumnResult) {
	c.mu.Lock()
	arrivals := append([]ArrivalFunc(nil), c.arrivals...)
	c.mu.Unlock()

	for _, fn := range arrivals {
		fn(objectType, query, res)
	}
}

// Await requests a column and blocks until it resolves, the fetch fails, or
// ctx is done.
func (c *Cache) Await(ctx context.Context, objectType core.ObjectType, query string) (*core.ColumnResult, error) {
	type outcome struct {
		res *core.ColumnResult
		err error
	}
	done := make(chan outcome, 1)
	c.request(ctx, objectType, query, func(res *core.ColumnResult, err error) {
		done <- outcome{res, err}
	})

	for {
		done := make(chan outcome, 1)
		c.request(ctx, objectType, query, func(res *core.ColumnResult, err error) {
			done <- outcome{res, err}
		})

		select {
		case o := <-done:
			if errors.Is(o.err, errStale) {
				continue
			}
			if o.err != nil {
				return nil, fmt.Errorf("fetching column %q: %w", query, o.err)
			}
			return o.res, nil
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for column %q: %w", query, ctx.Err())
		}
	}
}

// Reset discards every cached column of an ObjectType and detaches its
// in-flight fetches. A later request fetches again.
func (c *Cache) Reset(objectType core.ObjectType) {
	c.mu.Lock()
	delete(c.tables, objectType)
	c.gens[objectType]++
	idle := c.detach(func(ot core.ObjectType) bool { return ot == objectType })
	c.mu.Unlock()
	c.notifyIdle(idle)
}

// ResetAll discards every cached column and detaches every in-flight fetch.
func (c *Cache) ResetAll() {
	c.mu.Lock()
	c.tables = make(map[core.ObjectType]map[string]*core.ColumnResult)
	c.epoch++
	idle := c.detach(func(core.ObjectType) bool { return true })
	c.mu.Unlock()
	c.notifyIdle(idle)
}

// detach drops matching in-flight fetches from the pending counters and
// returns the ObjectTypes that became idle. Must be called with mu held.
func (c *Cache) detach(match func(core.ObjectType) bool) []core.ObjectType {
	var idle []core.ObjectType
	for key, ot := range c.inflight {
		if !match(ot) {
			continue
		}
		delete(c.inflight, key)
		metricPending.Dec()
		c.pending[ot]--
		if c.pending[ot] == 0 {
			delete(c.pending, ot)
			idle = append(idle, ot)
		}
	}
	return idle
}

func (c *Cache) notifyIdle(idle []core.ObjectType) {
	if c.busy == nil {
		return
	}
	for _, ot := range idle {
		c.busy(ot, false)
	}
}
