// Package live keeps the table sessions of connected browsers.
//
// Each browser is identified by a cookie session. Its table.Session lives in
// a TTL cache; when an idle session expires its page state is persisted
// so the next request restores it from durable storage.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Velocidex/ttlcache/v2"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/leaptable/internal/notifier"
	"github.com/leapstack-labs/leaptable/internal/persist"
	"github.com/leapstack-labs/leaptable/internal/table"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// CookieName is the name of the cookie session carrying the session id.
const CookieName = "leaptable"

const idKey = "id"

// Defaults for Config.
const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxSessions = 1000
)

// StorageProvider hands out durable storage per session id.
type StorageProvider interface {
	Session(id string) core.Storage
}

var _ StorageProvider = (*persist.SQLiteStore)(nil)

// Config configures a Registry.
type Config struct {
	Fetcher        core.Fetcher
	Storage        StorageProvider
	Cookies        sessions.Store
	IdentityColumn string
	PageSize       int
	TTL            time.Duration
	MaxSessions    int
	// Dataset returns the id of the dataset new sessions start on.
	Dataset func() string
	Logger  *slog.Logger
}

// Live is one browser session.
type Live struct {
	ID    string
	Table *table.Session
	Nav   *table.Lifecycle
}

// Registry maps session ids to live sessions.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	lru *ttlcache.Cache
}

// New creates a registry.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Dataset == nil {
		cfg.Dataset = func() string { return "" }
	}

	r := &Registry{
		cfg:    cfg,
		logger: cfg.Logger,
		lru:    ttlcache.NewCache(),
	}
	_ = r.lru.SetTTL(cfg.TTL)
	r.lru.SetCacheSizeLimit(cfg.MaxSessions)
	r.lru.SetExpirationCallback(func(key string, value interface{}) error {
		l, ok := value.(*Live)
		if ok {
			metricSessions.Dec()
			// Do not block the lru while persisting.
			go l.Nav.Leave()
		}
		r.logger.Debug("session expired", "session", key)
		return nil
	})
	return r
}

// Get returns the live session id, creating it when absent.
func (r *Registry) Get(id string) *Live {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, err := r.lru.Get(id); err == nil {
		if l, ok := v.(*Live); ok {
			return l
		}
	}

	var storage core.Storage
	if r.cfg.Storage != nil {
		storage = r.cfg.Storage.Session(id)
	} else {
		storage = persist.NewMemoryStorage()
	}

	l := &Live{
		ID: id,
		Table: table.New(table.Config{
			Fetcher:        r.cfg.Fetcher,
			Storage:        storage,
			Notifier:       notifier.New(),
			IdentityColumn: r.cfg.IdentityColumn,
			PageSize:       r.cfg.PageSize,
			Logger:         r.logger.With("session", id),
		}),
		Nav: &table.Lifecycle{},
	}
	l.Table.Attach(l.Nav)
	l.Table.UseDataset(context.Background(), r.cfg.Dataset())

	_ = r.lru.Set(id, l)
	metricSessions.Inc()
	r.logger.Debug("session started", "session", id)
	return l
}

// FromRequest returns the live session of the browser sending req. A new
// id is issued, and the cookie written to w, when the request carries none.
// It must run before anything is written to w.
func (r *Registry) FromRequest(w http.ResponseWriter, req *http.Request) (*Live, error) {
	if r.cfg.Cookies == nil {
		return nil, errors.New("no cookie store configured")
	}
	// A cookie that fails to decode yields a fresh session.
	sess, _ := r.cfg.Cookies.Get(req, CookieName)
	if sess == nil {
		return nil, errors.New("cookie store returned no session")
	}

	id, _ := sess.Values[idKey].(string)
	if id == "" {
		id = uuid.NewString()
		sess.Values[idKey] = id
		if err := sess.Save(req, w); err != nil {
			return nil, fmt.Errorf("failed to save session cookie: %w", err)
		}
	}
	return r.Get(id), nil
}

// UseDataset switches every live session to dataset id and returns how many
// sessions were reset.
func (r *Registry) UseDataset(ctx context.Context, id string) int {
	n := 0
	for _, l := range r.all() {
		if l.Table.UseDataset(ctx, id) {
			n++
		}
	}
	return n
}

// Broadcast pings every live session about every table.
func (r *Registry) Broadcast() {
	for _, l := range r.all() {
		l.Table.Notifier().Broadcast(notifier.All)
	}
}

func (r *Registry) all() []*Live {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Live
	for _, key := range r.lru.GetKeys() {
		v, err := r.lru.Get(key)
		if err != nil {
			continue
		}
		if l, ok := v.(*Live); ok {
			out = append(out, l)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lru.GetKeys())
}

// Close persists every live session and stops the cache.
func (r *Registry) Close() error {
	for _, l := range r.all() {
		l.Nav.Leave()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lru.Close()
}
