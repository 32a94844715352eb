// Package ui provides the leaptable HTTP server: the gather endpoint and the
// per-session table API.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaptable/internal/catalog"
	"github.com/leapstack-labs/leaptable/internal/persist"
	"github.com/leapstack-labs/leaptable/internal/ui/live"
	"github.com/leapstack-labs/leaptable/internal/ui/router"
)

// Server is the main HTTP server.
type Server struct {
	catalog      *catalog.Catalog
	store        *persist.SQLiteStore
	sessionStore *sessions.CookieStore
	registry     *live.Registry
	port         int
	watch        bool
	dataDir      string
	fixed        []string
	logger       *slog.Logger
}

// Config holds configuration for the server.
type Config struct {
	Catalog *catalog.Catalog
	// Store keeps session state across evictions and restarts. Optional.
	Store          *persist.SQLiteStore
	DataDir        string
	Port           int
	Watch          bool
	SessionSecret  string
	SessionTTL     time.Duration
	MaxSessions    int
	IdentityColumn string
	PageSize       int
	FixedColumns   []string
	Logger         *slog.Logger
}

// NewServer creates a new server instance.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = live.DefaultTTL
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(int(storedStateMaxAge.Seconds()))
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	var storage live.StorageProvider
	if cfg.Store != nil {
		storage = cfg.Store
	}

	registry := live.New(live.Config{
		Fetcher:        cfg.Catalog,
		Storage:        storage,
		Cookies:        sessionStore,
		IdentityColumn: cfg.IdentityColumn,
		PageSize:       cfg.PageSize,
		TTL:            cfg.SessionTTL,
		MaxSessions:    cfg.MaxSessions,
		Dataset:        func() string { return cfg.Catalog.Dataset().Version },
		Logger:         cfg.Logger,
	})

	return &Server{
		catalog:      cfg.Catalog,
		store:        cfg.Store,
		sessionStore: sessionStore,
		registry:     registry,
		port:         cfg.Port,
		watch:        cfg.Watch,
		dataDir:      cfg.DataDir,
		fixed:        cfg.FixedColumns,
		logger:       cfg.Logger,
	}
}

// Registry returns the live sessions of the server.
func (s *Server) Registry() *live.Registry {
	return s.registry
}

// Handler builds the HTTP handler of the server.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	if err := router.SetupRoutes(r, router.Deps{
		Source:   s.catalog,
		Registry: s.registry,
		Fixed:    s.fixed,
		Logger:   s.logger,
	}); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	handler, err := s.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start file watcher if enabled
	if s.watch && s.dataDir != "" {
		eg.Go(func() error {
			return s.watchFiles(egctx)
		})
	}

	if s.store != nil {
		eg.Go(func() error {
			s.purgeLoop(egctx)
			return nil
		})
	}

	// Start HTTP server
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		err := srv.Shutdown(shutdownCtx)
		if cerr := s.registry.Close(); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})

	return eg.Wait()
}

// Reload loads the data directory again. When the dataset changed every
// live session discards its cached columns and refetches its open tables.
func (s *Server) Reload(ctx context.Context) error {
	changed, err := s.catalog.Load(ctx, s.dataDir)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	n := s.registry.UseDataset(ctx, s.catalog.Dataset().Version)
	s.logger.Info("dataset reloaded", "version", s.catalog.Dataset().Version, "sessions", n)
	return nil
}

// storedStateMaxAge matches the lifetime of the session cookie.
const storedStateMaxAge = 30 * 24 * time.Hour

// purgeLoop drops stored session state older than the session cookie.
func (s *Server) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.PurgeBefore(time.Now().Add(-storedStateMaxAge))
			if err != nil {
				s.logger.Error("failed to purge session state", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("purged session state", "rows", n)
			}
		}
	}
}

// watchFiles watches the data directory for changed seeds.
func (s *Server) watchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.dataDir); err != nil {
		s.logger.Error("failed to watch data directory", "error", err)
		// Don't fail - continue without watching
	}

	// Debounce timer
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".csv" {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				s.logger.Debug("file changed, reloading", "file", event.Name)
				if err := s.Reload(ctx); err != nil {
					s.logger.Error("reload failed", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", "error", err)
		}
	}
}
