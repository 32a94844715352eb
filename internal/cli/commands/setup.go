package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leaptable/internal/catalog"
	"github.com/leapstack-labs/leaptable/internal/cli/config"
	"github.com/leapstack-labs/leaptable/internal/gather"
	"github.com/leapstack-labs/leaptable/internal/persist"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// getConfig returns the current configuration, or the defaults when none
// has been loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		DataDir:        config.DefaultDataDir,
		StatePath:      config.DefaultStateFile,
		IdentityColumn: config.DefaultIdentityColumn,
		PageSize:       config.DefaultPageSize,
		OutputFormat:   config.DefaultOutput,
		UI: config.UIConfig{
			Port:          config.DefaultPort,
			SessionSecret: config.DefaultSessionSecret,
			SessionTTL:    config.DefaultSessionTTL,
			MaxSessions:   config.DefaultMaxSessions,
			Watch:         true,
		},
	}
}

// ensureStateDir creates the directory holding the state database.
func ensureStateDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	return nil
}

// openCatalog opens the catalog in the state database and loads the data
// directory into it.
func openCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	if err := cfg.ValidateDirectories(); err != nil {
		return nil, err
	}
	if err := ensureStateDir(cfg.StatePath); err != nil {
		return nil, err
	}

	cat := catalog.New(catalog.Options{Logger: logger})
	if err := cat.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	changed, err := cat.Load(ctx, cfg.DataDir)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	ds := cat.Dataset()
	logger.Debug("catalog ready", "dataset", ds.Name, "version", ds.Version, "reloaded", changed)
	return cat, nil
}

// openStore opens the session store in the state database.
func openStore(cfg *config.Config, logger *slog.Logger) (*persist.SQLiteStore, error) {
	if err := ensureStateDir(cfg.StatePath); err != nil {
		return nil, err
	}
	store := persist.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	return store, nil
}

// newFetcher returns the column source of the CLI: the column server when
// server_url is set, the local catalog otherwise. The returned func releases it.
func newFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.Fetcher, func() error, error) {
	if cfg.ServerURL != "" {
		logger.Debug("using column server", "url", cfg.ServerURL)
		return gather.New(cfg.ServerURL, gather.Options{Logger: logger}), func() error { return nil }, nil
	}
	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cat, cat.Close, nil
}

// columnError reports a failed column result as an error.
func columnError(q string, res *core.ColumnResult) error {
	if res == nil {
		return errors.New("no result")
	}
	return fmt.Errorf("column %q failed: %s: %s", q, res.ErrorClass, res.Error)
}
