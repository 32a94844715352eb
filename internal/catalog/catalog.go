// Package catalog holds the server side object catalog. Object types are
// loaded from CSV seeds into SQLite and queried column by column with
// Starlark expressions.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/leapstack-labs/leaptable/internal/starlark"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "catalog_migrations"

// DefaultWorkers is the number of goroutines evaluating one column.
const DefaultWorkers = 4

// ErrUnknownObjectType is returned for object types the catalog does not hold.
var ErrUnknownObjectType = errors.New("unknown object type")

// Options configures a Catalog.
type Options struct {
	// Workers bounds concurrent row evaluation per gather.
	Workers int
	Logger  *slog.Logger
}

// Catalog is the object catalog backing the gather endpoint.
type Catalog struct {
	db      *sql.DB
	workers int
	logger  *slog.Logger

	mu      sync.RWMutex
	dataset starlark.DatasetInfo
	loads   uint64 // bumped by every committed Load
	rows    map[core.ObjectType][]starlark.Row
}

// New creates a catalog. Call Open before use.
func New(opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	return &Catalog{
		workers: opts.Workers,
		logger:  opts.Logger,
		rows:    make(map[core.ObjectType][]starlark.Row),
	}
}

// Open opens the catalog database and applies migrations.
// Use ":memory:" for an in-memory catalog.
func (c *Catalog) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open catalog database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping catalog database: %w", err)
	}
	c.db = db

	if err := c.Migrate(); err != nil {
		_ = db.Close()
		c.db = nil
		return err
	}

	var ds starlark.DatasetInfo
	err = db.QueryRow(`SELECT name, version FROM dataset WHERE id = 1`).Scan(&ds.Name, &ds.Version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		_ = db.Close()
		c.db = nil
		return fmt.Errorf("failed to read dataset: %w", err)
	default:
		c.dataset = ds
	}

	c.logger.Debug("catalog opened", "path", path, "dataset", ds.Name, "version", ds.Version)
	return nil
}

// Migrate runs all pending migrations.
func (c *Catalog) Migrate() error {
	if c.db == nil {
		return fmt.Errorf("database not opened")
	}

	goose.SetBaseFS(migrations)
	goose.SetTableName(migrationsTable)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(c.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Dataset returns the currently loaded dataset.
func (c *Catalog) Dataset() starlark.DatasetInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataset
}

// Load replaces the catalog contents with the CSV seeds of dir. Each
// <object type>.csv becomes one object type, rows numbered from 1 in file
// order. Load reports false without writing when the seeds are unchanged.
func (c *Catalog) Load(ctx context.Context, dir string) (bool, error) {
	if c.db == nil {
		return false, fmt.Errorf("database not opened")
	}

	tables, version, err := readSeeds(dir)
	if err != nil {
		return false, err
	}
	name := filepath.Base(filepath.Clean(dir))

	current := c.Dataset()
	if current.Version == version && current.Name == name {
		c.logger.Debug("dataset unchanged", "dataset", name, "version", version)
		return false, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM objects`); err != nil {
		return false, fmt.Errorf("failed to clear objects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM object_types`); err != nil {
		return false, fmt.Errorf("failed to clear object types: %w", err)
	}

	for _, table := range tables {
		if err := insertTable(ctx, tx, table); err != nil {
			return false, fmt.Errorf("failed to load %s: %w", table.name, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dataset (id, name, version, loaded_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			loaded_at = excluded.loaded_at
	`, name, version, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record dataset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit dataset: %w", err)
	}

	c.mu.Lock()
	c.dataset = starlark.DatasetInfo{Name: name, Version: version}
	c.loads++
	c.rows = make(map[core.ObjectType][]starlark.Row)
	c.mu.Unlock()

	c.logger.Info("dataset loaded", "dataset", name, "version", version, "object_types", len(tables))
	return true, nil
}

func insertTable(ctx context.Context, tx *sql.Tx, table seedTable) error {
	columns, err := json.Marshal(table.columns)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO object_types (name, columns) VALUES (?, ?)`, table.name, string(columns),
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO objects (object_type, number, properties) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, record := range table.rows {
		props := make(map[string]string, len(table.columns))
		for j, col := range table.columns {
			if j < len(record) {
				props[col] = record[j]
			}
		}
		data, err := json.Marshal(props)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, table.name, i+1, string(data)); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return nil
}

// ObjectTypes lists the loaded object types in name order.
func (c *Catalog) ObjectTypes(ctx context.Context) ([]core.ObjectType, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM object_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list object types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var types []core.ObjectType
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan object type: %w", err)
		}
		types = append(types, core.ObjectType(name))
	}
	return types, rows.Err()
}

// Properties lists the property names of an object type in column order.
func (c *Catalog) Properties(ctx context.Context, objectType core.ObjectType) ([]string, error) {
	if c.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	var data string
	err := c.db.QueryRowContext(ctx,
		`SELECT columns FROM object_types WHERE name = ?`, string(objectType)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObjectType, objectType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object type %s: %w", objectType, err)
	}
	var columns []string
	if err := json.Unmarshal([]byte(data), &columns); err != nil {
		return nil, fmt.Errorf("corrupt columns for %s: %w", objectType, err)
	}
	return columns, nil
}

// Rows returns the objects of an object type, cached until the next Load.
// Rows read while a Load commits are returned but not cached.
func (c *Catalog) Rows(ctx context.Context, objectType core.ObjectType) ([]starlark.Row, error) {
	c.mu.RLock()
	cached, ok := c.rows[objectType]
	loads := c.loads
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	out, err := c.readRows(ctx, objectType)
	if err != nil {
		return nil, err
	}
	if !c.storeRows(loads, objectType, out) {
		c.logger.Debug("dataset reloaded while reading rows, not caching", "object_type", objectType)
	}
	return out, nil
}

func (c *Catalog) readRows(ctx context.Context, objectType core.ObjectType) ([]starlark.Row, error) {
	if _, err := c.Properties(ctx, objectType); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT number, properties FROM objects WHERE object_type = ? ORDER BY number`, string(objectType))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", objectType, err)
	}
	defer func() { _ = rows.Close() }()

	var out []starlark.Row
	for rows.Next() {
		var (
			number int
			data   string
		)
		if err := rows.Scan(&number, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", objectType, err)
		}
		var raw map[string]string
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, fmt.Errorf("corrupt row %d of %s: %w", number, objectType, err)
		}
		props := make(map[string]any, len(raw))
		for k, v := range raw {
			props[k] = ParseCell(v)
		}
		out = append(out, starlark.Row{Number: number, Properties: props})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// storeRows caches out unless a Load committed after loads was read.
func (c *Catalog) storeRows(loads uint64, objectType core.ObjectType, out []starlark.Row) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loads != loads {
		return false
	}
	c.rows[objectType] = out
	return true
}

// Gather evaluates a query over every object of an object type, in object
// order. A query that fails as a whole yields an error-flagged result; the
// returned error is reserved for unknown object types and storage failures.
func (c *Catalog) Gather(ctx context.Context, objectType core.ObjectType, query string) (*core.ColumnResult, error) {
	start := time.Now()

	rows, err := c.Rows(ctx, objectType)
	if err != nil {
		metricGathers.WithLabelValues("failed").Inc()
		return nil, err
	}

	ds := c.Dataset()
	exec := starlark.NewExecutionContext(&ds, string(objectType))
	values, err := exec.EvalColumn(ctx, query, rows, c.workers)
	var evalErr *starlark.EvalError
	switch {
	case errors.As(err, &evalErr):
		metricGathers.WithLabelValues("error_result").Inc()
		c.logger.Debug("query failed", "object_type", objectType, "query", query, "class", evalErr.Class, "error", evalErr.Message)
		return &core.ColumnResult{Error: evalErr.Message, ErrorClass: evalErr.Class}, nil
	case err != nil:
		metricGathers.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to evaluate %q: %w", query, err)
	}

	metricGathers.WithLabelValues("ok").Inc()
	metricGatherSeconds.Observe(time.Since(start).Seconds())
	return FormatColumn(values, ds.Name), nil
}

// Fetch implements core.Fetcher for in-process use. Unknown object types
// become error-flagged results.
func (c *Catalog) Fetch(ctx context.Context, objectType core.ObjectType, query string) (*core.ColumnResult, error) {
	res, err := c.Gather(ctx, objectType, query)
	if errors.Is(err, ErrUnknownObjectType) {
		return &core.ColumnResult{Error: err.Error(), ErrorClass: "UnknownObjectType"}, nil
	}
	return res, err
}
