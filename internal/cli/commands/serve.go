package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaptable/internal/cli/config"
	"github.com/leapstack-labs/leaptable/internal/ui"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Fixed []string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the column server",
		Long: `Start the HTTP server.

The server provides:
- GET /gather/{objectType}/{query}.json, one evaluated column
- The per-session table API under /tables/{objectType}
- Prometheus metrics on /metrics

CSV files in the data directory are loaded into the catalog on start and
reloaded when they change.`,
		Example: `  # Serve the data directory on the default port
  leaptable serve

  # Custom port, no file watching
  leaptable serve --port 3000 --watch=false

  # Show Mvir on every opened table
  leaptable serve --fixed Mvir`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().Int("port", 0, fmt.Sprintf("Port to serve on (default: %d)", config.DefaultPort))
	cmd.Flags().Bool("watch", true, "Reload the catalog when data files change")
	cmd.Flags().String("session-secret", "", "Secret signing the session cookie")
	cmd.Flags().Duration("session-ttl", 0, "Idle time before a live session is evicted")
	cmd.Flags().Int("max-sessions", 0, "Maximum number of live sessions")
	cmd.Flags().StringArrayVar(&opts.Fixed, "fixed", nil, "Column shown on every opened table (repeatable)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := openCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cat.Close() }()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if cfg.UI.SessionSecret == config.DefaultSessionSecret {
		logger.Warn("using the default session secret, set ui.session_secret outside development")
	}

	server := ui.NewServer(ui.Config{
		Catalog:        cat,
		Store:          store,
		DataDir:        cfg.DataDir,
		Port:           cfg.UI.Port,
		Watch:          cfg.UI.Watch,
		SessionSecret:  cfg.UI.SessionSecret,
		SessionTTL:     cfg.UI.SessionTTL,
		MaxSessions:    cfg.UI.MaxSessions,
		IdentityColumn: cfg.IdentityColumn,
		PageSize:       cfg.PageSize,
		FixedColumns:   opts.Fixed,
		Logger:         logger,
	})

	ds := cat.Dataset()
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving dataset %s (%s) on http://localhost:%d\n", ds.Name, ds.Version, cfg.UI.Port)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	start := time.Now()
	err = server.Serve(ctx)
	logger.Info("server stopped", "uptime", time.Since(start).Round(time.Second))
	return err
}
