// Package router sets up HTTP routes for the server.
package router

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gatherFeature "github.com/leapstack-labs/leaptable/internal/ui/features/gather"
	tablesFeature "github.com/leapstack-labs/leaptable/internal/ui/features/tables"
	"github.com/leapstack-labs/leaptable/internal/ui/live"
)

// Deps holds what the feature routes need.
type Deps struct {
	Source   gatherFeature.Source
	Registry *live.Registry
	// Fixed columns shown on every opened table.
	Fixed  []string
	Logger *slog.Logger
}

// SetupRoutes configures all routes for the server.
func SetupRoutes(router chi.Router, deps Deps) error {
	router.Handle("/metrics", promhttp.Handler())

	if err := gatherFeature.SetupRoutes(router, deps.Source, deps.Logger); err != nil {
		return err
	}

	if deps.Registry != nil {
		if err := tablesFeature.SetupRoutes(router, deps.Registry, deps.Fixed, deps.Logger); err != nil {
			return err
		}
	}

	return nil
}
