// Package tables provides the per-session table API.
package tables

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leaptable/internal/ui/live"
)

// SetupRoutes registers the table feature routes.
func SetupRoutes(router chi.Router, registry *live.Registry, fixed []string, logger *slog.Logger) error {
	handlers := NewHandlers(registry, fixed, logger)

	router.Post("/navigate", handlers.Navigate)

	router.Route("/tables/{objectType}", func(r chi.Router) {
		r.Get("/", handlers.TablePage)
		r.Get("/view", handlers.ViewSSE)
		r.Get("/updates", handlers.UpdatesSSE)
		r.Post("/columns/{slot}", handlers.EditColumnSSE)
		r.Delete("/columns/{slot}", handlers.DeleteColumnSSE)
		r.Post("/sort", handlers.SortSSE)
		r.Post("/filters", handlers.FilterSSE)
		r.Post("/plot", handlers.PlotSSE)
	})

	return nil
}
