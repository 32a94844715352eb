// Package gather serves query columns computed by the object catalog.
package gather

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the gather feature routes.
func SetupRoutes(router chi.Router, source Source, logger *slog.Logger) error {
	handlers := NewHandlers(source, logger)

	router.Get("/gather", handlers.Index)
	router.Get("/gather/{objectType}/{file}", handlers.Gather)
	router.Get("/autocomplete_words.json", handlers.Autocomplete)

	return nil
}
