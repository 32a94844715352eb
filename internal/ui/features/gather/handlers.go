package gather

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/leapstack-labs/leaptable/internal/catalog"
	"github.com/leapstack-labs/leaptable/internal/query"
	"github.com/leapstack-labs/leaptable/internal/starlark"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Source computes columns. It is implemented by *catalog.Catalog.
type Source interface {
	Gather(ctx context.Context, objectType core.ObjectType, query string) (*core.ColumnResult, error)
	ObjectTypes(ctx context.Context) ([]core.ObjectType, error)
	Properties(ctx context.Context, objectType core.ObjectType) ([]string, error)
	Dataset() starlark.DatasetInfo
}

var _ Source = (*catalog.Catalog)(nil)

// IndexResponse lists what can be gathered.
type IndexResponse struct {
	Dataset     string            `json:"dataset"`
	Version     string            `json:"version"`
	ObjectTypes []core.ObjectType `json:"object_types"`
}

// Handlers provides HTTP handlers for the gather feature.
type Handlers struct {
	source Source
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(source Source, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{source: source, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Index lists the dataset and its object types.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	types, err := h.source.ObjectTypes(r.Context())
	if err != nil {
		h.logger.Error("failed to list object types", "error", err)
		writeJSON(w, http.StatusInternalServerError, core.ColumnResult{Error: err.Error(), ErrorClass: "InternalError"})
		return
	}
	ds := h.source.Dataset()
	writeJSON(w, http.StatusOK, IndexResponse{Dataset: ds.Name, Version: ds.Version, ObjectTypes: types})
}

// Autocomplete serves /autocomplete_words.json: the property names of every
// object type, or of ?object_type= only, followed by the query builtins.
func (h *Handlers) Autocomplete(w http.ResponseWriter, r *http.Request) {
	types := []core.ObjectType{core.ObjectType(r.URL.Query().Get("object_type"))}
	if types[0] == "" {
		var err error
		if types, err = h.source.ObjectTypes(r.Context()); err != nil {
			h.logger.Error("failed to list object types", "error", err)
			writeJSON(w, http.StatusInternalServerError, core.ColumnResult{Error: err.Error(), ErrorClass: "InternalError"})
			return
		}
	}

	var words []string
	for _, ot := range types {
		props, err := h.source.Properties(r.Context(), ot)
		switch {
		case errors.Is(err, catalog.ErrUnknownObjectType):
			writeJSON(w, http.StatusNotFound, core.ColumnResult{Error: err.Error(), ErrorClass: "UnknownObjectType"})
			return
		case err != nil:
			h.logger.Error("failed to list properties", "object_type", ot, "error", err)
			writeJSON(w, http.StatusInternalServerError, core.ColumnResult{Error: err.Error(), ErrorClass: "InternalError"})
			return
		}
		for _, p := range props {
			if !slices.Contains(words, p) {
				words = append(words, p)
			}
		}
	}
	words = append(words, starlark.BuiltinNames()...)

	writeJSON(w, http.StatusOK, words)
}

// Gather serves /gather/{objectType}/{query}.json. Both segments are
// escape-encoded. A query that fails to evaluate is answered with 200 and
// an error-flagged result.
func (h *Handlers) Gather(w http.ResponseWriter, r *http.Request) {
	// Take the segments from the escaped path so encoded characters
	// survive routing untouched.
	escaped := r.URL.EscapedPath()
	encoded, ok := strings.CutSuffix(path.Base(escaped), ".json")
	if !ok {
		http.NotFound(w, r)
		return
	}
	name, err := query.Decode(path.Base(path.Dir(escaped)))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, core.ColumnResult{Error: err.Error(), ErrorClass: "DecodeError"})
		return
	}
	ot := core.ObjectType(name)
	q, err := query.Decode(encoded)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, core.ColumnResult{Error: err.Error(), ErrorClass: "DecodeError"})
		return
	}

	res, err := h.source.Gather(r.Context(), ot, q)
	switch {
	case errors.Is(err, catalog.ErrUnknownObjectType):
		writeJSON(w, http.StatusNotFound, core.ColumnResult{Error: err.Error(), ErrorClass: "UnknownObjectType"})
		return
	case err != nil:
		h.logger.Error("gather failed", "object_type", ot, "query", q, "error", err)
		writeJSON(w, http.StatusInternalServerError, core.ColumnResult{Error: err.Error(), ErrorClass: "InternalError"})
		return
	}

	writeJSON(w, http.StatusOK, res)
}
