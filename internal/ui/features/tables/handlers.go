package tables

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/leaptable/internal/table"
	"github.com/leapstack-labs/leaptable/internal/ui/live"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Handlers provides HTTP handlers for the table feature.
type Handlers struct {
	registry *live.Registry
	fixed    []string
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance. Every opened table shows
// the fixed columns after the identity column.
func NewHandlers(registry *live.Registry, fixed []string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{registry: registry, fixed: fixed, logger: logger}
}

func objectType(r *http.Request) core.ObjectType {
	return core.ObjectType(chi.URLParam(r, "objectType"))
}

// errorStatus maps a table error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, table.ErrUnknownTable), errors.Is(err, table.ErrUnknownSlot):
		return http.StatusNotFound
	case errors.Is(err, table.ErrSlotBusy):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// session resolves the live session of r, writing an error response when
// it cannot.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*live.Live, bool) {
	l, err := h.registry.FromRequest(w, r)
	if err != nil {
		h.logger.Error("failed to resolve session", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return l, true
}

// patchView renders objectType and sends it as a signal patch.
func (h *Handlers) patchView(w http.ResponseWriter, r *http.Request, l *live.Live, ot core.ObjectType) {
	view, err := l.Table.Render(r.Context(), ot)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(ViewSignals{Table: view}); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// TablePage builds a new page holding objectType. The previous page of the
// session is persisted first and the stored editables and form states are
// restored into the new one. Extra "column" query parameters become fixed
// columns.
func (h *Handlers) TablePage(w http.ResponseWriter, r *http.Request) {
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	fixed := append(append([]string{}, h.fixed...), r.URL.Query()["column"]...)

	l.Nav.Leave()
	l.Table.BeginPage()
	l.Table.Open(r.Context(), ot, fixed...)
	l.Nav.Arrive()

	view, err := l.Table.Render(r.Context(), ot)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		h.logger.Error("failed to write table page", "error", err)
	}
}

// Navigate persists the page state of the session before the browser
// leaves the page.
func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	l.Nav.Leave()
	w.WriteHeader(http.StatusNoContent)
}

// ViewSSE sends the current view. The page and per_page parameters select
// the page first.
func (h *Handlers) ViewSSE(w http.ResponseWriter, r *http.Request) {
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	if p := r.URL.Query().Get(table.FieldPerPage); p != "" {
		size, err := strconv.Atoi(p)
		if err == nil {
			err = l.Table.SetPageSize(ot, size)
		}
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
	}
	if p := r.URL.Query().Get(table.FieldPage); p != "" {
		if err := l.Table.SetPage(ot, p); err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
	}

	h.patchView(w, r, l, ot)
}

// UpdatesSSE is the long-lived SSE endpoint of a table. The view is pushed
// once on connect and again whenever the table changes.
func (h *Handlers) UpdatesSSE(w http.ResponseWriter, r *http.Request) {
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	if _, err := l.Table.Columns(ot); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	updates := l.Table.Notifier().Subscribe(ot)
	defer l.Table.Notifier().Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)
	push := func() bool {
		view, err := l.Table.Render(r.Context(), ot)
		if err != nil {
			// The page was replaced; this stream is stale.
			_ = sse.ConsoleError(err)
			return false
		}
		if err := sse.MarshalAndPatchSignals(ViewSignals{Table: view}); err != nil {
			_ = sse.ConsoleError(err)
		}
		return true
	}

	if !push() {
		return
	}
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-updates:
			if !open || !push() {
				return
			}
		}
	}
}

// EditColumnSSE confirms new text for an editable header cell.
func (h *Handlers) EditColumnSSE(w http.ResponseWriter, r *http.Request) {
	var signals ColumnSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
		return
	}
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	if err := l.Table.EditColumn(ot, chi.URLParam(r, "slot"), signals.Query); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	h.patchView(w, r, l, ot)
}

// DeleteColumnSSE removes an editable header column.
func (h *Handlers) DeleteColumnSSE(w http.ResponseWriter, r *http.Request) {
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	if err := l.Table.DeleteColumn(ot, chi.URLParam(r, "slot")); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	h.patchView(w, r, l, ot)
}

// SortSSE orders the table by a column.
func (h *Handlers) SortSSE(w http.ResponseWriter, r *http.Request) {
	var signals SortSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
		return
	}
	if signals.Query == "" {
		http.Error(w, "query cannot be empty", http.StatusBadRequest)
		return
	}
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	if err := l.Table.Sort(r.Context(), ot, signals.Query, signals.Ascending); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	h.patchView(w, r, l, ot)
}

// FilterSSE toggles the filter control of a column.
func (h *Handlers) FilterSSE(w http.ResponseWriter, r *http.Request) {
	var signals FilterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
		return
	}
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	if err := l.Table.SetFilter(ot, signals.Query, signals.Enabled); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	h.patchView(w, r, l, ot)
}

// PlotSSE selects a column for a plot axis.
func (h *Handlers) PlotSSE(w http.ResponseWriter, r *http.Request) {
	var signals PlotSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "failed to read signals: "+err.Error(), http.StatusBadRequest)
		return
	}
	l, ok := h.session(w, r)
	if !ok {
		return
	}
	ot := objectType(r)

	if err := l.Table.SetPlot(ot, signals.Field, signals.Query); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	h.patchView(w, r, l, ot)
}
