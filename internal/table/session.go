// Package table wires the column cache, filter evaluator, order engine,
// pagination view and editable header cells into one per-session context.
//
// A Session owns all mutable table state of one user. Nothing is global:
// two sessions never share caches, orderings or slots.
package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leaptable/internal/column"
	"github.com/leapstack-labs/leaptable/internal/editable"
	"github.com/leapstack-labs/leaptable/internal/filter"
	"github.com/leapstack-labs/leaptable/internal/formstate"
	"github.com/leapstack-labs/leaptable/internal/notifier"
	"github.com/leapstack-labs/leaptable/internal/order"
	"github.com/leapstack-labs/leaptable/internal/page"
	"github.com/leapstack-labs/leaptable/internal/persist"
	"github.com/leapstack-labs/leaptable/internal/query"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

var (
	// ErrUnknownTable is returned for tables not opened on the current page.
	ErrUnknownTable = errors.New("table is not open")
	// ErrUnknownSlot is returned for column slots that do not exist.
	ErrUnknownSlot = errors.New("no such column slot")
	// ErrSlotBusy is returned when a slot is already being edited.
	ErrSlotBusy = errors.New("column slot is being edited")
)

// Table form fields.
const (
	FieldPage    = "page"
	FieldPerPage = "per_page"
)

// Config configures a Session.
type Config struct {
	// Fetcher retrieves columns. Required for anything to load.
	Fetcher core.Fetcher
	// Storage is the session storage. Defaults to memory.
	Storage core.Storage
	// Notifier receives table change pings. Defaults to a private one.
	Notifier *notifier.Notifier
	// IdentityColumn sizes tables. Defaults to filter.DefaultIdentityColumn.
	IdentityColumn string
	// PageSize is the initial page size of every table.
	PageSize int
	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// Column is one header column.
type Column struct {
	SlotID   string `json:"slot"`
	Query    string `json:"query"`
	Editable bool   `json:"editable"`
}

// ColumnView is a header column as displayed.
type ColumnView struct {
	Column
	Display  string   `json:"display"`
	State    string   `json:"state,omitempty"`
	Controls Controls `json:"controls"`
}

// View is a rendered table.
type View struct {
	page.Page
	ObjectType core.ObjectType `json:"objectType"`
	Columns    []ColumnView    `json:"columns"`
	Busy       bool            `json:"busy"`
	Sort       *core.SortState `json:"sort,omitempty"`
	PageSizes  []int           `json:"pageSizes"`
}

type tableState struct {
	columns []Column
	form    *formstate.Values
}

// Session is the table context of one user.
type Session struct {
	logger   *slog.Logger
	cache    *column.Cache
	filters  *filter.Evaluator
	orders   *order.Engine
	view     *page.View
	slots    *editable.Registry
	forms    *formstate.Registry
	port     *persist.Port
	notifier *notifier.Notifier
	pageSize int

	mu      sync.Mutex
	tables  map[core.ObjectType]*tableState
	busy    map[core.ObjectType]bool
	dataset string
}

// New creates a session.
func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	storage := cfg.Storage
	if storage == nil {
		storage = persist.NewMemoryStorage()
	}
	n := cfg.Notifier
	if n == nil {
		n = notifier.New()
	}
	size := cfg.PageSize
	if size <= 0 {
		size = page.DefaultPageSize
	}

	s := &Session{
		logger:   logger,
		port:     persist.NewPort(storage, logger),
		notifier: n,
		pageSize: size,
		slots:    editable.NewRegistry(),
		forms:    formstate.NewRegistry(),
		tables:   make(map[core.ObjectType]*tableState),
		busy:     make(map[core.ObjectType]bool),
	}
	s.cache = column.New(cfg.Fetcher, column.Options{
		Busy:    s.onBusy,
		Failure: s.onFailure,
		Logger:  logger,
	})
	s.filters = filter.New(s.cache, cfg.IdentityColumn)
	s.orders = order.New(s.cache, s.port, order.Options{OnRender: n.Broadcast, Logger: logger})
	s.view = page.New(s.cache, s.filters, s.orders, page.Options{
		PageSize: size,
		OnRender: n.Broadcast,
		Logger:   logger,
	})
	s.cache.OnArrival(s.onArrival)
	return s
}

// Cache returns the column cache of the session.
func (s *Session) Cache() *column.Cache { return s.cache }

// Orders returns the order engine of the session.
func (s *Session) Orders() *order.Engine { return s.orders }

// Notifier returns the notifier pinged on table changes.
func (s *Session) Notifier() *notifier.Notifier { return s.notifier }

// IdentityColumn returns the row number query.
func (s *Session) IdentityColumn() string { return s.filters.IdentityColumn() }

func (s *Session) onArrival(objectType core.ObjectType, q string, res *core.ColumnResult) {
	if q == s.filters.IdentityColumn() && !res.Failed() {
		s.orders.Order(objectType, res.Len())
	}
	s.notifier.Broadcast(objectType)
}

func (s *Session) onBusy(objectType core.ObjectType, busy bool) {
	s.mu.Lock()
	if busy {
		s.busy[objectType] = true
	} else {
		delete(s.busy, objectType)
	}
	s.mu.Unlock()
	s.notifier.Broadcast(objectType)
}

func (s *Session) onFailure(objectType core.ObjectType, q string, err error) {
	s.logger.Warn("column unavailable", "object_type", objectType, "query", q, "error", err)
	s.notifier.Broadcast(objectType)
}

// request asks for a column and materializes the ordering when the identity
// column is already cached.
func (s *Session) request(ctx context.Context, objectType core.ObjectType, q string) {
	res := s.cache.Request(ctx, objectType, q, nil)
	if res != nil && q == s.filters.IdentityColumn() && !res.Failed() {
		s.orders.Order(objectType, res.Len())
	}
}

// BeginPage tears down the header cells and forms of the previous page.
// Cached columns and orderings survive.
func (s *Session) BeginPage() {
	s.mu.Lock()
	s.tables = make(map[core.ObjectType]*tableState)
	s.mu.Unlock()
	s.slots.Clear()
	s.forms.Clear()
}

func formID(objectType core.ObjectType) string {
	return "table-" + string(objectType)
}

// Open adds a table to the current page. Its header holds the identity
// column, the given fixed columns and one editable placeholder.
func (s *Session) Open(ctx context.Context, objectType core.ObjectType, fixed ...string) {
	identity := s.filters.IdentityColumn()

	form := formstate.NewValues(formID(objectType))
	form.Set(FieldPerPage, strconv.Itoa(s.pageSize))
	form.Set(FieldPage, "1")

	cols := []Column{{SlotID: uuid.NewString(), Query: identity}}
	for _, q := range fixed {
		if q != "" && q != identity {
			cols = append(cols, Column{SlotID: uuid.NewString(), Query: q})
		}
	}
	placeholder := Column{SlotID: uuid.NewString(), Editable: true}
	cols = append(cols, placeholder)

	s.mu.Lock()
	s.tables[objectType] = &tableState{columns: cols, form: form}
	s.mu.Unlock()

	s.forms.Register(form)
	s.slots.Register(placeholder.SlotID, string(objectType), s.HeaderHooks(objectType))

	s.logger.Debug("table opened", "object_type", objectType, "columns", len(cols))
	for _, c := range cols {
		if c.Query != "" {
			s.request(ctx, objectType, c.Query)
		}
	}
	s.notifier.Broadcast(objectType)
}

func (s *Session) table(objectType core.ObjectType) (*tableState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tables[objectType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, objectType)
	}
	return st, nil
}

// HeaderHooks returns the editable hooks that manage the header columns of
// objectType.
func (s *Session) HeaderHooks(objectType core.ObjectType) editable.Hooks {
	return editable.Hooks{
		Add: func(slotID, typeTag string) string {
			id := uuid.NewString()
			s.mu.Lock()
			if st, ok := s.tables[objectType]; ok {
				pos := len(st.columns)
				if i := columnIndex(st.columns, slotID); i >= 0 {
					pos = i + 1
				}
				st.columns = slices.Insert(st.columns, pos, Column{SlotID: id, Editable: true})
			}
			s.mu.Unlock()
			s.slots.RegisterAfter(slotID, id, typeTag, s.HeaderHooks(objectType))
			s.notifier.Broadcast(objectType)
			return id
		},
		Update: func(q, slotID, _ string) {
			s.mu.Lock()
			found := false
			if st, ok := s.tables[objectType]; ok {
				if i := columnIndex(st.columns, slotID); i >= 0 {
					st.columns[i].Query = q
					found = true
				}
			}
			s.mu.Unlock()
			if !found {
				s.logger.Debug("update for unknown column", "object_type", objectType, "slot", slotID)
				return
			}
			s.request(context.Background(), objectType, q)
			s.notifier.Broadcast(objectType)
		},
		Remove: func(slotID, _ string) {
			s.mu.Lock()
			if st, ok := s.tables[objectType]; ok {
				if i := columnIndex(st.columns, slotID); i >= 0 {
					if q := st.columns[i].Query; q != "" && !hasQuery(st.columns, q, i) {
						st.form.Set(FilterField(q), "")
					}
					st.columns = slices.Delete(st.columns, i, i+1)
				}
			}
			s.mu.Unlock()
			s.notifier.Broadcast(objectType)
		},
	}
}

func columnIndex(cols []Column, slotID string) int {
	return slices.IndexFunc(cols, func(c Column) bool { return c.SlotID == slotID })
}

// hasQuery reports whether a column other than skip shows q.
func hasQuery(cols []Column, q string, skip int) bool {
	for i, c := range cols {
		if i != skip && c.Query == q {
			return true
		}
	}
	return false
}

// Columns returns the header columns of objectType in display order.
func (s *Session) Columns(objectType core.ObjectType) ([]Column, error) {
	st, err := s.table(objectType)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(st.columns), nil
}

func (s *Session) slot(objectType core.ObjectType, slotID string) (*editable.Slot, error) {
	slot, ok := s.slots.Slot(slotID)
	if !ok || slot.TypeTag() != string(objectType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	return slot, nil
}

// EditColumn runs a complete edit of an editable header cell: focus, type
// text, confirm. Empty text deletes a filled column.
func (s *Session) EditColumn(objectType core.ObjectType, slotID, text string) error {
	slot, err := s.slot(objectType, slotID)
	if err != nil {
		return err
	}
	if !slot.Focus() {
		return fmt.Errorf("%w: %s", ErrSlotBusy, slotID)
	}
	slot.SetText(text)
	slot.Save()
	return nil
}

// DeleteColumn removes an editable header column.
func (s *Session) DeleteColumn(objectType core.ObjectType, slotID string) error {
	slot, err := s.slot(objectType, slotID)
	if err != nil {
		return err
	}
	if slot.State() == editable.Placeholder {
		return fmt.Errorf("%w: %s is a placeholder", ErrUnknownSlot, slotID)
	}
	slot.Delete()
	return nil
}

// SetFilter toggles the filter control of q. Only columns that can be used
// as a filter take part in filtering; the toggle of any other column is
// kept but has no effect.
func (s *Session) SetFilter(objectType core.ObjectType, q string, enabled bool) error {
	st, err := s.table(objectType)
	if err != nil {
		return err
	}
	value := ""
	if enabled {
		value = checkedValue
	}
	st.form.Set(FilterField(q), value)
	s.notifier.Broadcast(objectType)
	return nil
}

// SetPlot selects q for a plot axis field. The array plot selection and the
// x/y selections exclude each other.
func (s *Session) SetPlot(objectType core.ObjectType, field, q string) error {
	st, err := s.table(objectType)
	if err != nil {
		return err
	}
	switch field {
	case FieldPlotArray:
		st.form.Set(FieldPlotX, "")
		st.form.Set(FieldPlotY, "")
	case FieldPlotX, FieldPlotY:
		st.form.Set(FieldPlotArray, "")
	default:
		return fmt.Errorf("unknown plot field %q", field)
	}
	st.form.Set(field, query.Encode(q))
	s.notifier.Broadcast(objectType)
	return nil
}

// Sort orders objectType by q.
func (s *Session) Sort(ctx context.Context, objectType core.ObjectType, q string, ascending bool) error {
	if _, err := s.table(objectType); err != nil {
		return err
	}
	return s.orders.ReorderBy(ctx, objectType, q, ascending)
}

// SetPage selects a page. The value is kept as given and parsed on render.
func (s *Session) SetPage(objectType core.ObjectType, p string) error {
	st, err := s.table(objectType)
	if err != nil {
		return err
	}
	st.form.Set(FieldPage, p)
	s.notifier.Broadcast(objectType)
	return nil
}

// SetPageSize sets the number of rows per page.
func (s *Session) SetPageSize(objectType core.ObjectType, size int) error {
	if size <= 0 {
		return fmt.Errorf("invalid page size %d", size)
	}
	st, err := s.table(objectType)
	if err != nil {
		return err
	}
	st.form.Set(FieldPerPage, strconv.Itoa(size))
	s.notifier.Broadcast(objectType)
	return nil
}

// Busy reports whether objectType has fetches in flight.
func (s *Session) Busy(objectType core.ObjectType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy[objectType]
}

// enabledFilters returns the checked filter queries whose columns can be
// used as a filter.
func (s *Session) enabledFilters(objectType core.ObjectType, cols []Column, values map[string]string) []string {
	var out []string
	for _, c := range cols {
		if c.Query == "" || slices.Contains(out, c.Query) {
			continue
		}
		if values[FilterField(c.Query)] != checkedValue {
			continue
		}
		res, ok := s.cache.Get(objectType, c.Query)
		if !ok || res.Failed() || !res.CanUseAsFilter {
			continue
		}
		out = append(out, c.Query)
	}
	return out
}

// Render builds the current view of objectType.
func (s *Session) Render(ctx context.Context, objectType core.ObjectType) (View, error) {
	st, err := s.table(objectType)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	cols := slices.Clone(st.columns)
	busy := s.busy[objectType]
	s.mu.Unlock()
	values := st.form.Values()

	queries := make([]string, len(cols))
	for i, c := range cols {
		queries[i] = c.Query
	}
	size, _ := strconv.Atoi(values[FieldPerPage])

	v := View{
		Page: s.view.Render(ctx, objectType, page.Request{
			Columns:  queries,
			PageSize: size,
			Page:     values[FieldPage],
			Filters:  s.enabledFilters(objectType, cols, values),
		}),
		ObjectType: objectType,
		Busy:       busy,
		PageSizes:  page.PageSizes,
	}
	active, sorted := s.orders.Active(objectType)
	if sorted {
		v.Sort = &active
	}

	for _, c := range cols {
		var res *core.ColumnResult
		if c.Query != "" {
			res, _ = s.cache.Get(objectType, c.Query)
		}
		cv := ColumnView{Column: c, Display: c.Query, Controls: ControlsFor(res, c.Query, true)}
		if c.Editable {
			if slot, ok := s.slots.Slot(c.SlotID); ok {
				cv.Display = slot.Display()
				cv.State = slot.State().String()
				cv.Controls.Delete = slot.State() != editable.Placeholder
			}
		}
		cv.Controls.apply(values, c.Query, active, sorted)
		v.Columns = append(v.Columns, cv)
	}
	return v, nil
}

// Wait blocks until every header column of objectType has resolved and the
// ordering exists.
func (s *Session) Wait(ctx context.Context, objectType core.ObjectType) error {
	cols, err := s.Columns(objectType)
	if err != nil {
		return err
	}
	identity := s.filters.IdentityColumn()
	res, err := s.cache.Await(ctx, objectType, identity)
	if err != nil {
		return err
	}
	if !res.Failed() {
		s.orders.Order(objectType, res.Len())
	}
	for _, c := range cols {
		if c.Query == "" || c.Query == identity {
			continue
		}
		if _, err := s.cache.Await(ctx, objectType, c.Query); err != nil {
			return err
		}
	}
	return nil
}

// Dataset returns the id of the dataset the caches belong to.
func (s *Session) Dataset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// UseDataset switches to dataset id. When id differs from the current one
// every cached column and ordering is discarded and the open tables are
// fetched again. It reports whether anything was reset.
func (s *Session) UseDataset(ctx context.Context, id string) bool {
	s.mu.Lock()
	if id == s.dataset {
		s.mu.Unlock()
		return false
	}
	prev := s.dataset
	s.dataset = id
	open := make(map[core.ObjectType][]string, len(s.tables))
	for ot, st := range s.tables {
		for _, c := range st.columns {
			if c.Query != "" {
				open[ot] = append(open[ot], c.Query)
			}
		}
	}
	s.mu.Unlock()

	s.logger.Info("dataset changed, discarding cached columns", "from", prev, "to", id)
	s.cache.ResetAll()
	s.orders.ResetAll()
	for ot, queries := range open {
		for _, q := range queries {
			s.request(ctx, ot, q)
		}
	}
	s.notifier.Broadcast(notifier.All)
	return true
}

// Persist stores the editable set and form states of the current page.
func (s *Session) Persist() error {
	if s.slots.Len() > 0 {
		previous, err := s.port.EditableSet()
		if err != nil {
			return fmt.Errorf("loading editables: %w", err)
		}
		if err := s.port.SaveEditableSet(s.slots.Snapshot(previous)); err != nil {
			return fmt.Errorf("saving editables: %w", err)
		}
	}
	return s.forms.Persist(s.port)
}

// Restore replays the stored editable set and form states into the current
// page. It must run once after every table of the page has been opened.
func (s *Session) Restore() error {
	set, err := s.port.EditableSet()
	if err != nil {
		return fmt.Errorf("loading editables: %w", err)
	}
	s.slots.Restore(set)
	if err := s.forms.Restore(s.port); err != nil {
		return err
	}
	s.notifier.Broadcast(notifier.All)
	return nil
}

// Attach persists state before nav leaves a page and restores it once the
// next page is built.
func (s *Session) Attach(nav core.Navigator) {
	nav.OnBeforeNavigate(func() {
		if err := s.Persist(); err != nil {
			s.logger.Error("failed to persist table state", "error", err)
		}
	})
	nav.OnAfterNavigate(func() {
		if err := s.Restore(); err != nil {
			s.logger.Error("failed to restore table state", "error", err)
		}
	})
}
