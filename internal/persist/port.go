// Package persist provides typed access to session-scoped key/value storage.
//
// Each persisted structure has its own key and JSON codec. Values that fail
// to decode are treated as absent, so a corrupted entry degrades to empty
// state instead of breaking page construction.
package persist

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Storage keys.
const (
	KeyEditables  = "editables"
	KeyFormStates = "formstates"
	keySortPrefix = "last_sort_"
)

// SortKey returns the storage key of the last sort choice for objectType.
func SortKey(objectType core.ObjectType) string {
	return keySortPrefix + string(objectType)
}

// Port serializes engine state into a core.Storage.
type Port struct {
	storage core.Storage
	logger  *slog.Logger
}

// NewPort wraps storage. A nil logger discards output.
func NewPort(storage core.Storage, logger *slog.Logger) *Port {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Port{storage: storage, logger: logger}
}

// load decodes the JSON value under key into v. It reports false when the
// key is absent or the stored value is malformed.
func (p *Port) load(key string, v any) (bool, error) {
	raw, ok, err := p.storage.Get(key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		p.logger.Warn("ignoring malformed persisted state", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (p *Port) save(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := p.storage.Set(key, string(raw)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// EditableSet returns the persisted editable set, or an empty set.
func (p *Port) EditableSet() (core.EditableSet, error) {
	set := core.EditableSet{}
	ok, err := p.load(KeyEditables, &set)
	if err != nil {
		return nil, err
	}
	if !ok || set == nil {
		return core.EditableSet{}, nil
	}
	return set, nil
}

// SaveEditableSet persists the editable set.
func (p *Port) SaveEditableSet(set core.EditableSet) error {
	if set == nil {
		set = core.EditableSet{}
	}
	return p.save(KeyEditables, set)
}

// SortState returns the last sort choice for objectType.
func (p *Port) SortState(objectType core.ObjectType) (core.SortState, bool, error) {
	var st core.SortState
	ok, err := p.load(SortKey(objectType), &st)
	if err != nil || !ok {
		return core.SortState{}, false, err
	}
	return st, true, nil
}

// SaveSortState persists the last sort choice for objectType.
func (p *Port) SaveSortState(objectType core.ObjectType, st core.SortState) error {
	return p.save(SortKey(objectType), st)
}

// FormStates returns all persisted form values, or an empty map.
func (p *Port) FormStates() (core.FormStates, error) {
	states := core.FormStates{}
	ok, err := p.load(KeyFormStates, &states)
	if err != nil {
		return nil, err
	}
	if !ok || states == nil {
		return core.FormStates{}, nil
	}
	return states, nil
}

// SaveFormStates persists all form values.
func (p *Port) SaveFormStates(states core.FormStates) error {
	if states == nil {
		states = core.FormStates{}
	}
	return p.save(KeyFormStates, states)
}
