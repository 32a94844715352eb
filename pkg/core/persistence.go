package core

// Storage is a session-scoped key/value string store.
type Storage interface {
	// Get returns the value stored under key. The bool is false when absent.
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// SortState is the last sort choice made for an ObjectType.
type SortState struct {
	Query     string `json:"query"`
	Ascending bool   `json:"ascending"`
}

// EditableSet maps an editable type tag to its committed query strings in slot order.
type EditableSet map[string][]string

// Clone returns a deep copy of the set.
func (s EditableSet) Clone() EditableSet {
	out := make(EditableSet, len(s))
	for tag, queries := range s {
		out[tag] = append([]string(nil), queries...)
	}
	return out
}

// FormStates maps a form id to its field values.
type FormStates map[string]map[string]string

// Navigator lets the engine hook into page transitions without implementing them.
type Navigator interface {
	OnBeforeNavigate(fn func())
	OnAfterNavigate(fn func())
}
