// Package formstate persists the field values of auto-restoring forms
// across navigations.
package formstate

import (
	"fmt"
	"maps"
	"sync"

	"github.com/leapstack-labs/leaptable/internal/persist"
)

// Form is a set of named fields that can be captured and restored.
type Form interface {
	ID() string
	// Values returns the fields that currently carry a value.
	Values() map[string]string
	// Restore applies stored values. Fields absent from values keep theirs.
	Restore(values map[string]string)
}

// Registry holds the forms of the current page.
type Registry struct {
	mu    sync.Mutex
	forms map[string]Form
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{forms: make(map[string]Form)}
}

// Register opts a form into auto-persistence, replacing a form with the
// same id.
func (r *Registry) Register(f Form) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.forms[f.ID()]; !ok {
		r.order = append(r.order, f.ID())
	}
	r.forms[f.ID()] = f
}

// Clear drops every registered form.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms = make(map[string]Form)
	r.order = nil
}

// Get returns the registered form with id.
func (r *Registry) Get(id string) (Form, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.forms[id]
	return f, ok
}

func (r *Registry) list() []Form {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Form, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.forms[id])
	}
	return out
}

// Persist merges the values of every registered form into the stored form
// states. Forms stored earlier but not registered now are kept.
func (r *Registry) Persist(port *persist.Port) error {
	states, err := port.FormStates()
	if err != nil {
		return fmt.Errorf("loading form states: %w", err)
	}
	for _, f := range r.list() {
		states[f.ID()] = f.Values()
	}
	if err := port.SaveFormStates(states); err != nil {
		return fmt.Errorf("saving form states: %w", err)
	}
	return nil
}

// Restore hands each registered form its stored values.
func (r *Registry) Restore(port *persist.Port) error {
	states, err := port.FormStates()
	if err != nil {
		return fmt.Errorf("loading form states: %w", err)
	}
	for _, f := range r.list() {
		if values, ok := states[f.ID()]; ok {
			f.Restore(values)
		}
	}
	return nil
}

// Values is a map backed Form.
type Values struct {
	id string

	mu     sync.RWMutex
	fields map[string]string
}

// NewValues creates an empty form.
func NewValues(id string) *Values {
	return &Values{id: id, fields: make(map[string]string)}
}

// ID implements Form.
func (v *Values) ID() string { return v.id }

// Get returns a field value.
func (v *Values) Get(name string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.fields[name]
	return val, ok
}

// Set sets a field. An empty value clears it.
func (v *Values) Set(name, value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if value == "" {
		delete(v.fields, name)
		return
	}
	v.fields[name] = value
}

// Values implements Form.
func (v *Values) Values() map[string]string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.fields)
}

// Restore implements Form. Empty stored values are ignored.
func (v *Values) Restore(values map[string]string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for name, val := range values {
		if val != "" {
			v.fields[name] = val
		}
	}
}
