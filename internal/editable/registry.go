package editable

import (
	"slices"
	"sync"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Registry maps slot ids to live slots, in display order.
type Registry struct {
	mu    sync.Mutex
	slots map[string]*Slot
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]*Slot)}
}

// Register adds a placeholder slot at the end. Registering an id that is
// already live replaces the old slot.
func (r *Registry) Register(id, typeTag string, hooks Hooks) *Slot {
	return r.RegisterAfter("", id, typeTag, hooks)
}

// RegisterAfter adds a placeholder slot right after the slot with id
// after, or at the end when after is not live.
func (r *Registry) RegisterAfter(after, id, typeTag string, hooks Hooks) *Slot {
	s := &Slot{reg: r, id: id, tag: typeTag, hooks: hooks, state: Placeholder, live: true}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.slots[id]; ok {
		old.live = false
		r.order = slices.DeleteFunc(r.order, func(x string) bool { return x == id })
	}
	r.slots[id] = s

	pos := len(r.order)
	if after != "" {
		if i := slices.Index(r.order, after); i >= 0 {
			pos = i + 1
		}
	}
	r.order = slices.Insert(r.order, pos, id)
	return s
}

func (r *Registry) unregister(s *Slot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !s.live {
		return false
	}
	s.live = false
	if r.slots[s.id] == s {
		delete(r.slots, s.id)
		r.order = slices.DeleteFunc(r.order, func(x string) bool { return x == s.id })
	}
	return true
}

// Slot returns the live slot with id.
func (r *Registry) Slot(id string) (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	return s, ok
}

// Slots returns the live slots in display order.
func (r *Registry) Slots() []*Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Slot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.slots[id])
	}
	return out
}

// Len returns the number of live slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Clear drops every slot without calling hooks, as when a page is torn down.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		s.live = false
	}
	r.slots = make(map[string]*Slot)
	r.order = nil
}

// Snapshot groups the committed content of live slots by type tag, in slot
// order. Groups of previous whose type tag has no live slot are carried over.
func (r *Registry) Snapshot(previous core.EditableSet) core.EditableSet {
	r.mu.Lock()
	out := core.EditableSet{}
	for _, id := range r.order {
		s := r.slots[id]
		group := out[s.tag]
		if group == nil {
			group = []string{}
		}
		if s.content != "" {
			group = append(group, s.content)
		}
		out[s.tag] = group
	}
	r.mu.Unlock()

	for tag, queries := range previous {
		if _, ok := out[tag]; !ok {
			out[tag] = append([]string(nil), queries...)
		}
	}
	return out
}

// Restore replays set into the placeholder slots that are live when it is
// called. For every stored query the current insertion point is filled and
// updated, then Add yields the next insertion point.
func (r *Registry) Restore(set core.EditableSet) {
	r.mu.Lock()
	var targets []*Slot
	for _, id := range r.order {
		s := r.slots[id]
		if s.state != Placeholder {
			continue
		}
		if len(set[s.tag]) > 0 {
			targets = append(targets, s)
		}
	}
	r.mu.Unlock()

	for _, s := range targets {
		cursor := s.id
		for _, q := range set[s.tag] {
			r.fill(cursor, q)
			if s.hooks.Update != nil {
				s.hooks.Update(q, cursor, s.tag)
			}
			if s.hooks.Add == nil {
				break
			}
			cursor = s.hooks.Add(cursor, s.tag)
		}
	}
}

func (r *Registry) fill(id, query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok || s.state != Placeholder {
		return
	}
	s.state, s.text, s.content = Filled, query, query
}
