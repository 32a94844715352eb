// Package editable implements inline-editable query cells.
//
// A Slot is one cell. It never fetches anything itself: on commit it decides
// which of its Hooks to call and with what text. Slots live in a Registry,
// which also snapshots committed content for persistence and replays it when
// a page is rebuilt.
package editable

import (
	"strings"
)

// AddLabel is the text shown by a placeholder slot.
const AddLabel = "Add +"

// State is the lifecycle state of a slot.
type State int

const (
	// Placeholder is an empty insertion point.
	Placeholder State = iota
	// Editing is entered on focus and left on commit or cancel.
	Editing
	// Filled holds committed query text.
	Filled
)

func (s State) String() string {
	switch s {
	case Placeholder:
		return "placeholder"
	case Editing:
		return "editing"
	case Filled:
		return "filled"
	default:
		return "unknown"
	}
}

// Hooks are supplied by the owner of a slot.
type Hooks struct {
	// Add creates a new column after slotID and returns the id of the slot
	// that now acts as the insertion point.
	Add func(slotID, typeTag string) string
	// Update sets the query of the column behind slotID.
	Update func(query, slotID, typeTag string)
	// Remove deletes the column behind slotID.
	Remove func(slotID, typeTag string)
}

// Slot is one editable query cell.
type Slot struct {
	reg   *Registry
	id    string
	tag   string
	hooks Hooks

	// guarded by reg.mu
	state      State
	text       string
	content    string
	savedState State
	savedText  string
	live       bool
}

// ID returns the slot id.
func (s *Slot) ID() string { return s.id }

// TypeTag returns the editable type tag the slot belongs to.
func (s *Slot) TypeTag() string { return s.tag }

// State returns the current state.
func (s *Slot) State() State {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.state
}

// Content returns the committed query, empty for placeholders.
func (s *Slot) Content() string {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	return s.content
}

// Display returns the text to show in the cell.
func (s *Slot) Display() string {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if s.state == Placeholder {
		return AddLabel
	}
	return s.text
}

// Focus enters edit mode. It reports false when the slot is already being
// edited or has been deleted.
func (s *Slot) Focus() bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if !s.live || s.state == Editing {
		return false
	}
	s.savedState, s.savedText = s.state, s.text
	if s.state == Placeholder {
		s.text = ""
	}
	s.state = Editing
	return true
}

// SetText replaces the text being edited.
func (s *Slot) SetText(text string) bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if s.state != Editing {
		return false
	}
	s.text = text
	return true
}

// Save commits the edit (confirm key).
func (s *Slot) Save() bool {
	return s.commit()
}

// Blur commits the edit when focus is lost. A cancelled edit has already
// left edit mode, so blurring afterwards does nothing.
func (s *Slot) Blur() bool {
	return s.commit()
}

// Cancel reverts to the content held before Focus (escape key).
func (s *Slot) Cancel() bool {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if s.state != Editing {
		return false
	}
	s.state, s.text = s.savedState, s.savedText
	return true
}

func (s *Slot) commit() bool {
	s.reg.mu.Lock()
	if s.state != Editing {
		s.reg.mu.Unlock()
		return false
	}
	wasPlaceholder := s.savedState == Placeholder
	text := strings.TrimSpace(s.text)
	if wasPlaceholder && text == "" {
		s.state, s.text = Placeholder, ""
		s.reg.mu.Unlock()
		return true
	}
	if text != "" {
		s.state, s.text, s.content = Filled, text, text
	}
	s.reg.mu.Unlock()

	if wasPlaceholder && s.hooks.Add != nil {
		s.hooks.Add(s.id, s.tag)
	}
	if text == "" {
		s.Delete()
		return true
	}
	if s.hooks.Update != nil {
		s.hooks.Update(text, s.id, s.tag)
	}
	return true
}

// Delete removes the column and takes the slot out of its registry. It
// reports false when the slot was already deleted.
func (s *Slot) Delete() bool {
	if !s.reg.unregister(s) {
		return false
	}
	if s.hooks.Remove != nil {
		s.hooks.Remove(s.id, s.tag)
	}
	return true
}
