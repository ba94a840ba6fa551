package experiment

import "github.com/google/uuid"

// maxSelected caps the comparison selection.
const maxSelected = 3

// Selection is a fixed-size ring of up to three experiment ids in selection
// order. The baseline is always the first id in current selection order, so
// evicting the old baseline promotes the oldest remaining selection.
type Selection struct {
	ids []uuid.UUID
}

// NewSelection builds a selection from ids in order, applying the same
// eviction rule as incremental selection.
func NewSelection(ids ...uuid.UUID) *Selection {
	s := &Selection{}
	for _, id := range ids {
		s.Select(id)
	}
	return s
}

// Select adds an experiment to the selection. Selecting a fourth evicts the
// oldest-selected one; re-selecting an already-selected id is a no-op.
func (s *Selection) Select(id uuid.UUID) {
	for _, existing := range s.ids {
		if existing == id {
			return
		}
	}
	s.ids = append(s.ids, id)
	if len(s.ids) > maxSelected {
		s.ids = s.ids[len(s.ids)-maxSelected:]
	}
}

// Deselect removes an experiment from the selection, preserving the order
// of the rest.
func (s *Selection) Deselect(id uuid.UUID) {
	kept := s.ids[:0]
	for _, existing := range s.ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	s.ids = kept
}

// IDs returns the selected ids in selection order.
func (s *Selection) IDs() []uuid.UUID {
	out := make([]uuid.UUID, len(s.ids))
	copy(out, s.ids)
	return out
}

// Baseline returns the current baseline id, if any.
func (s *Selection) Baseline() (uuid.UUID, bool) {
	if len(s.ids) == 0 {
		return uuid.Nil, false
	}
	return s.ids[0], true
}

// Len reports how many experiments are selected.
func (s *Selection) Len() int {
	return len(s.ids)
}
