package workflow

import (
	"github.com/andi/stepline/backend/models"
)

// Store holds the last-committed step: the authoritative value the parent
// order persists and the value external table/print/export views read
// machine identifiers from. Those views are pure consumers; only commit
// writes here. The store never aliases the buffer's assignments.
type Store struct {
	step *models.Step
}

// NewStore creates an empty committed-step store.
func NewStore() *Store {
	return &Store{}
}

// Get returns a copy of the committed step, or nil when none exists.
func (s *Store) Get() *models.Step {
	return s.step.Clone()
}

// Set replaces the committed step with a copy of the given one.
func (s *Store) Set(step *models.Step) {
	s.step = step.Clone()
}

// Clear drops the committed step.
func (s *Store) Clear() {
	s.step = nil
}

// Empty reports whether a committed step exists.
func (s *Store) Empty() bool {
	return s.step == nil
}

// ReenterEdit returns a deep copy suitable for seeding the buffer, so
// buffer edits can never mutate the committed snapshot in place.
func (s *Store) ReenterEdit() (*models.Step, error) {
	if s.step == nil {
		return nil, ErrNoCommittedStep
	}
	return s.step.Clone(), nil
}

// SaveNote edits one assignment's note directly on the committed snapshot.
// Notes may change without entering full edit mode; status derivation is
// not involved.
func (s *Store) SaveNote(index int, text string) error {
	if s.step == nil {
		return ErrNoCommittedStep
	}
	if index < 0 || index >= len(s.step.Assignments) {
		return &FieldError{Index: index, Field: models.FieldNote, Msg: "no such assignment"}
	}
	s.step.Assignments[index].Note = text
	return nil
}

// MachineIDs returns the committed assignments' machine ids in order.
func (s *Store) MachineIDs() []string {
	return s.step.MachineIDs()
}
