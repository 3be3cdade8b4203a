package workflow

import (
	"sync"
	"time"

	"github.com/andi/stepline/backend/models"
)

// Session is the workflow engine for a single production order: one editing
// buffer, one committed-step store, exactly one step active at a time. The
// host order form holds this handle and calls it directly; there is no
// ambient global access.
//
// All operations are synchronous and atomic under the session mutex, so a
// mid-edit draft can never interleave with another mutation.
type Session struct {
	OrderID string

	mu       sync.Mutex
	buf      *Buffer
	store    *Store
	lastUsed time.Time
}

// NewSession creates a session for an order with no step yet.
func NewSession(orderID string) *Session {
	return &Session{
		OrderID:  orderID,
		buf:      NewBuffer(),
		store:    NewStore(),
		lastUsed: time.Now(),
	}
}

func (s *Session) touch() {
	s.lastUsed = time.Now()
}

// IdleSince returns when the session was last used.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Editing reports whether a draft is open.
func (s *Session) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Active()
}

// SeedFromTemplate starts a fresh editing draft from a step template.
func (s *Session) SeedFromTemplate(tpl models.StepTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.buf.SeedTemplate(tpl)
}

// ReenterEdit re-opens editing on the committed step.
func (s *Session) ReenterEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	step, err := s.store.ReenterEdit()
	if err != nil {
		return err
	}
	s.buf.Seed(step)
	return nil
}

// Draft returns a copy of the current editing draft, nil when not editing.
func (s *Session) Draft() *models.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Step()
}

// UpdateField edits one field of one draft assignment.
func (s *Session) UpdateField(index int, field models.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.buf.UpdateField(index, field, value)
}

// OverrideStatus manually forces a draft assignment to paused or error.
func (s *Session) OverrideStatus(index int, value models.StatusValue, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.buf.OverrideStatus(index, value, reason)
}

// ClearOverride removes a manual override from a draft assignment.
func (s *Session) ClearOverride(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.buf.ClearOverride(index)
}

// Validate checks whether the draft could be committed.
func (s *Session) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Validate()
}

// Commit finalizes the draft into the committed store and closes editing.
// On failure the committed store is left exactly as it was.
func (s *Session) Commit() (*models.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	step, err := s.buf.Commit()
	if err != nil {
		return nil, err
	}
	s.store.Set(step)
	s.buf.Discard()
	return step, nil
}

// Discard drops the draft, reverting to the committed step (or to no step).
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.buf.Discard()
}

// SaveNote edits a note on whichever step is currently in play: the draft
// while editing, otherwise the committed snapshot.
func (s *Session) SaveNote(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.buf.Active() {
		return s.buf.SaveNote(index, text)
	}
	return s.store.SaveNote(index, text)
}

// StepData returns a copy of the committed step, nil when none exists.
func (s *Session) StepData() *models.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get()
}

// SetStepData installs a committed step directly, e.g. when the host order
// form loads a previously persisted order.
func (s *Session) SetStepData(step *models.Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.store.Set(step)
}

// MachineIDs returns the committed assignments' machine ids in order.
func (s *Session) MachineIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.MachineIDs()
}

// ClearSteps drops both the draft and the committed step, e.g. when the
// host switches orders.
func (s *Session) ClearSteps() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.buf.Discard()
	s.store.Clear()
}
