package workflow

import (
	"time"

	"github.com/andi/stepline/backend/models"
	"github.com/andi/stepline/backend/status"
)

// Buffer holds the in-edit draft of a step, separate from the committed
// snapshot. All mutation of a step during an editing session goes through
// the buffer; the committed store is only ever replaced wholesale by a
// successful commit.
type Buffer struct {
	step *models.Step
}

// NewBuffer creates an empty editing buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Active reports whether a draft is currently being edited.
func (b *Buffer) Active() bool {
	return b.step != nil
}

// Step returns a copy of the current draft, or nil when no draft is active.
func (b *Buffer) Step() *models.Step {
	return b.step.Clone()
}

// SeedTemplate installs a fresh draft from a step template. The first
// machine in the pipeline starts pending, all others none.
func (b *Buffer) SeedTemplate(tpl models.StepTemplate) {
	step := &models.Step{
		Name:        tpl.Name,
		TemplateID:  tpl.ID,
		Assignments: make([]models.MachineAssignment, len(tpl.Machines)),
	}
	for i, m := range tpl.Machines {
		step.Assignments[i] = models.MachineAssignment{
			MachineID:   m.MachineID,
			MachineType: m.MachineType,
			MachineName: m.MachineName,
			Status:      models.Derived(models.StatusNone),
		}
	}
	if len(step.Assignments) > 0 {
		step.Assignments[0].Status = models.Derived(models.StatusPending)
	}
	b.step = step
}

// Seed installs a previously committed step as the draft. Existing statuses
// are preserved; each assignment is re-derived once to normalize drift such
// as externally reformatted timestamps.
func (b *Buffer) Seed(step *models.Step) {
	draft := step.Clone()
	if draft == nil {
		b.step = nil
		return
	}
	for i := range draft.Assignments {
		draft.Assignments[i].Status = status.Derive(draft.Assignments[i])
	}
	b.step = draft
}

// UpdateField mutates one field of one assignment. Edits to the operator or
// the start/end timestamps immediately re-derive that assignment's status
// and run the cascade; other fields only update the value.
func (b *Buffer) UpdateField(index int, field models.Field, value string) error {
	if b.step == nil {
		return ErrNoDraft
	}
	if index < 0 || index >= len(b.step.Assignments) {
		return &FieldError{Index: index, Field: field, Msg: "no such assignment"}
	}
	if !field.Valid() {
		return &FieldError{Index: index, Field: field, Msg: "unknown field"}
	}

	a := &b.step.Assignments[index]
	switch field {
	case models.FieldMachineID:
		a.MachineID = value
	case models.FieldMachineType:
		a.MachineType = value
	case models.FieldMachineName:
		a.MachineName = value
	case models.FieldOperatorName:
		a.OperatorName = value
	case models.FieldStartTime:
		normalized, err := normalizeTimestamp(value)
		if err != nil {
			return &FieldError{Index: index, Field: field, Msg: err.Error()}
		}
		a.StartTime = normalized
	case models.FieldEndTime:
		normalized, err := normalizeTimestamp(value)
		if err != nil {
			return &FieldError{Index: index, Field: field, Msg: err.Error()}
		}
		a.EndTime = normalized
	case models.FieldNote:
		a.Note = value
	}

	if field.TriggersDerive() {
		status.Cascade(b.step.Assignments, index)
	}
	return nil
}

// OverrideStatus manually forces an assignment to paused or error with an
// explanatory reason. Overridden assignments are skipped by derivation
// until the override is cleared.
func (b *Buffer) OverrideStatus(index int, value models.StatusValue, reason string) error {
	if b.step == nil {
		return ErrNoDraft
	}
	if index < 0 || index >= len(b.step.Assignments) {
		return &FieldError{Index: index, Msg: "no such assignment"}
	}
	if value != models.StatusPaused && value != models.StatusError {
		return &FieldError{Index: index, Msg: "only paused and error can be set manually"}
	}
	b.step.Assignments[index].Status = models.Overridden(value, reason)
	return nil
}

// ClearOverride removes a manual override and re-derives the assignment.
func (b *Buffer) ClearOverride(index int) error {
	if b.step == nil {
		return ErrNoDraft
	}
	if index < 0 || index >= len(b.step.Assignments) {
		return &FieldError{Index: index, Msg: "no such assignment"}
	}
	a := &b.step.Assignments[index]
	a.Status = models.Derived(models.StatusNone)
	status.Cascade(b.step.Assignments, index)
	return nil
}

// SaveNote updates an assignment's note without touching status derivation.
func (b *Buffer) SaveNote(index int, text string) error {
	return b.UpdateField(index, models.FieldNote, text)
}

// Validate checks the draft for commit readiness: it must exist, have at
// least one assignment, and every assignment must carry its machine
// identity (id, name, type).
func (b *Buffer) Validate() error {
	if b.step == nil {
		return ErrNoDraft
	}
	if len(b.step.Assignments) == 0 {
		return ErrEmptyStep
	}

	var incomplete []int
	for i, a := range b.step.Assignments {
		if a.MachineID == "" || a.MachineName == "" || a.MachineType == "" {
			incomplete = append(incomplete, i)
		}
	}
	if len(incomplete) > 0 {
		return &IncompleteAssignmentError{Indices: incomplete}
	}
	return nil
}

// Commit validates the draft, runs one final derive+cascade pass left to
// right so the sequence is globally consistent regardless of edit order,
// and returns the finalized step. The draft itself stays untouched on
// failure.
func (b *Buffer) Commit() (*models.Step, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	status.Normalize(b.step.Assignments)
	return b.step.Clone(), nil
}

// Discard drops the draft. Editing is all-or-nothing per session; there is
// no partial rollback of individual fields.
func (b *Buffer) Discard() {
	b.step = nil
}

// normalizeTimestamp canonicalizes a minute-precision local timestamp.
// Empty clears the value; anything unparseable is rejected rather than
// stored raw.
func normalizeTimestamp(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	t, err := time.ParseInLocation(models.TimeLayout, value, time.Local)
	if err != nil {
		return "", err
	}
	return t.Format(models.TimeLayout), nil
}
