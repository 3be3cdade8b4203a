package workflow

import (
	"errors"
	"fmt"

	"github.com/andi/stepline/backend/models"
)

// ErrEmptyStep is returned when commit is attempted on a step with zero
// machine assignments.
var ErrEmptyStep = errors.New("step has no machine assignments")

// ErrNoDraft is returned when an edit operation runs without an active
// editing draft.
var ErrNoDraft = errors.New("no step is being edited")

// ErrNoCommittedStep is returned when re-entering edit mode without a
// previously committed step.
var ErrNoCommittedStep = errors.New("no committed step")

// IncompleteAssignmentError reports assignments missing their mandatory
// machine identity fields. Save stays blocked until they are filled in.
type IncompleteAssignmentError struct {
	Indices []int
}

func (e *IncompleteAssignmentError) Error() string {
	return fmt.Sprintf("%d machine assignment(s) missing machine id, name or type", len(e.Indices))
}

// FieldError reports a rejected edit to a single assignment field.
type FieldError struct {
	Index int
	Field models.Field
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("assignment %d, field %s: %s", e.Index, e.Field, e.Msg)
}
