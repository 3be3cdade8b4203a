package models

import (
	"time"
)

// TimeLayout is the wire format for assignment timestamps: local wall-clock,
// minute precision, the value a datetime-local input produces.
const TimeLayout = "2006-01-02T15:04"

// StatusValue represents the lifecycle status of a machine assignment.
type StatusValue string

const (
	StatusNone       StatusValue = "none"
	StatusPending    StatusValue = "pending"
	StatusInProgress StatusValue = "in-progress"
	StatusCompleted  StatusValue = "completed"
	StatusPaused     StatusValue = "paused"
	StatusError      StatusValue = "error"
)

// Status records an assignment's status value together with how it was set.
// Derived values are recomputed from the assignment's own fields; overridden
// values (paused/error) were forced manually and are never touched by
// derivation or cascade.
type Status struct {
	Value      StatusValue `json:"value"`
	Overridden bool        `json:"overridden,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Derived builds a derivation-managed status.
func Derived(v StatusValue) Status {
	return Status{Value: v}
}

// Overridden builds a manually forced status with an explanatory reason.
func Overridden(v StatusValue, reason string) Status {
	return Status{Value: v, Overridden: true, Reason: reason}
}

// Field identifies one editable field of a machine assignment.
type Field string

const (
	FieldMachineID    Field = "machine_id"
	FieldMachineType  Field = "machine_type"
	FieldMachineName  Field = "machine_name"
	FieldOperatorName Field = "operator_name"
	FieldStartTime    Field = "start_time"
	FieldEndTime      Field = "end_time"
	FieldNote         Field = "note"
)

// TriggersDerive reports whether editing this field must re-derive the
// assignment's status and run the cascade. Edits to identity fields and
// notes only update the field.
func (f Field) TriggersDerive() bool {
	switch f {
	case FieldOperatorName, FieldStartTime, FieldEndTime:
		return true
	}
	return false
}

// Valid reports whether f names an editable assignment field.
func (f Field) Valid() bool {
	switch f {
	case FieldMachineID, FieldMachineType, FieldMachineName,
		FieldOperatorName, FieldStartTime, FieldEndTime, FieldNote:
		return true
	}
	return false
}

// MachineAssignment represents one machine's role within a step. Absent
// operator/timestamp/note values are empty strings, never null.
type MachineAssignment struct {
	ID           string `json:"id,omitempty"`
	MachineID    string `json:"machine_id"`
	MachineType  string `json:"machine_type"`
	MachineName  string `json:"machine_name"`
	OperatorName string `json:"operator_name"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Note         string `json:"note"`
	Status       Status `json:"status"`
}

// Step represents one named stage of a manufacturing order: an ordered list
// of machine assignments. Order encodes the physical pipeline sequence and
// is preserved across edit, commit and cascade.
type Step struct {
	Name        string              `json:"name"`
	TemplateID  string              `json:"template_id,omitempty"`
	Assignments []MachineAssignment `json:"assignments"`
}

// Clone returns a deep copy of the step so edits on the copy can never
// reach the original's assignments.
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	out := &Step{
		Name:        s.Name,
		TemplateID:  s.TemplateID,
		Assignments: make([]MachineAssignment, len(s.Assignments)),
	}
	copy(out.Assignments, s.Assignments)
	return out
}

// MachineIDs returns the assignment machine ids in pipeline order.
func (s *Step) MachineIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.Assignments))
	for i, a := range s.Assignments {
		ids[i] = a.MachineID
	}
	return ids
}

// TemplateMachine is one machine slot of a step template.
type TemplateMachine struct {
	MachineID   string `json:"machine_id"`
	MachineType string `json:"machine_type"`
	MachineName string `json:"machine_name"`
}

// StepTemplate is a step definition returned by the template search
// service, used to seed a fresh editing draft.
type StepTemplate struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Machines []TemplateMachine `json:"machines"`
}

// EventType names a push event from the production-tracking service.
type EventType string

const (
	EventTableDataSaved         EventType = "table:data_saved"
	EventTableRowAdded          EventType = "table:row_added"
	EventOperatorSessionStarted EventType = "operator:session_started"
	EventOperatorSessionEnded   EventType = "operator:session_ended"
	EventOperatorSessionPaused  EventType = "operator:session_paused"
	EventOrderUpdated           EventType = "order:updated"
)

// Known reports whether the event type is one the bridge reacts to.
func (e EventType) Known() bool {
	switch e {
	case EventTableDataSaved, EventTableRowAdded,
		EventOperatorSessionStarted, EventOperatorSessionEnded,
		EventOperatorSessionPaused, EventOrderUpdated:
		return true
	}
	return false
}

// PushEvent is one event delivered on the push channel, scoped to an order.
type PushEvent struct {
	Type       EventType `json:"type"`
	OrderID    string    `json:"order_id"`
	MachineID  string    `json:"machine_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
