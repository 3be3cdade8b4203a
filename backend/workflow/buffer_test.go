package workflow

import (
	"errors"
	"testing"

	"github.com/andi/stepline/backend/models"
)

func threeMachineTemplate() models.StepTemplate {
	return models.StepTemplate{
		ID:   "tpl-1",
		Name: "Cutting",
		Machines: []models.TemplateMachine{
			{MachineID: "m-1", MachineType: "laser", MachineName: "Laser A"},
			{MachineID: "m-2", MachineType: "press", MachineName: "Press B"},
			{MachineID: "m-3", MachineType: "polish", MachineName: "Polisher C"},
		},
	}
}

func TestSeedTemplate(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	step := buf.Step()
	if step == nil {
		t.Fatal("Expected a draft after seeding")
	}
	if step.Name != "Cutting" {
		t.Errorf("Expected name 'Cutting', got '%s'", step.Name)
	}
	if step.TemplateID != "tpl-1" {
		t.Errorf("Expected template id 'tpl-1', got '%s'", step.TemplateID)
	}
	if len(step.Assignments) != 3 {
		t.Fatalf("Expected 3 assignments, got %d", len(step.Assignments))
	}

	expected := []models.StatusValue{models.StatusPending, models.StatusNone, models.StatusNone}
	for i, want := range expected {
		if step.Assignments[i].Status.Value != want {
			t.Errorf("Assignment %d: expected status '%s', got '%s'", i, want, step.Assignments[i].Status.Value)
		}
	}
}

func TestUpdateFieldLifecycle(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	// Operator assigned: pending (already was)
	if err := buf.UpdateField(0, models.FieldOperatorName, "Ravi"); err != nil {
		t.Fatalf("Failed to set operator: %v", err)
	}
	if got := buf.Step().Assignments[0].Status.Value; got != models.StatusPending {
		t.Errorf("Expected pending, got '%s'", got)
	}

	// Started: in-progress
	if err := buf.UpdateField(0, models.FieldStartTime, "2024-01-01T09:00"); err != nil {
		t.Fatalf("Failed to set start time: %v", err)
	}
	if got := buf.Step().Assignments[0].Status.Value; got != models.StatusInProgress {
		t.Errorf("Expected in-progress, got '%s'", got)
	}

	// Finished: completed, and the next machine is promoted
	if err := buf.UpdateField(0, models.FieldEndTime, "2024-01-01T17:00"); err != nil {
		t.Fatalf("Failed to set end time: %v", err)
	}
	step := buf.Step()
	if got := step.Assignments[0].Status.Value; got != models.StatusCompleted {
		t.Errorf("Expected completed, got '%s'", got)
	}
	if got := step.Assignments[1].Status.Value; got != models.StatusPending {
		t.Errorf("Expected next machine pending, got '%s'", got)
	}
	if got := step.Assignments[2].Status.Value; got != models.StatusNone {
		t.Errorf("Expected third machine untouched, got '%s'", got)
	}
}

func TestUpdateFieldNoteDoesNotDerive(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	if err := buf.OverrideStatus(1, models.StatusPaused, "waiting on material"); err != nil {
		t.Fatalf("Failed to override status: %v", err)
	}
	if err := buf.UpdateField(1, models.FieldNote, "supplier called"); err != nil {
		t.Fatalf("Failed to set note: %v", err)
	}

	a := buf.Step().Assignments[1]
	if a.Status.Value != models.StatusPaused {
		t.Errorf("Note edit must not re-derive, got '%s'", a.Status.Value)
	}
	if a.Status.Reason != "waiting on material" {
		t.Errorf("Expected reason preserved, got '%s'", a.Status.Reason)
	}
	if a.Note != "supplier called" {
		t.Errorf("Expected note saved, got '%s'", a.Note)
	}
}

func TestUpdateFieldOrderPreserved(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	buf.UpdateField(1, models.FieldOperatorName, "Mira")
	buf.UpdateField(0, models.FieldStartTime, "2024-01-01T08:00")
	buf.UpdateField(2, models.FieldNote, "check calibration")

	step := buf.Step()
	if len(step.Assignments) != 3 {
		t.Fatalf("Expected 3 assignments, got %d", len(step.Assignments))
	}
	for i, want := range []string{"m-1", "m-2", "m-3"} {
		if step.Assignments[i].MachineID != want {
			t.Errorf("Assignment %d: expected machine '%s', got '%s'", i, want, step.Assignments[i].MachineID)
		}
	}
}

func TestUpdateFieldRejectsBadTimestamp(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	err := buf.UpdateField(0, models.FieldStartTime, "yesterday at nine")
	if err == nil {
		t.Fatal("Expected error for unparseable timestamp")
	}
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("Expected FieldError, got %T", err)
	}
	if got := buf.Step().Assignments[0].StartTime; got != "" {
		t.Errorf("Rejected value must not be stored, got '%s'", got)
	}
}

func TestUpdateFieldClearsTimestamp(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	buf.UpdateField(0, models.FieldStartTime, "2024-01-01T09:00")
	if err := buf.UpdateField(0, models.FieldStartTime, ""); err != nil {
		t.Fatalf("Failed to clear start time: %v", err)
	}
	if got := buf.Step().Assignments[0].StartTime; got != "" {
		t.Errorf("Expected cleared start time, got '%s'", got)
	}
}

func TestUpdateFieldErrors(t *testing.T) {
	buf := NewBuffer()

	if err := buf.UpdateField(0, models.FieldNote, "x"); !errors.Is(err, ErrNoDraft) {
		t.Errorf("Expected ErrNoDraft, got %v", err)
	}

	buf.SeedTemplate(threeMachineTemplate())

	if err := buf.UpdateField(7, models.FieldNote, "x"); err == nil {
		t.Error("Expected error for out-of-range index")
	}
	if err := buf.UpdateField(0, models.Field("widget"), "x"); err == nil {
		t.Error("Expected error for unknown field")
	}
}

func TestOverrideStatus(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	if err := buf.OverrideStatus(0, models.StatusCompleted, ""); err == nil {
		t.Error("Only paused and error may be forced manually")
	}

	if err := buf.OverrideStatus(0, models.StatusError, "spindle fault"); err != nil {
		t.Fatalf("Failed to override: %v", err)
	}
	a := buf.Step().Assignments[0]
	if a.Status.Value != models.StatusError || !a.Status.Overridden {
		t.Errorf("Expected overridden error status, got %+v", a.Status)
	}

	// Derivation-triggering edits must not clobber the override
	if err := buf.UpdateField(0, models.FieldOperatorName, "Ravi"); err != nil {
		t.Fatalf("Failed to set operator: %v", err)
	}
	if got := buf.Step().Assignments[0].Status.Value; got != models.StatusError {
		t.Errorf("Override must survive derivation, got '%s'", got)
	}

	// Clearing the override re-derives from the fields
	if err := buf.ClearOverride(0); err != nil {
		t.Fatalf("Failed to clear override: %v", err)
	}
	if got := buf.Step().Assignments[0].Status.Value; got != models.StatusPending {
		t.Errorf("Expected re-derived pending, got '%s'", got)
	}
}

func TestValidate(t *testing.T) {
	buf := NewBuffer()

	if err := buf.Validate(); !errors.Is(err, ErrNoDraft) {
		t.Errorf("Expected ErrNoDraft, got %v", err)
	}

	buf.Seed(&models.Step{Name: "Empty"})
	if err := buf.Validate(); !errors.Is(err, ErrEmptyStep) {
		t.Errorf("Expected ErrEmptyStep, got %v", err)
	}

	buf.SeedTemplate(threeMachineTemplate())
	if err := buf.Validate(); err != nil {
		t.Errorf("Expected valid draft, got %v", err)
	}

	// Blank out one machine name
	buf.UpdateField(2, models.FieldMachineName, "")
	err := buf.Validate()
	var incomplete *IncompleteAssignmentError
	if !errors.As(err, &incomplete) {
		t.Fatalf("Expected IncompleteAssignmentError, got %v", err)
	}
	if len(incomplete.Indices) != 1 || incomplete.Indices[0] != 2 {
		t.Errorf("Expected index 2 flagged, got %v", incomplete.Indices)
	}
}

func TestCommitNormalizes(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())

	// Edit fields out of order: finish machine 1 before machine 0
	buf.UpdateField(1, models.FieldStartTime, "2024-01-01T10:00")
	buf.UpdateField(1, models.FieldEndTime, "2024-01-01T11:00")
	buf.UpdateField(0, models.FieldStartTime, "2024-01-01T08:00")
	buf.UpdateField(0, models.FieldEndTime, "2024-01-01T09:30")

	step, err := buf.Commit()
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	expected := []models.StatusValue{models.StatusCompleted, models.StatusCompleted, models.StatusPending}
	for i, want := range expected {
		if step.Assignments[i].Status.Value != want {
			t.Errorf("Assignment %d: expected '%s', got '%s'", i, want, step.Assignments[i].Status.Value)
		}
	}
}

func TestCommitBlockedLeavesDraft(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())
	buf.UpdateField(0, models.FieldMachineID, "")
	buf.UpdateField(0, models.FieldOperatorName, "Ravi")

	step, err := buf.Commit()
	if err == nil {
		t.Fatal("Expected commit to fail")
	}
	if step != nil {
		t.Error("Failed commit must not return a step")
	}

	// Draft is still intact and editable
	if got := buf.Step().Assignments[0].OperatorName; got != "Ravi" {
		t.Errorf("Draft lost an edit after failed commit, got '%s'", got)
	}
}

func TestDiscard(t *testing.T) {
	buf := NewBuffer()
	buf.SeedTemplate(threeMachineTemplate())
	buf.Discard()

	if buf.Active() {
		t.Error("Expected no draft after discard")
	}
	if buf.Step() != nil {
		t.Error("Expected nil step after discard")
	}
}

func TestSeedReentryPreservesAndNormalizes(t *testing.T) {
	committed := &models.Step{
		Name: "Cutting",
		Assignments: []models.MachineAssignment{
			{
				MachineID: "m-1", MachineType: "laser", MachineName: "Laser A",
				OperatorName: "Ravi",
				StartTime:    "2024-01-01T09:00",
				Status:       models.Derived(models.StatusPending), // stale
			},
			{
				MachineID: "m-2", MachineType: "press", MachineName: "Press B",
				Status: models.Overridden(models.StatusPaused, "jam"),
			},
		},
	}

	buf := NewBuffer()
	buf.Seed(committed)

	step := buf.Step()
	if got := step.Assignments[0].Status.Value; got != models.StatusInProgress {
		t.Errorf("Expected drifted status normalized to in-progress, got '%s'", got)
	}
	if got := step.Assignments[1].Status; !got.Overridden || got.Value != models.StatusPaused {
		t.Errorf("Expected override preserved on re-entry, got %+v", got)
	}

	// Buffer edits must not reach the seeded step
	buf.UpdateField(0, models.FieldOperatorName, "Mira")
	if committed.Assignments[0].OperatorName != "Ravi" {
		t.Error("Seeding must deep-copy; committed step was mutated")
	}
}
