package status

import (
	"testing"

	"github.com/andi/stepline/backend/models"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name       string
		assignment models.MachineAssignment
		expected   models.StatusValue
	}{
		{
			name: "start and end set",
			assignment: models.MachineAssignment{
				OperatorName: "Ravi",
				StartTime:    "2024-01-01T09:00",
				EndTime:      "2024-01-01T17:00",
				Status:       models.Derived(models.StatusInProgress),
			},
			expected: models.StatusCompleted,
		},
		{
			name: "start set, end unset",
			assignment: models.MachineAssignment{
				OperatorName: "Ravi",
				StartTime:    "2024-01-01T09:00",
				Status:       models.Derived(models.StatusPending),
			},
			expected: models.StatusInProgress,
		},
		{
			name: "operator only",
			assignment: models.MachineAssignment{
				OperatorName: "Ravi",
				Status:       models.Derived(models.StatusNone),
			},
			expected: models.StatusPending,
		},
		{
			name: "end without start still counts as started only when start is set",
			assignment: models.MachineAssignment{
				OperatorName: "Ravi",
				EndTime:      "2024-01-01T17:00",
				Status:       models.Derived(models.StatusNone),
			},
			expected: models.StatusPending,
		},
		{
			name: "operator unset preserves current status",
			assignment: models.MachineAssignment{
				Status: models.Derived(models.StatusPending),
			},
			expected: models.StatusPending,
		},
		{
			name: "operator cleared after completion does not regress",
			assignment: models.MachineAssignment{
				Status: models.Derived(models.StatusCompleted),
			},
			expected: models.StatusCompleted,
		},
		{
			name: "blank operator is unset",
			assignment: models.MachineAssignment{
				OperatorName: "   ",
				Status:       models.Derived(models.StatusNone),
			},
			expected: models.StatusNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.assignment)
			if got.Value != tt.expected {
				t.Errorf("Expected status '%s', got '%s'", tt.expected, got.Value)
			}
			if got.Overridden {
				t.Error("Derived status should not be marked overridden")
			}
		})
	}
}

func TestDeriveSkipsOverridden(t *testing.T) {
	a := models.MachineAssignment{
		OperatorName: "Ravi",
		StartTime:    "2024-01-01T09:00",
		EndTime:      "2024-01-01T17:00",
		Status:       models.Overridden(models.StatusPaused, "tooling changeover"),
	}

	got := Derive(a)
	if got.Value != models.StatusPaused {
		t.Errorf("Expected overridden status to survive, got '%s'", got.Value)
	}
	if !got.Overridden {
		t.Error("Override flag should be preserved")
	}
	if got.Reason != "tooling changeover" {
		t.Errorf("Expected reason to be preserved, got '%s'", got.Reason)
	}
}

func TestDeriveIdempotent(t *testing.T) {
	a := models.MachineAssignment{
		OperatorName: "Ravi",
		StartTime:    "2024-01-01T09:00",
	}

	once := Derive(a)
	a.Status = once
	twice := Derive(a)

	if once != twice {
		t.Errorf("Derive is not idempotent: first %+v, second %+v", once, twice)
	}
}

func TestCascadePromotesNext(t *testing.T) {
	assignments := []models.MachineAssignment{
		{
			OperatorName: "Ravi",
			StartTime:    "2024-01-01T09:00",
			EndTime:      "2024-01-01T17:00",
			Status:       models.Derived(models.StatusInProgress),
		},
		{Status: models.Derived(models.StatusNone)},
		{Status: models.Derived(models.StatusNone)},
	}

	Cascade(assignments, 0)

	if assignments[0].Status.Value != models.StatusCompleted {
		t.Errorf("Expected completed, got '%s'", assignments[0].Status.Value)
	}
	if assignments[1].Status.Value != models.StatusPending {
		t.Errorf("Expected next assignment promoted to pending, got '%s'", assignments[1].Status.Value)
	}
	// One hop only
	if assignments[2].Status.Value != models.StatusNone {
		t.Errorf("Cascade must not ripple past one hop, got '%s'", assignments[2].Status.Value)
	}
}

func TestCascadeNeverDowngrades(t *testing.T) {
	tests := []struct {
		name     string
		next     models.Status
		expected models.Status
	}{
		{
			name:     "next already pending",
			next:     models.Derived(models.StatusPending),
			expected: models.Derived(models.StatusPending),
		},
		{
			name:     "next in progress",
			next:     models.Derived(models.StatusInProgress),
			expected: models.Derived(models.StatusInProgress),
		},
		{
			name:     "next completed",
			next:     models.Derived(models.StatusCompleted),
			expected: models.Derived(models.StatusCompleted),
		},
		{
			name:     "next overridden paused",
			next:     models.Overridden(models.StatusPaused, "jam"),
			expected: models.Overridden(models.StatusPaused, "jam"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignments := []models.MachineAssignment{
				{
					StartTime: "2024-01-01T09:00",
					EndTime:   "2024-01-01T17:00",
				},
				{Status: tt.next},
			}

			Cascade(assignments, 0)

			if assignments[1].Status != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, assignments[1].Status)
			}
		})
	}
}

func TestCascadeOutOfRange(t *testing.T) {
	assignments := []models.MachineAssignment{
		{Status: models.Derived(models.StatusNone)},
	}

	Cascade(assignments, -1)
	Cascade(assignments, 5)

	if assignments[0].Status.Value != models.StatusNone {
		t.Errorf("Out of range cascade must be a no-op, got '%s'", assignments[0].Status.Value)
	}
}

func TestCascadeLastAssignment(t *testing.T) {
	assignments := []models.MachineAssignment{
		{Status: models.Derived(models.StatusCompleted)},
		{
			StartTime: "2024-01-01T09:00",
			EndTime:   "2024-01-01T17:00",
		},
	}

	Cascade(assignments, 1)

	if assignments[1].Status.Value != models.StatusCompleted {
		t.Errorf("Expected completed, got '%s'", assignments[1].Status.Value)
	}
}

func TestNormalize(t *testing.T) {
	// Fields edited out of order: the final left-to-right pass must still
	// produce a consistent sequence.
	assignments := []models.MachineAssignment{
		{
			StartTime: "2024-01-01T09:00",
			EndTime:   "2024-01-01T12:00",
			Status:    models.Derived(models.StatusNone),
		},
		{Status: models.Derived(models.StatusNone)},
		{Status: models.Derived(models.StatusNone)},
	}

	Normalize(assignments)

	if assignments[0].Status.Value != models.StatusCompleted {
		t.Errorf("Expected completed, got '%s'", assignments[0].Status.Value)
	}
	if assignments[1].Status.Value != models.StatusPending {
		t.Errorf("Expected pending, got '%s'", assignments[1].Status.Value)
	}
	if assignments[2].Status.Value != models.StatusNone {
		t.Errorf("Expected none, got '%s'", assignments[2].Status.Value)
	}

	if len(assignments) != 3 {
		t.Errorf("Normalize must not change sequence length, got %d", len(assignments))
	}
}
