package status

import (
	"strings"

	"github.com/andi/stepline/backend/models"
)

// Derive computes the lifecycle status implied by an assignment's own
// fields. The rules are evaluated in order, first match wins:
//
//  1. start and end set            -> completed
//  2. start set, end unset         -> in-progress
//  3. operator set, start unset    -> pending
//  4. otherwise                    -> current status, unchanged
//
// A manually overridden status (paused/error) is returned as-is without
// consulting the fields. Derive is pure and idempotent and never looks at
// sibling assignments.
func Derive(a models.MachineAssignment) models.Status {
	if a.Status.Overridden {
		return a.Status
	}

	switch {
	case a.StartTime != "" && a.EndTime != "":
		return models.Derived(models.StatusCompleted)
	case a.StartTime != "":
		return models.Derived(models.StatusInProgress)
	case strings.TrimSpace(a.OperatorName) != "":
		return models.Derived(models.StatusPending)
	}

	// Operator unset: keep whatever is there. Clearing an operator after
	// progress was recorded must not regress that progress.
	return a.Status
}

// Cascade re-derives the status at changed and, when it lands on completed,
// promotes the immediately following assignment from none to pending. The
// cascade is forward-only, one hop, and never downgrades an assignment that
// has already advanced past none.
func Cascade(assignments []models.MachineAssignment, changed int) {
	if changed < 0 || changed >= len(assignments) {
		return
	}

	assignments[changed].Status = Derive(assignments[changed])

	next := changed + 1
	if assignments[changed].Status.Value != models.StatusCompleted || next >= len(assignments) {
		return
	}
	if assignments[next].Status.Value == models.StatusNone && !assignments[next].Status.Overridden {
		assignments[next].Status = models.Derived(models.StatusPending)
	}
}

// Normalize runs derive+cascade once over the whole sequence, left to
// right. Commit uses it to guarantee sequence-wide consistency no matter
// the order individual fields were edited in.
func Normalize(assignments []models.MachineAssignment) {
	for i := range assignments {
		Cascade(assignments, i)
	}
}
