package database

import (
	"time"

	"github.com/andi/stepline/backend/models"
)

// StepModel represents a committed step in the database, one per order.
type StepModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	OrderID    string    `gorm:"uniqueIndex;type:varchar(36);not null"`
	Name       string    `gorm:"type:varchar(255);not null"`
	TemplateID string    `gorm:"type:varchar(36)"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (StepModel) TableName() string {
	return "order_steps"
}

// AssignmentModel represents one machine assignment of a committed step.
// Position preserves the pipeline order.
type AssignmentModel struct {
	ID               string    `gorm:"primaryKey;type:varchar(36)"`
	StepID           string    `gorm:"type:varchar(36);not null;index"`
	Position         int       `gorm:"not null"`
	MachineID        string    `gorm:"type:varchar(64);not null"`
	MachineType      string    `gorm:"type:varchar(64);not null"`
	MachineName      string    `gorm:"type:varchar(255);not null"`
	OperatorName     string    `gorm:"type:varchar(255)"`
	StartTime        string    `gorm:"type:varchar(16)"`
	EndTime          string    `gorm:"type:varchar(16)"`
	Note             string    `gorm:"type:text"`
	Status           string    `gorm:"type:varchar(20);not null;default:'none'"`
	StatusOverridden bool      `gorm:"not null;default:false"`
	StatusReason     string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (AssignmentModel) TableName() string {
	return "step_assignments"
}

// ToAssignment converts AssignmentModel to models.MachineAssignment.
func (m *AssignmentModel) ToAssignment() models.MachineAssignment {
	return models.MachineAssignment{
		ID:           m.ID,
		MachineID:    m.MachineID,
		MachineType:  m.MachineType,
		MachineName:  m.MachineName,
		OperatorName: m.OperatorName,
		StartTime:    m.StartTime,
		EndTime:      m.EndTime,
		Note:         m.Note,
		Status: models.Status{
			Value:      models.StatusValue(m.Status),
			Overridden: m.StatusOverridden,
			Reason:     m.StatusReason,
		},
	}
}

// FromAssignment converts models.MachineAssignment to AssignmentModel.
func FromAssignment(a models.MachineAssignment, stepID string, position int) *AssignmentModel {
	return &AssignmentModel{
		ID:               a.ID,
		StepID:           stepID,
		Position:         position,
		MachineID:        a.MachineID,
		MachineType:      a.MachineType,
		MachineName:      a.MachineName,
		OperatorName:     a.OperatorName,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		Note:             a.Note,
		Status:           string(a.Status.Value),
		StatusOverridden: a.Status.Overridden,
		StatusReason:     a.Status.Reason,
	}
}

// ToStep assembles a models.Step from a step row and its assignment rows,
// which must already be sorted by position.
func (m *StepModel) ToStep(assignments []AssignmentModel) *models.Step {
	step := &models.Step{
		Name:        m.Name,
		TemplateID:  m.TemplateID,
		Assignments: make([]models.MachineAssignment, len(assignments)),
	}
	for i, a := range assignments {
		step.Assignments[i] = a.ToAssignment()
	}
	return step
}
