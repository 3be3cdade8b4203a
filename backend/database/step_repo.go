package database

import (
	"errors"
	"fmt"

	"github.com/andi/stepline/backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StepRepo persists committed steps into their parent orders.
type StepRepo struct {
	db *DB
}

// NewStepRepo creates a new step repository.
func NewStepRepo(db *DB) *StepRepo {
	return &StepRepo{db: db}
}

// Save stores the committed step for an order, replacing any previously
// saved one. Assignment ids are assigned on first persist and written back
// into the given step.
func (r *StepRepo) Save(orderID string, step *models.Step) error {
	return r.db.conn.Transaction(func(tx *gorm.DB) error {
		var existing StepModel
		err := tx.Where("order_id = ?", orderID).First(&existing).Error
		switch {
		case err == nil:
			if err := tx.Delete(&AssignmentModel{}, "step_id = ?", existing.ID).Error; err != nil {
				return err
			}
			existing.Name = step.Name
			existing.TemplateID = step.TemplateID
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = StepModel{
				ID:         uuid.New().String(),
				OrderID:    orderID,
				Name:       step.Name,
				TemplateID: step.TemplateID,
			}
			if err := tx.Create(&existing).Error; err != nil {
				return err
			}
		default:
			return err
		}

		for i := range step.Assignments {
			if step.Assignments[i].ID == "" {
				step.Assignments[i].ID = uuid.New().String()
			}
			model := FromAssignment(step.Assignments[i], existing.ID, i)
			if err := tx.Create(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByOrder loads the committed step for an order, nil when none is saved.
func (r *StepRepo) GetByOrder(orderID string) (*models.Step, error) {
	var stepModel StepModel
	err := r.db.conn.Where("order_id = ?", orderID).First(&stepModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var assignmentModels []AssignmentModel
	err = r.db.conn.Where("step_id = ?", stepModel.ID).
		Order("position").
		Find(&assignmentModels).Error
	if err != nil {
		return nil, err
	}

	return stepModel.ToStep(assignmentModels), nil
}

// DeleteByOrder removes an order's committed step and its assignments.
func (r *StepRepo) DeleteByOrder(orderID string) error {
	return r.db.conn.Transaction(func(tx *gorm.DB) error {
		var stepModel StepModel
		err := tx.Where("order_id = ?", orderID).First(&stepModel).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("step not found")
		}
		if err != nil {
			return err
		}

		if err := tx.Delete(&AssignmentModel{}, "step_id = ?", stepModel.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&stepModel).Error
	})
}

// CountByOrder counts persisted assignments for an order.
func (r *StepRepo) CountByOrder(orderID string) (int, error) {
	var stepModel StepModel
	err := r.db.conn.Where("order_id = ?", orderID).First(&stepModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.db.conn.Model(&AssignmentModel{}).Where("step_id = ?", stepModel.ID).Count(&count).Error
	return int(count), err
}
