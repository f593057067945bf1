package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
)

// PlanRepository handles catalog plans.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindAll returns plans ordered by price. activeOnly hides disabled plans.
func (r *PlanRepository) FindAll(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	var plans []models.Plan
	db := r.db.WithContext(ctx)
	if activeOnly {
		db = db.Where("is_active = ?", true)
	}
	err := db.Order("price_tomans ASC, id ASC").Find(&plans).Error
	return plans, err
}

// FindByID returns a plan by ID.
func (r *PlanRepository) FindByID(ctx context.Context, id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// Create creates a new plan.
func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

// Update updates plan fields.
func (r *PlanRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", id).Updates(updates).Error
}

// Delete removes a plan that no payment or service references.
// Referenced plans fail with apperror.ErrPlanInUse; deactivate them instead.
func (r *PlanRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.Payment{}).Where("plan_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs == 0 {
			if err := tx.Model(&models.Service{}).Where("plan_id = ?", id).Count(&refs).Error; err != nil {
				return err
			}
		}
		if refs > 0 {
			return apperror.ErrPlanInUse
		}
		res := tx.Where("id = ?", id).Delete(&models.Plan{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.ErrPlanNotFound
		}
		return nil
	})
}
