package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"vpnstore/internal/models"
)

// ServiceRepository handles provisioned subscription rows.
type ServiceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ServiceRepository) WithTx(tx *gorm.DB) *ServiceRepository {
	return &ServiceRepository{db: tx}
}

// FindByID returns a service with its plan preloaded.
func (r *ServiceRepository) FindByID(ctx context.Context, id uint) (*models.Service, error) {
	var service models.Service
	if err := r.db.WithContext(ctx).Preload("Plan").Where("id = ?", id).First(&service).Error; err != nil {
		return nil, err
	}
	return &service, nil
}

// FindByIDForUser returns a service only if it belongs to userID.
func (r *ServiceRepository) FindByIDForUser(ctx context.Context, id, userID uint) (*models.Service, error) {
	var service models.Service
	err := r.db.WithContext(ctx).Preload("Plan").
		Where("id = ? AND user_id = ?", id, userID).
		First(&service).Error
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// FindByUserAndName returns the user's service with the given name.
func (r *ServiceRepository) FindByUserAndName(ctx context.Context, userID uint, name string) (*models.Service, error) {
	var service models.Service
	if err := r.db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&service).Error; err != nil {
		return nil, err
	}
	return &service, nil
}

// FindByUserID lists a user's services, newest first.
func (r *ServiceRepository) FindByUserID(ctx context.Context, userID uint) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).Preload("Plan").Where("user_id = ?", userID).Order("id DESC").Find(&services).Error
	return services, err
}

// NameExists checks whether the user already owns a service called name.
func (r *ServiceRepository) NameExists(ctx context.Context, userID uint, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Service{}).
		Where("user_id = ? AND name = ?", userID, name).
		Count(&count).Error
	return count > 0, err
}

// FindActive returns active services in id order, one page at a time.
func (r *ServiceRepository) FindActive(ctx context.Context, afterID uint, limit int) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND id > ?", true, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&services).Error
	return services, err
}

// FindExpired returns services whose expiry is before cutoff.
func (r *ServiceRepository) FindExpired(ctx context.Context, isTest bool, cutoff time.Time, limit int) ([]models.Service, error) {
	var services []models.Service
	err := r.db.WithContext(ctx).
		Where("is_test = ? AND expire_at < ?", isTest, cutoff).
		Order("id ASC").
		Limit(limit).
		Find(&services).Error
	return services, err
}

// Create inserts a new service.
func (r *ServiceRepository) Create(ctx context.Context, service *models.Service) error {
	return r.db.WithContext(ctx).Create(service).Error
}

// Update updates service fields.
func (r *ServiceRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Service{}).Where("id = ?", id).Updates(updates).Error
}

// Delete removes a service row.
func (r *ServiceRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Service{}).Error
}

// CountByPlan counts services provisioned from a plan.
func (r *ServiceRepository) CountByPlan(ctx context.Context, planID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Service{}).Where("plan_id = ?", planID).Count(&count).Error
	return count, err
}

// CountByUser counts services owned by a user.
func (r *ServiceRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Service{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
