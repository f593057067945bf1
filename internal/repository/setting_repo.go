package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnstore/internal/models"
)

// SettingRepository handles the singleton settings row.
type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// DB returns the underlying gorm.DB instance.
func (r *SettingRepository) DB() *gorm.DB {
	return r.db
}

// Get returns the settings row, falling back to defaults when it was never seeded.
func (r *SettingRepository) Get(ctx context.Context) (*models.Setting, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).Where("id = ?", models.SettingID).First(&setting).Error
	if IsNotFound(err) {
		def := models.DefaultSetting()
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// Update updates specific setting columns.
func (r *SettingRepository) Update(ctx context.Context, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Setting{}).Where("id = ?", models.SettingID).Updates(updates).Error
}
