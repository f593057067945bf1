package repository

import (
	"context"

	"gorm.io/gorm"

	"vpnstore/internal/models"
)

// PromoRepository handles promo codes and their redemptions.
type PromoRepository struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PromoRepository) WithTx(tx *gorm.DB) *PromoRepository {
	return &PromoRepository{db: tx}
}

// FindByCode returns a promo by its normalized code.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// FindByID returns a promo by ID.
func (r *PromoRepository) FindByID(ctx context.Context, id uint) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&promo).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// FindAll lists promos, newest first.
func (r *PromoRepository) FindAll(ctx context.Context, limit, page int) ([]models.PromoCode, int64, error) {
	var promos []models.PromoCode
	var total int64
	db := r.db.WithContext(ctx).Model(&models.PromoCode{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	db, _, _ = paginate(db, limit, page)
	if err := db.Order("id DESC").Find(&promos).Error; err != nil {
		return nil, 0, err
	}
	return promos, total, nil
}

// Create inserts a promo.
func (r *PromoRepository) Create(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

// SetActive enables or disables a promo.
func (r *PromoRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.db.WithContext(ctx).Model(&models.PromoCode{}).Where("id = ?", id).Update("is_active", active).Error
}

// UsageExists reports whether the payment already redeemed a promo.
func (r *PromoRepository) UsageExists(ctx context.Context, paymentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PromoUsage{}).Where("payment_id = ?", paymentID).Count(&count).Error
	return count > 0, err
}

// DecrementUses takes one use if any is left.
func (r *PromoRepository) DecrementUses(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PromoCode{}).
		Where("id = ? AND uses_left > 0", id).
		Update("uses_left", gorm.Expr("uses_left - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CreateUsage inserts the redemption row.
func (r *PromoRepository) CreateUsage(ctx context.Context, usage *models.PromoUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// CountUsages counts redemptions of a promo.
func (r *PromoRepository) CountUsages(ctx context.Context, id uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PromoUsage{}).Where("promo_code_id = ?", id).Count(&count).Error
	return count, err
}

// DeleteUsage removes the redemption row of a payment and reports whether one existed.
func (r *PromoRepository) DeleteUsage(ctx context.Context, paymentID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Delete(&models.PromoUsage{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementUses gives one use back.
func (r *PromoRepository) IncrementUses(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.PromoCode{}).
		Where("id = ?", id).
		Update("uses_left", gorm.Expr("uses_left + 1")).Error
}
