package models

import "time"

// PromoCode maps to the `promo_codes` table. Code is stored upper-case.
type PromoCode struct {
	ID              uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Code            string     `gorm:"column:code;size:64;uniqueIndex;not null" json:"code"`
	DiscountPercent int        `gorm:"column:discount_percent;not null;default:0" json:"discount_percent"`
	FixedTomans     int64      `gorm:"column:fixed_tomans;not null;default:0" json:"fixed_tomans"`
	UsesLeft        int        `gorm:"column:uses_left;not null;default:0" json:"uses_left"`
	IsActive        bool       `gorm:"column:is_active;not null" json:"is_active"`
	ExpiresAt       *time.Time `gorm:"column:expires_at" json:"expires_at"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (PromoCode) TableName() string {
	return "promo_codes"
}

// PromoUsage maps to the `promo_usages` table; one row per redeeming payment.
type PromoUsage struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PromoCodeID uint      `gorm:"column:promo_code_id;not null;index" json:"promo_code_id"`
	UserID      uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	PaymentID   uint      `gorm:"column:payment_id;not null;uniqueIndex" json:"payment_id"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (PromoUsage) TableName() string {
	return "promo_usages"
}
