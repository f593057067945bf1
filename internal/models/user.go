package models

import "time"

// User maps to the `users` table.
// TelegramID is the external chat identity; WalletBalance is stored in Tomans and never negative.
type User struct {
	ID                       uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TelegramID               int64      `gorm:"column:telegram_id;uniqueIndex;not null" json:"telegram_id"`
	Username                 string     `gorm:"column:username;size:255" json:"username"`
	FirstName                string     `gorm:"column:first_name;size:255" json:"first_name"`
	LastName                 string     `gorm:"column:last_name;size:255" json:"last_name"`
	WalletBalance            int64      `gorm:"column:wallet_balance;not null;default:0" json:"wallet_balance"`
	IsBanned                 bool       `gorm:"column:is_banned;not null;default:false" json:"is_banned"`
	UsedTestSubscription     bool       `gorm:"column:used_test_subscription;not null;default:false" json:"used_test_subscription"`
	ReferredByID             *uint      `gorm:"column:referred_by_id;index" json:"referred_by_id"`
	AffiliateRewardProcessed bool       `gorm:"column:affiliate_reward_processed;not null;default:false" json:"affiliate_reward_processed"`
	FirstPurchaseAt          *time.Time `gorm:"column:first_purchase_at" json:"first_purchase_at"`
	CreatedAt                time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
