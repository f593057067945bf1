package models

import "time"

type AffiliateRewardType string

const (
	AffiliateRewardFixed   AffiliateRewardType = "FIXED"
	AffiliateRewardPercent AffiliateRewardType = "PERCENT"
)

// SettingID is the primary key of the single settings row.
const SettingID = 1

// Setting maps to the `settings` table (single-row config table).
type Setting struct {
	ID                    uint                `gorm:"column:id;primaryKey" json:"id"`
	TestEnabled           bool                `gorm:"column:test_enabled;not null" json:"test_enabled"`
	TestTrafficBytes      int64               `gorm:"column:test_traffic_bytes;not null" json:"test_traffic_bytes"`
	TestDurationDays      int                 `gorm:"column:test_duration_days;not null;default:1" json:"test_duration_days"`
	EnableManualPayment   bool                `gorm:"column:enable_manual_payment;not null" json:"enable_manual_payment"`
	EnableHostedPayment   bool                `gorm:"column:enable_hosted_payment;not null" json:"enable_hosted_payment"`
	EnablePromos          bool                `gorm:"column:enable_promos;not null" json:"enable_promos"`
	EnableReferralCapture bool                `gorm:"column:enable_referral_capture;not null;default:false" json:"enable_referral_capture"`
	EnableAffiliateReward bool                `gorm:"column:enable_affiliate_reward;not null;default:false" json:"enable_affiliate_reward"`
	EnableNewPurchases    bool                `gorm:"column:enable_new_purchases;not null" json:"enable_new_purchases"`
	EnableRenewals        bool                `gorm:"column:enable_renewals;not null" json:"enable_renewals"`
	AffiliateRewardType   AffiliateRewardType `gorm:"column:affiliate_reward_type;size:16;not null;default:'FIXED'" json:"affiliate_reward_type"`
	AffiliateRewardValue  int64               `gorm:"column:affiliate_reward_value;not null;default:0" json:"affiliate_reward_value"`
	ManualCardNumber      string              `gorm:"column:manual_card_number;size:64" json:"manual_card_number"`
	SupportHandle         string              `gorm:"column:support_handle;size:64" json:"support_handle"`
	NotifyDaysLeft        int                 `gorm:"column:notify_days_left;not null;default:3" json:"notify_days_left"`
	NotifyGBLeft          int                 `gorm:"column:notify_gb_left;not null;default:2" json:"notify_gb_left"`
	UpdatedAt             time.Time           `gorm:"column:updated_at" json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// DefaultSetting mirrors the values seeded on first boot.
func DefaultSetting() Setting {
	return Setting{
		ID:                    SettingID,
		TestEnabled:           true,
		TestTrafficBytes:      GBToBytes(5),
		TestDurationDays:      1,
		EnableManualPayment:   true,
		EnableHostedPayment:   true,
		EnablePromos:          true,
		EnableReferralCapture: false,
		EnableAffiliateReward: false,
		EnableNewPurchases:    true,
		EnableRenewals:        true,
		AffiliateRewardType:   AffiliateRewardFixed,
		AffiliateRewardValue:  15000,
		NotifyDaysLeft:        3,
		NotifyGBLeft:          2,
	}
}

// AffiliateReward computes the referrer credit for a payment amount.
func (s *Setting) AffiliateReward(amountTomans int64) int64 {
	if s.AffiliateRewardType == AffiliateRewardPercent {
		return amountTomans * s.AffiliateRewardValue / 100
	}
	return s.AffiliateRewardValue
}
