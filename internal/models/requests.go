package models

import "time"

// APIResponse is the standard response envelope of the admin API.
type APIResponse struct {
	Status bool        `json:"status"`
	Msg    string      `json:"msg"`
	Obj    interface{} `json:"obj"`
}

// PaginatedResponse wraps list results with pagination info.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// --- Payment API Request Payloads ---

type StatsRequest struct {
	Days int `query:"days" validate:"omitempty,min=1,max=365"`
}

type PaymentsListRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=PENDING WAITING_REVIEW PROCESSING SUCCESS FAILED CANCELED"`
	Type   string `query:"type" validate:"omitempty,oneof=PURCHASE RENEWAL WALLET_CHARGE"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=200"`
	Page   int    `query:"page" validate:"omitempty,min=1"`
}

type PaymentReviewRequest struct {
	AdminID int64  `json:"admin_id" validate:"required"`
	Note    string `json:"note" validate:"max=500"`
}

type PaymentFailRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// --- Plan API Request Payloads ---

type PlanAddRequest struct {
	Name         string `json:"name" validate:"required,max=191"`
	TrafficGB    int    `json:"traffic_gb" validate:"required,min=1"`
	DurationDays int    `json:"duration_days" validate:"required,min=1"`
	PriceTomans  int64  `json:"price_tomans" validate:"min=0"`
	PanelGroup   string `json:"panel_group" validate:"max=255"`
	IsActive     *bool  `json:"is_active"`
}

type PlanEditRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=191"`
	TrafficGB    *int    `json:"traffic_gb" validate:"omitempty,min=1"`
	DurationDays *int    `json:"duration_days" validate:"omitempty,min=1"`
	PriceTomans  *int64  `json:"price_tomans" validate:"omitempty,min=0"`
	PanelGroup   *string `json:"panel_group" validate:"omitempty,max=255"`
	IsActive     *bool   `json:"is_active"`
}

// --- Promo API Request Payloads ---

type PromoAddRequest struct {
	Code            string     `json:"code" validate:"required,min=2,max=64"`
	DiscountPercent int        `json:"discount_percent" validate:"min=0,max=100"`
	FixedTomans     int64      `json:"fixed_tomans" validate:"min=0"`
	UsesLeft        int        `json:"uses_left" validate:"required,min=1"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

// --- Wallet API Request Payloads ---

type WalletAdjustRequest struct {
	Amount      int64  `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

type UserBanRequest struct {
	Banned bool `json:"banned"`
}

// --- Settings API Request Payloads ---

type SettingsUpdateRequest struct {
	TestEnabled           *bool   `json:"test_enabled"`
	TestTrafficGB         *int    `json:"test_traffic_gb" validate:"omitempty,min=1"`
	TestDurationDays      *int    `json:"test_duration_days" validate:"omitempty,min=1"`
	EnableManualPayment   *bool   `json:"enable_manual_payment"`
	EnableHostedPayment   *bool   `json:"enable_hosted_payment"`
	EnablePromos          *bool   `json:"enable_promos"`
	EnableReferralCapture *bool   `json:"enable_referral_capture"`
	EnableAffiliateReward *bool   `json:"enable_affiliate_reward"`
	EnableNewPurchases    *bool   `json:"enable_new_purchases"`
	EnableRenewals        *bool   `json:"enable_renewals"`
	AffiliateRewardType   *string `json:"affiliate_reward_type" validate:"omitempty,oneof=FIXED PERCENT"`
	AffiliateRewardValue  *int64  `json:"affiliate_reward_value" validate:"omitempty,min=0"`
	ManualCardNumber      *string `json:"manual_card_number" validate:"omitempty,max=64"`
	SupportHandle         *string `json:"support_handle" validate:"omitempty,max=64"`
	NotifyDaysLeft        *int    `json:"notify_days_left" validate:"omitempty,min=0"`
	NotifyGBLeft          *int    `json:"notify_gb_left" validate:"omitempty,min=0"`
}
