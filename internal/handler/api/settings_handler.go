package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/repository"
)

// SettingsHandler reads and updates the singleton settings row.
type SettingsHandler struct {
	settings *repository.SettingRepository
	logger   *zap.Logger
}

func NewSettingsHandler(settings *repository.SettingRepository, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(c echo.Context) error {
	setting, err := h.settings.Get(c.Request().Context())
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, "Successful", setting)
}

// Update handles PUT /api/settings. Only the fields present in the body change.
func (h *SettingsHandler) Update(c echo.Context) error {
	var req models.SettingsUpdateRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.logger, err)
	}

	updates := make(map[string]interface{})
	setBool := func(col string, v *bool) {
		if v != nil {
			updates[col] = *v
		}
	}
	setBool("test_enabled", req.TestEnabled)
	setBool("enable_manual_payment", req.EnableManualPayment)
	setBool("enable_hosted_payment", req.EnableHostedPayment)
	setBool("enable_promos", req.EnablePromos)
	setBool("enable_referral_capture", req.EnableReferralCapture)
	setBool("enable_affiliate_reward", req.EnableAffiliateReward)
	setBool("enable_new_purchases", req.EnableNewPurchases)
	setBool("enable_renewals", req.EnableRenewals)
	if req.TestTrafficGB != nil {
		updates["test_traffic_bytes"] = models.GBToBytes(*req.TestTrafficGB)
	}
	if req.TestDurationDays != nil {
		updates["test_duration_days"] = *req.TestDurationDays
	}
	if req.AffiliateRewardType != nil {
		updates["affiliate_reward_type"] = *req.AffiliateRewardType
	}
	if req.AffiliateRewardValue != nil {
		updates["affiliate_reward_value"] = *req.AffiliateRewardValue
	}
	if req.ManualCardNumber != nil {
		updates["manual_card_number"] = *req.ManualCardNumber
	}
	if req.SupportHandle != nil {
		updates["support_handle"] = *req.SupportHandle
	}
	if req.NotifyDaysLeft != nil {
		updates["notify_days_left"] = *req.NotifyDaysLeft
	}
	if req.NotifyGBLeft != nil {
		updates["notify_gb_left"] = *req.NotifyGBLeft
	}
	if len(updates) == 0 {
		return failure(c, h.logger, apperror.ErrPayloadInvalid.WithMessage("No fields to update"))
	}

	ctx := c.Request().Context()
	if err := h.settings.Update(ctx, updates); err != nil {
		return failure(c, h.logger, err)
	}
	h.logger.Info("Settings updated", zap.Int("fields", len(updates)))

	setting, err := h.settings.Get(ctx)
	if err != nil {
		return failure(c, h.logger, err)
	}
	return successResponse(c, "Settings saved successfully", setting)
}
