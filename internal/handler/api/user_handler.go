package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/repository"
)

// UserHandler exposes users, their ledger and admin balance corrections.
type UserHandler struct {
	deps Deps
}

func NewUserHandler(deps Deps) *UserHandler {
	return &UserHandler{deps: deps}
}

// List handles GET /api/users?q=.
func (h *UserHandler) List(c echo.Context) error {
	var q struct {
		Query string `query:"q"`
		Limit int    `query:"limit"`
		Page  int    `query:"page"`
	}
	if err := bind(c, &q); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	limit, page := pageParams(q.Limit, q.Page)

	users, total, err := h.deps.Users.FindAll(c.Request().Context(), limit, page, q.Query)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Successful", paginatedResponse(users, total, page, limit))
}

// Get handles GET /api/users/:telegram_id with the latest ledger rows.
func (h *UserHandler) Get(c echo.Context) error {
	user, err := h.find(c)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}

	ctx := c.Request().Context()
	history, err := h.deps.Ledger.History(ctx, user.ID, 20)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	referrals, err := h.deps.Users.CountReferrals(ctx, user.ID)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}

	return successResponse(c, "Successful", map[string]interface{}{
		"user":      user,
		"ledger":    history,
		"referrals": referrals,
	})
}

// AdjustWallet handles POST /api/users/:telegram_id/wallet.
// Positive amounts credit, negative amounts debit; the balance never goes below zero.
func (h *UserHandler) AdjustWallet(c echo.Context) error {
	user, err := h.find(c)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	var req models.WalletAdjustRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	desc := req.Description
	if desc == "" {
		desc = "اصلاح موجودی توسط ادمین"
	}

	balance, err := h.deps.Ledger.Adjust(c.Request().Context(), user.ID, req.Amount, desc)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	h.deps.Logger.Info("Wallet adjusted",
		zap.Int64("telegram_id", user.TelegramID),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", balance),
	)
	return successResponse(c, "Balance updated", map[string]int64{"balance": balance})
}

// SetBanned handles POST /api/users/:telegram_id/ban.
func (h *UserHandler) SetBanned(c echo.Context) error {
	user, err := h.find(c)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	var req models.UserBanRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	if err := h.deps.Users.SetBanned(c.Request().Context(), user.ID, req.Banned); err != nil {
		return failure(c, h.deps.Logger, err)
	}

	msg := "User blocked successfully"
	if !req.Banned {
		msg = "User unblocked successfully"
	}
	return successResponse(c, msg, nil)
}

func (h *UserHandler) find(c echo.Context) (*models.User, error) {
	tgID, err := strconv.ParseInt(c.Param("telegram_id"), 10, 64)
	if err != nil || tgID == 0 {
		return nil, apperror.ErrPayloadInvalid.WithMessage("telegram_id is invalid")
	}
	user, err := h.deps.Users.FindByTelegramID(c.Request().Context(), tgID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrUserNotFound
	}
	return user, err
}
