package api

import (
	"github.com/labstack/echo/v4"

	"vpnstore/internal/models"
	"vpnstore/internal/promo"
)

// PromoHandler manages discount codes.
type PromoHandler struct {
	deps Deps
}

func NewPromoHandler(deps Deps) *PromoHandler {
	return &PromoHandler{deps: deps}
}

// List handles GET /api/promos.
func (h *PromoHandler) List(c echo.Context) error {
	var q struct {
		Limit int `query:"limit"`
		Page  int `query:"page"`
	}
	if err := bind(c, &q); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	limit, page := pageParams(q.Limit, q.Page)

	promos, total, err := h.deps.Promos.List(c.Request().Context(), limit, page)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Successful", paginatedResponse(promos, total, page, limit))
}

// Create handles POST /api/promos.
func (h *PromoHandler) Create(c echo.Context) error {
	var req models.PromoAddRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	p, err := h.deps.Promos.Create(c.Request().Context(), promo.CreateInput{
		Code:            req.Code,
		DiscountPercent: req.DiscountPercent,
		FixedTomans:     req.FixedTomans,
		UsesLeft:        req.UsesLeft,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Promo created successfully", p)
}

// Deactivate handles DELETE /api/promos/:id.
func (h *PromoHandler) Deactivate(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	if err := h.deps.Promos.Deactivate(c.Request().Context(), id); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Promo deactivated", nil)
}
