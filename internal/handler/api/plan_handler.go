package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/repository"
)

// PlanHandler manages the plan catalog.
type PlanHandler struct {
	deps Deps
}

func NewPlanHandler(deps Deps) *PlanHandler {
	return &PlanHandler{deps: deps}
}

// List handles GET /api/plans. Pass ?active=true to hide disabled plans.
func (h *PlanHandler) List(c echo.Context) error {
	plans, err := h.deps.Plans.FindAll(c.Request().Context(), c.QueryParam("active") == "true")
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Successful", plans)
}

// Get handles GET /api/plans/:id.
func (h *PlanHandler) Get(c echo.Context) error {
	plan, err := h.find(c)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Successful", plan)
}

// Create handles POST /api/plans.
func (h *PlanHandler) Create(c echo.Context) error {
	var req models.PlanAddRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}

	plan := &models.Plan{
		Name:         req.Name,
		TrafficGB:    req.TrafficGB,
		DurationDays: req.DurationDays,
		PriceTomans:  req.PriceTomans,
		PanelGroup:   req.PanelGroup,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if err := h.deps.Plans.Create(c.Request().Context(), plan); err != nil {
		if repository.IsDuplicate(err) {
			return failure(c, h.deps.Logger, apperror.ErrPayloadInvalid.WithMessage("پلنی با همین مشخصات وجود دارد"))
		}
		return failure(c, h.deps.Logger, err)
	}
	h.deps.Logger.Info("Plan created", zap.Uint("plan_id", plan.ID), zap.String("name", plan.Name))
	return successResponse(c, "Plan created successfully", plan)
}

// Update handles PUT /api/plans/:id.
func (h *PlanHandler) Update(c echo.Context) error {
	plan, err := h.find(c)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	var req models.PlanEditRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.TrafficGB != nil {
		updates["traffic_gb"] = *req.TrafficGB
	}
	if req.DurationDays != nil {
		updates["duration_days"] = *req.DurationDays
	}
	if req.PriceTomans != nil {
		updates["price_tomans"] = *req.PriceTomans
	}
	if req.PanelGroup != nil {
		updates["panel_group"] = *req.PanelGroup
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		return failure(c, h.deps.Logger, apperror.ErrPayloadInvalid.WithMessage("No fields to update"))
	}

	ctx := c.Request().Context()
	if err := h.deps.Plans.Update(ctx, plan.ID, updates); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	plan, err = h.deps.Plans.FindByID(ctx, plan.ID)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Plan updated successfully", plan)
}

// Delete handles DELETE /api/plans/:id. Plans still referenced by a payment
// or service answer 409 PLAN_IN_USE.
func (h *PlanHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	if err := h.deps.Plans.Delete(c.Request().Context(), id); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	h.deps.Logger.Info("Plan deleted", zap.Uint("plan_id", id))
	return successResponse(c, "Plan deleted successfully", nil)
}

func (h *PlanHandler) find(c echo.Context) (*models.Plan, error) {
	id, err := idParam(c, "id")
	if err != nil {
		return nil, err
	}
	plan, err := h.deps.Plans.FindByID(c.Request().Context(), id)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPlanNotFound
	}
	return plan, err
}
