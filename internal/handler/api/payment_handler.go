package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/repository"
)

// PaymentHandler lists payments and lets admins settle manual ones.
type PaymentHandler struct {
	deps Deps
}

func NewPaymentHandler(deps Deps) *PaymentHandler {
	return &PaymentHandler{deps: deps}
}

// List handles GET /api/payments.
func (h *PaymentHandler) List(c echo.Context) error {
	var req models.PaymentsListRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	limit, page := pageParams(req.Limit, req.Page)

	payments, total, err := h.deps.Payments.FindAll(c.Request().Context(), limit, page, repository.PaymentFilter{
		Status: models.PaymentStatus(req.Status),
		Type:   models.PaymentType(req.Type),
	})
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Successful", paginatedResponse(payments, total, page, limit))
}

// Get handles GET /api/payments/:id.
func (h *PaymentHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	p, err := h.deps.Payments.FindByIDWithUser(c.Request().Context(), id)
	if repository.IsNotFound(err) {
		err = apperror.ErrPaymentNotFound
	}
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Successful", p)
}

// Approve handles POST /api/payments/:id/approve.
func (h *PaymentHandler) Approve(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	var req models.PaymentReviewRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}

	ctx := c.Request().Context()
	f, err := h.deps.Reviewer.ApproveManualPayment(ctx, id, req.AdminID)
	if err != nil {
		if failed, ok := orchestrator.FailedFulfillment(err); ok {
			h.deps.Notify.PaymentFailed(ctx, failed, err)
		}
		return failure(c, h.deps.Logger, err)
	}
	if f.Duplicate {
		return successResponse(c, "Already approved", f.Payment)
	}
	h.deps.Logger.Info("Payment approved via API", zap.Uint("payment_id", id), zap.Int64("admin_id", req.AdminID))
	h.deps.Notify.PaymentCompleted(ctx, f)
	return successResponse(c, "Approved", f.Payment)
}

// Reject handles POST /api/payments/:id/reject.
func (h *PaymentHandler) Reject(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	var req models.PaymentReviewRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}

	ctx := c.Request().Context()
	p, err := h.deps.Reviewer.RejectManualPayment(ctx, id, req.AdminID, req.Note)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	h.deps.Notify.PaymentRejected(ctx, p)
	return successResponse(c, "Rejected", p)
}

// Fail handles POST /api/payments/:id/fail.
func (h *PaymentHandler) Fail(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	var req models.PaymentFailRequest
	if err := bind(c, &req); err != nil {
		return failure(c, h.deps.Logger, err)
	}

	ctx := c.Request().Context()
	if err := h.deps.Reviewer.MarkPaymentFailed(ctx, id, req.Reason); err != nil {
		return failure(c, h.deps.Logger, err)
	}
	p, err := h.deps.Payments.FindByID(ctx, id)
	if err != nil {
		return failure(c, h.deps.Logger, err)
	}
	return successResponse(c, "Marked as failed", p)
}
