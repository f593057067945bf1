// Package api serves the admin REST API.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/orchestrator"
	"vpnstore/internal/promo"
	"vpnstore/internal/repository"
	"vpnstore/internal/wallet"
)

// PaymentReviewer is the part of the orchestrator the admin API drives.
type PaymentReviewer interface {
	ApproveManualPayment(ctx context.Context, paymentID uint, adminTelegramID int64) (*orchestrator.Fulfillment, error)
	RejectManualPayment(ctx context.Context, paymentID uint, adminTelegramID int64, note string) (*models.Payment, error)
	MarkPaymentFailed(ctx context.Context, paymentID uint, reason string) error
}

// ReviewNotifier tells users about admin decisions.
type ReviewNotifier interface {
	PaymentCompleted(ctx context.Context, f *orchestrator.Fulfillment)
	PaymentFailed(ctx context.Context, p *models.Payment, cause error)
	PaymentRejected(ctx context.Context, p *models.Payment)
}

// Deps bundles everything the API handlers need.
type Deps struct {
	Payments *repository.PaymentRepository
	Plans    *repository.PlanRepository
	Users    *repository.UserRepository
	Reviewer PaymentReviewer
	Notify   ReviewNotifier
	Promos   *promo.Resolver
	Ledger   *wallet.Ledger
	Logger   *zap.Logger
}

var validate = validator.New()

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, code int, msg string) error {
	return c.JSON(code, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

// failure maps err to a status code and a message safe to return.
func failure(c echo.Context, log *zap.Logger, err error) error {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Admin API request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return c.JSON(status, models.APIResponse{Status: false, Msg: ae.Message, Obj: map[string]string{"code": ae.Code}})
	}
	return errorResponse(c, status, apperror.GenericMessage)
}

func paginatedResponse(data interface{}, total int64, page, limit int) models.PaginatedResponse {
	return models.PaginatedResponse{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	}
}

func totalPages(total int64, limit int) int {
	if limit <= 0 {
		limit = 50
	}
	pages := int(total) / limit
	if int(total)%limit != 0 {
		pages++
	}
	if pages == 0 {
		pages = 1
	}
	return pages
}

func pageParams(limit, page int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if page <= 0 {
		page = 1
	}
	return limit, page
}

// bind decodes the request into v and checks its validate tags.
func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperror.ErrPayloadInvalid.Wrap(err)
	}
	if err := validate.Struct(v); err != nil {
		return apperror.ErrPayloadInvalid.WithMessage(err.Error())
	}
	return nil
}

func idParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.ErrPayloadInvalid.WithMessage(name + " is invalid")
	}
	return uint(id), nil
}
