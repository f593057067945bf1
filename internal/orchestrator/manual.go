package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/models"
	"vpnstore/internal/repository"
)

// SubmitManualReceipt attaches a receipt photo to the user's manual payment
// and puts it in the review queue.
func (o *Orchestrator) SubmitManualReceipt(ctx context.Context, paymentID uint, telegramID int64, fileID string) (*models.Payment, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, apperror.ErrPayloadInvalid
	}
	p, err := o.owned(ctx, paymentID, telegramID)
	if err != nil {
		return nil, err
	}
	if p.Gateway != models.GatewayManual {
		return nil, apperror.ErrPaymentNotFound.WithMessage("پرداخت دستی پیدا نشد")
	}

	attached, err := o.payments.AttachReceipt(ctx, p.ID, fileID)
	if err != nil {
		return nil, fmt.Errorf("attach receipt: %w", err)
	}
	if !attached {
		return nil, apperror.ErrInvalidPaymentState.WithMessage("این پرداخت قابل ارسال رسید نیست")
	}

	p.Status = models.StatusWaitingReview
	p.ManualReceiptFileID = fileID
	o.log.Info("Manual receipt submitted", zap.Uint("payment_id", p.ID), zap.Int64("telegram_id", telegramID))
	return p, nil
}

// LatestManualPayment returns the user's newest manual payment that still accepts a receipt.
func (o *Orchestrator) LatestManualPayment(ctx context.Context, telegramID int64) (*models.Payment, error) {
	user, err := o.users.FindByTelegramID(ctx, telegramID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPaymentNotFound.WithMessage("پرداخت دستی در انتظار رسید ندارید")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	p, err := o.payments.FindLatestManual(ctx, user.ID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPaymentNotFound.WithMessage("پرداخت دستی در انتظار رسید ندارید")
	}
	return p, err
}

// ApproveManualPayment records the reviewing admin and completes the payment.
// A second approval of the same payment is a no-op returning a duplicate Fulfillment.
func (o *Orchestrator) ApproveManualPayment(ctx context.Context, paymentID uint, adminTelegramID int64) (*Fulfillment, error) {
	p, err := o.payments.FindByID(ctx, paymentID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if p.Gateway != models.GatewayManual {
		return nil, apperror.ErrGatewayInvalid
	}

	if !p.Status.Terminal() && p.Status != models.StatusProcessing {
		if err := o.payments.SetReviewer(ctx, p.ID, adminTelegramID); err != nil {
			return nil, fmt.Errorf("set reviewer: %w", err)
		}
	}

	f, err := o.ProcessSuccessfulPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if !f.Duplicate {
		o.log.Info("Manual payment approved", zap.Uint("payment_id", p.ID), zap.Int64("admin_id", adminTelegramID))
	}
	return f, nil
}

// RejectManualPayment cancels a manual payment under review.
// Rejecting an already canceled payment returns it unchanged.
func (o *Orchestrator) RejectManualPayment(ctx context.Context, paymentID uint, adminTelegramID int64, note string) (*models.Payment, error) {
	p, err := o.payments.FindByIDWithUser(ctx, paymentID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if p.Gateway != models.GatewayManual {
		return nil, apperror.ErrGatewayInvalid
	}

	if strings.TrimSpace(note) == "" {
		note = "رد شده توسط ادمین"
	}
	canceled, err := o.payments.TransitionStatus(ctx, p.ID, openStatuses, models.StatusCanceled,
		map[string]interface{}{
			"reviewed_by_admin_id": adminTelegramID,
			"review_note":          note,
		})
	if err != nil {
		return nil, fmt.Errorf("reject payment: %w", err)
	}
	if !canceled {
		current, err := o.payments.FindByIDWithUser(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("find payment: %w", err)
		}
		if current.Status == models.StatusCanceled {
			return current, nil
		}
		return nil, apperror.ErrInvalidPaymentState
	}

	metrics.IncPaymentCompleted(string(p.Type), "rejected")
	o.log.Info("Manual payment rejected", zap.Uint("payment_id", p.ID), zap.Int64("admin_id", adminTelegramID))
	p.Status = models.StatusCanceled
	p.ReviewedByAdminID = &adminTelegramID
	p.ReviewNote = note
	return p, nil
}

// CancelPayment lets a user abandon one of their own open payments.
func (o *Orchestrator) CancelPayment(ctx context.Context, paymentID uint, telegramID int64) (*models.Payment, error) {
	p, err := o.owned(ctx, paymentID, telegramID)
	if err != nil {
		return nil, err
	}
	canceled, err := o.payments.TransitionStatus(ctx, p.ID, openStatuses, models.StatusCanceled,
		map[string]interface{}{"review_note": "لغو توسط کاربر"})
	if err != nil {
		return nil, fmt.Errorf("cancel payment: %w", err)
	}
	if !canceled {
		return nil, apperror.ErrInvalidPaymentState.WithMessage("این پرداخت قابل لغو نیست")
	}
	metrics.IncPaymentCompleted(string(p.Type), "canceled")
	o.log.Info("Payment canceled by user", zap.Uint("payment_id", p.ID), zap.Int64("telegram_id", telegramID))
	p.Status = models.StatusCanceled
	return p, nil
}
