package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/models"
	"vpnstore/internal/panel"
	"vpnstore/internal/pkg/utils"
	"vpnstore/internal/repository"
	"vpnstore/internal/wallet"
)

const (
	completionFailedNote = "تکمیل پرداخت با خطا مواجه شد"
	compensationTimeout  = 30 * time.Second
)

var openStatuses = []models.PaymentStatus{models.StatusPending, models.StatusWaitingReview}

// ProcessSuccessfulPayment completes a paid payment exactly once.
//
// The caller that moves the payment from PENDING or WAITING_REVIEW to
// PROCESSING performs the fulfillment. Any other caller gets the outcome of
// the current status: a SUCCESS payment returns a Fulfillment with Duplicate
// set, a PROCESSING one returns apperror.ErrPaymentInProgress and anything
// else apperror.ErrInvalidPaymentState.
//
// When fulfillment fails the payment is moved to FAILED and a
// *FulfillmentError carrying it is returned.
func (o *Orchestrator) ProcessSuccessfulPayment(ctx context.Context, paymentID uint) (*Fulfillment, error) {
	locked, err := o.payments.TransitionStatus(ctx, paymentID, openStatuses, models.StatusProcessing, nil)
	if err != nil {
		return nil, fmt.Errorf("lock payment: %w", err)
	}
	if !locked {
		return o.settled(ctx, paymentID)
	}

	p, err := o.payments.FindByIDWithUser(ctx, paymentID)
	if err != nil {
		o.failProcessing(ctx, paymentID, err)
		return nil, fmt.Errorf("load payment: %w", err)
	}

	f, err := o.complete(ctx, p)
	if err != nil {
		metrics.IncPaymentCompleted(string(p.Type), "failed")
		o.log.Error("Payment completion failed",
			zap.Uint("payment_id", p.ID),
			zap.String("type", string(p.Type)),
			zap.String("gateway", string(p.Gateway)),
			zap.Error(err),
		)
		o.failProcessing(ctx, p.ID, err)
		p.Status = models.StatusFailed
		return nil, &FulfillmentError{Payment: p, Err: err}
	}

	metrics.IncPaymentCompleted(string(p.Type), "success")
	o.log.Info("Payment completed",
		zap.Uint("payment_id", p.ID),
		zap.String("type", string(p.Type)),
		zap.Int64("amount", p.AmountTomans),
	)
	return f, nil
}

// FulfillmentError is returned when a payment was confirmed but delivering it
// failed. The payment has been moved to FAILED and the user is owed a follow-up.
type FulfillmentError struct {
	Payment *models.Payment
	Err     error
}

func (e *FulfillmentError) Error() string { return e.Err.Error() }

func (e *FulfillmentError) Unwrap() error { return e.Err }

// FailedFulfillment returns the payment whose delivery failed, if err says so.
// Lock conflicts, missing payments and terminal states report false.
func FailedFulfillment(err error) (*models.Payment, bool) {
	var fe *FulfillmentError
	if errors.As(err, &fe) && fe.Payment != nil {
		return fe.Payment, true
	}
	return nil, false
}

// settled explains why the PROCESSING lock could not be taken.
func (o *Orchestrator) settled(ctx context.Context, paymentID uint) (*Fulfillment, error) {
	current, err := o.payments.FindByIDWithUser(ctx, paymentID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}

	switch current.Status {
	case models.StatusSuccess:
		metrics.IncPaymentCompleted(string(current.Type), "duplicate")
		return &Fulfillment{Payment: current, Duplicate: true}, nil
	case models.StatusProcessing:
		return nil, apperror.ErrPaymentInProgress
	default:
		return nil, apperror.ErrInvalidPaymentState
	}
}

// complete runs the fulfillment of a locked payment. The promo use is taken
// first so an exhausted code never provisions anything; it is given back if a
// later step fails.
func (o *Orchestrator) complete(ctx context.Context, p *models.Payment) (*Fulfillment, error) {
	if p.PromoCodeID != nil {
		if err := o.promos.Redeem(ctx, *p.PromoCodeID, p.UserID, p.ID); err != nil {
			return nil, err
		}
	}

	f := &Fulfillment{Payment: p}
	var err error
	switch p.Type {
	case models.PaymentTypePurchase:
		f.Service, err = o.fulfillPurchase(ctx, p)
	case models.PaymentTypeRenewal:
		f.Service, err = o.fulfillRenewal(ctx, p)
	case models.PaymentTypeWalletCharge:
		// credited inside finalize
	default:
		err = apperror.ErrPayloadInvalid
	}
	if err == nil {
		err = o.finalize(ctx, p, f)
		if err != nil && p.Type == models.PaymentTypePurchase {
			o.rollbackService(ctx, f.Service, err)
		}
	}
	if err != nil {
		if p.PromoCodeID != nil {
			if rerr := o.promos.Release(context.WithoutCancel(ctx), *p.PromoCodeID, p.ID); rerr != nil {
				o.log.Error("Failed to release promo use", zap.Uint("payment_id", p.ID), zap.Error(rerr))
			}
		}
		return nil, err
	}

	if fresh, err := o.payments.FindByIDWithUser(ctx, p.ID); err == nil {
		f.Payment = fresh
	}
	return f, nil
}

// finalize commits the database side of a completion in one transaction:
// the wallet credit of a charge, the referrer reward and the SUCCESS status.
func (o *Orchestrator) finalize(ctx context.Context, p *models.Payment, f *Fulfillment) error {
	setting, err := o.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	completedAt := o.now()
	paymentID := p.ID

	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.Type == models.PaymentTypeWalletCharge {
			balance, err := o.ledger.CreditTx(ctx, tx, wallet.Entry{
				UserID:      p.UserID,
				Amount:      p.AmountTomans,
				Type:        models.WalletTxCharge,
				Description: "شارژ کیف پول از درگاه",
				PaymentID:   &paymentID,
			})
			if err != nil {
				return fmt.Errorf("credit wallet: %w", err)
			}
			f.NewBalance = balance
		}

		if err := o.rewardReferrer(ctx, tx, p, setting); err != nil {
			return fmt.Errorf("affiliate reward: %w", err)
		}

		done, err := o.payments.WithTx(tx).TransitionStatus(ctx, p.ID,
			[]models.PaymentStatus{models.StatusProcessing}, models.StatusSuccess,
			map[string]interface{}{"completed_at": completedAt})
		if err != nil {
			return fmt.Errorf("mark payment success: %w", err)
		}
		if !done {
			return apperror.ErrInvalidPaymentState
		}
		return nil
	})
}

// rewardReferrer credits the referrer on the user's first completed purchase.
func (o *Orchestrator) rewardReferrer(ctx context.Context, tx *gorm.DB, p *models.Payment, setting *models.Setting) error {
	if p.Type != models.PaymentTypePurchase || !setting.EnableAffiliateReward {
		return nil
	}
	if p.User == nil || p.User.ReferredByID == nil || p.User.AffiliateRewardProcessed {
		return nil
	}

	marked, err := o.users.WithTx(tx).MarkAffiliateRewarded(ctx, p.UserID, o.now())
	if err != nil || !marked {
		return err
	}

	reward := setting.AffiliateReward(p.AmountTomans)
	if reward <= 0 {
		return nil
	}
	paymentID := p.ID
	_, err = o.ledger.CreditTx(ctx, tx, wallet.Entry{
		UserID:      *p.User.ReferredByID,
		Amount:      reward,
		Type:        models.WalletTxAffiliateReward,
		Description: fmt.Sprintf("پاداش همکاری فروش از خرید کاربر %d", p.User.TelegramID),
		PaymentID:   &paymentID,
	})
	if errors.Is(err, apperror.ErrUserNotFound) {
		o.log.Warn("Referrer no longer exists", zap.Uint("payment_id", p.ID), zap.Uint("referrer_id", *p.User.ReferredByID))
		return nil
	}
	return err
}

func (o *Orchestrator) fulfillPurchase(ctx context.Context, p *models.Payment) (*models.Service, error) {
	details, ok := p.Details.Purchase()
	if !ok || p.PlanID == nil || p.User == nil {
		return nil, apperror.ErrPayloadInvalid
	}
	if !utils.ValidServiceName(details.ServiceName) {
		return nil, apperror.ErrServiceNameInvalid
	}

	exists, err := o.services.NameExists(ctx, p.UserID, details.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("check service name: %w", err)
	}
	if exists {
		return nil, apperror.ErrServiceNameDuplicate
	}

	plan, err := o.plans.FindByID(ctx, *p.PlanID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}

	planID := plan.ID
	return o.provision(ctx, provisionRequest{
		User:         p.User,
		PlanID:       &planID,
		Name:         details.ServiceName,
		TrafficBytes: plan.TrafficBytes(),
		ExpireAt:     o.now().Add(plan.Duration()),
		Group:        plan.PanelGroup,
	})
}

// fulfillRenewal extends the service from max(now, expiry), re-enables the
// remote account and clears its usage before the local row is updated.
func (o *Orchestrator) fulfillRenewal(ctx context.Context, p *models.Payment) (*models.Service, error) {
	if p.TargetServiceID == nil {
		return nil, apperror.ErrPayloadInvalid
	}
	svc, err := o.services.FindByID(ctx, *p.TargetServiceID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find service: %w", err)
	}

	planID := svc.PlanID
	if p.PlanID != nil {
		planID = p.PlanID
	}
	if planID == nil {
		return nil, apperror.ErrPayloadInvalid
	}
	plan, err := o.plans.FindByID(ctx, *planID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}

	base := o.now()
	if svc.ExpireAt.After(base) {
		base = svc.ExpireAt
	}
	expireAt := base.Add(plan.Duration())
	traffic := plan.TrafficBytes()

	remoteID := svc.RemoteID
	if remoteID == "" {
		acc, err := o.panel.GetAccountByUsername(ctx, svc.RemoteUsername)
		if err != nil {
			return nil, fmt.Errorf("find remote account: %w", err)
		}
		remoteID = acc.ID
	}

	if _, err := o.panel.UpdateAccount(ctx, panel.UpdateAccountRequest{
		ID:                remoteID,
		TrafficLimitBytes: traffic,
		ExpireAt:          expireAt,
		Enabled:           true,
	}); err != nil {
		return nil, fmt.Errorf("update remote account: %w", err)
	}
	if err := o.panel.ResetUsage(ctx, remoteID); err != nil {
		return nil, fmt.Errorf("reset remote usage: %w", err)
	}

	updates := map[string]interface{}{
		"plan_id":               plan.ID,
		"remote_id":             remoteID,
		"traffic_limit_bytes":   traffic,
		"last_known_used_bytes": 0,
		"expire_at":             expireAt,
		"is_active":             true,
	}
	if err := o.services.Update(ctx, svc.ID, updates); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}

	svc.PlanID = &plan.ID
	svc.Plan = plan
	svc.RemoteID = remoteID
	svc.TrafficLimitBytes = traffic
	svc.LastKnownUsedBytes = 0
	svc.ExpireAt = expireAt
	svc.IsActive = true
	return svc, nil
}

// MarkPaymentFailed moves a non-terminal payment to FAILED with reason as
// review note. A payment that is already terminal is left unchanged.
func (o *Orchestrator) MarkPaymentFailed(ctx context.Context, paymentID uint, reason string) error {
	_, err := o.markFailed(ctx, paymentID, reason)
	return err
}

func (o *Orchestrator) markFailed(ctx context.Context, paymentID uint, reason string) (bool, error) {
	changed, err := o.payments.TransitionStatus(ctx, paymentID,
		[]models.PaymentStatus{models.StatusPending, models.StatusWaitingReview, models.StatusProcessing},
		models.StatusFailed,
		map[string]interface{}{"review_note": reason})
	if err != nil {
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	if !changed {
		if _, err := o.payments.FindByID(ctx, paymentID); repository.IsNotFound(err) {
			return false, apperror.ErrPaymentNotFound
		}
		return false, nil
	}
	o.log.Warn("Payment marked failed", zap.Uint("payment_id", paymentID), zap.String("reason", reason))
	return true, nil
}

// failQuietly is MarkPaymentFailed for paths that are already returning an error.
func (o *Orchestrator) failQuietly(ctx context.Context, paymentID uint, reason string) {
	if err := o.MarkPaymentFailed(context.WithoutCancel(ctx), paymentID, reason); err != nil {
		o.log.Error("Failed to mark payment failed", zap.Uint("payment_id", paymentID), zap.Error(err))
	}
}

// failProcessing releases the PROCESSING lock into FAILED.
func (o *Orchestrator) failProcessing(ctx context.Context, paymentID uint, cause error) {
	note := completionFailedNote
	if code := apperror.Code(cause); code != "" {
		note += " (" + code + ")"
	}
	_, err := o.payments.TransitionStatus(context.WithoutCancel(ctx), paymentID,
		[]models.PaymentStatus{models.StatusProcessing}, models.StatusFailed,
		map[string]interface{}{"review_note": note})
	if err != nil {
		o.log.Error("Failed to release processing payment",
			zap.Uint("payment_id", paymentID),
			zap.Bool("integrity", true),
			zap.Error(err),
		)
	}
}
