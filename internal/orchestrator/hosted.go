package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/payment"
	"vpnstore/internal/repository"
)

// CallbackPath is where the hosted gateway delivers payment results.
const CallbackPath = "/callback/tetra98"

var authorityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ValidAuthority reports whether s looks like a gateway correlation token.
func ValidAuthority(s string) bool {
	return authorityPattern.MatchString(s)
}

// HostedOrder is an order opened at the hosted gateway.
type HostedOrder struct {
	PaymentID uint
	Authority string
	PayLink   string
}

// CreateHostedOrder opens the gateway order of a PENDING hosted payment.
// Calling it again returns the order that was already opened.
func (o *Orchestrator) CreateHostedOrder(ctx context.Context, paymentID uint) (*HostedOrder, error) {
	p, err := o.payments.FindByID(ctx, paymentID)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if p.Gateway != models.GatewayHosted || p.Status != models.StatusPending {
		return nil, apperror.ErrGatewayInvalid.WithMessage("پرداخت برای درگاه قابل ایجاد نیست")
	}
	if p.Authority != nil {
		return o.hostedOrder(p.ID, *p.Authority), nil
	}

	res, err := o.gateway.CreatePayment(ctx, payment.PaymentRequest{
		HashID:      p.HashID,
		AmountRials: p.AmountRials,
		CallbackURL: o.cfg.AppURL + CallbackPath,
	})
	if err != nil {
		return nil, err
	}

	stored, err := o.payments.SetAuthority(ctx, p.ID, res.Authority)
	if err != nil {
		return nil, fmt.Errorf("store authority: %w", err)
	}
	if !stored {
		current, err := o.payments.FindByID(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("find payment: %w", err)
		}
		if current.Authority == nil {
			return nil, apperror.ErrInvalidPaymentState
		}
		o.log.Warn("Hosted order already opened by a concurrent request",
			zap.Uint("payment_id", p.ID),
			zap.String("discarded_authority", res.Authority),
		)
		return o.hostedOrder(p.ID, *current.Authority), nil
	}

	o.log.Info("Hosted order created", zap.Uint("payment_id", p.ID), zap.String("authority", res.Authority))
	return o.hostedOrder(p.ID, res.Authority), nil
}

func (o *Orchestrator) hostedOrder(paymentID uint, authority string) *HostedOrder {
	return &HostedOrder{PaymentID: paymentID, Authority: authority, PayLink: o.gateway.PaymentLink(authority)}
}

// HostedOutcome is the result of one callback delivery.
type HostedOutcome string

const (
	OutcomeSuccess          HostedOutcome = "success"
	OutcomeAlreadyProcessed HostedOutcome = "already_processed"
	OutcomeInProgress       HostedOutcome = "in_progress"
	OutcomeFailed           HostedOutcome = "failed"
	OutcomeVerifyFailed     HostedOutcome = "verify_failed"
	OutcomeInvalidAuthority HostedOutcome = "invalid_authority"
	OutcomeNotFound         HostedOutcome = "not_found"
	OutcomeError            HostedOutcome = "error"
	// OutcomePaidAfterClose means the gateway confirmed the money after the
	// payment was already FAILED or CANCELED. Nothing is delivered.
	OutcomePaidAfterClose HostedOutcome = "paid_after_close"
)

// OK reports whether the payment is (or already was) completed.
func (h HostedOutcome) OK() bool {
	return h == OutcomeSuccess || h == OutcomeAlreadyProcessed
}

// CallbackResult describes what a callback delivery did.
type CallbackResult struct {
	Outcome     HostedOutcome
	Payment     *models.Payment
	Fulfillment *Fulfillment
	// Changed is set when this delivery moved the payment to a final status.
	Changed bool
}

// HandleHostedCallback processes a gateway callback. The client-supplied
// status is never trusted on its own: a success code is confirmed with the
// gateway before fulfillment. A transient verification error leaves the
// payment PENDING so a redelivery can complete it.
func (o *Orchestrator) HandleHostedCallback(ctx context.Context, authority string, status int) (*CallbackResult, error) {
	if !ValidAuthority(authority) {
		return &CallbackResult{Outcome: OutcomeInvalidAuthority}, apperror.ErrAuthorityInvalid
	}

	p, err := o.payments.FindByAuthority(ctx, authority)
	if repository.IsNotFound(err) {
		return &CallbackResult{Outcome: OutcomeNotFound}, apperror.ErrPaymentNotFound
	}
	if err != nil {
		return &CallbackResult{Outcome: OutcomeError}, fmt.Errorf("find payment: %w", err)
	}

	res := &CallbackResult{Payment: p}
	switch p.Status {
	case models.StatusSuccess:
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	case models.StatusProcessing:
		res.Outcome = OutcomeInProgress
		return res, nil
	}

	if status != payment.StatusOK {
		res.Outcome = OutcomeFailed
		res.Changed, err = o.markFailed(ctx, p.ID, fmt.Sprintf("وضعیت callback درگاه موفق نبود (%d)", status))
		return res, err
	}

	verify, err := o.gateway.VerifyPayment(ctx, authority)
	if err != nil {
		o.log.Error("Hosted payment verification failed",
			zap.Uint("payment_id", p.ID),
			zap.String("authority", authority),
			zap.Error(err),
		)
		res.Outcome = OutcomeError
		return res, err
	}
	if !verify.Verified {
		res.Outcome = OutcomeVerifyFailed
		res.Changed, err = o.markFailed(ctx, p.ID, fmt.Sprintf("تایید پرداخت توسط درگاه ناموفق بود (%d)", verify.Status))
		return res, err
	}

	f, err := o.ProcessSuccessfulPayment(ctx, p.ID)
	switch {
	case err == nil && f.Duplicate:
		res.Outcome = OutcomeAlreadyProcessed
		res.Payment = f.Payment
	case err == nil:
		res.Outcome = OutcomeSuccess
		res.Payment = f.Payment
		res.Fulfillment = f
		res.Changed = true
	case errors.Is(err, apperror.ErrPaymentInProgress):
		res.Outcome = OutcomeInProgress
		err = nil
	case errors.Is(err, apperror.ErrInvalidPaymentState):
		return o.paidAfterClose(ctx, res)
	default:
		// fulfillment failed and moved the payment to FAILED
		res.Outcome = OutcomeError
		if failed, ok := FailedFulfillment(err); ok {
			res.Payment = failed
			res.Changed = true
		}
	}
	return res, err
}

// paidAfterClose records a verified payment whose order was already closed.
// Changed is only set for the first delivery so the follow-up is raised once.
func (o *Orchestrator) paidAfterClose(ctx context.Context, res *CallbackResult) (*CallbackResult, error) {
	res.Outcome = OutcomePaidAfterClose
	flagged, err := o.payments.FlagPaidAfterClose(ctx, res.Payment.ID, o.now())
	if err != nil {
		return res, fmt.Errorf("flag paid after close: %w", err)
	}
	res.Changed = flagged
	if current, err := o.payments.FindByID(ctx, res.Payment.ID); err == nil {
		res.Payment = current
	}
	o.log.Warn("Gateway confirmed a closed payment",
		zap.Uint("payment_id", res.Payment.ID),
		zap.String("status", string(res.Payment.Status)),
		zap.Bool("first_delivery", flagged),
	)
	return res, apperror.ErrPaidAfterClose
}

// PaymentByAuthority looks a hosted payment up by its gateway authority.
func (o *Orchestrator) PaymentByAuthority(ctx context.Context, authority string) (*models.Payment, error) {
	if !ValidAuthority(authority) {
		return nil, apperror.ErrAuthorityInvalid
	}
	p, err := o.payments.FindByAuthority(ctx, authority)
	if repository.IsNotFound(err) {
		return nil, apperror.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}
