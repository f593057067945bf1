package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"vpnstore/internal/models"
	"vpnstore/internal/wallet"
)

// gatewayAdapter is the per-gateway part of payment creation.
type gatewayAdapter interface {
	initialStatus() models.PaymentStatus
	// afterCreate runs right after the payment row is stored. It returns a
	// Fulfillment only when the payment completed synchronously.
	afterCreate(ctx context.Context, p *models.Payment) (*Fulfillment, error)
}

// walletAdapter pays from the user's balance and completes immediately.
type walletAdapter struct {
	o *Orchestrator
}

func (walletAdapter) initialStatus() models.PaymentStatus { return models.StatusPending }

func (a walletAdapter) afterCreate(ctx context.Context, p *models.Payment) (*Fulfillment, error) {
	o := a.o
	paymentID := p.ID
	entry := wallet.Entry{
		UserID:      p.UserID,
		Amount:      p.AmountTomans,
		Type:        models.WalletTxPurchase,
		Description: p.Description,
		PaymentID:   &paymentID,
	}
	if _, err := o.ledger.Debit(ctx, entry); err != nil {
		o.failQuietly(ctx, p.ID, "پرداخت از کیف پول ناموفق بود")
		return nil, err
	}

	f, err := o.ProcessSuccessfulPayment(ctx, p.ID)
	if err == nil {
		return f, nil
	}

	o.failQuietly(ctx, p.ID, "پرداخت از کیف پول ناموفق بود")
	o.refund(ctx, p)
	// the debit is returned, so nothing is owed to the user
	var fe *FulfillmentError
	if errors.As(err, &fe) {
		err = fe.Err
	}
	return nil, err
}

// refund credits back a wallet debit unless the payment ended up SUCCESS.
func (o *Orchestrator) refund(ctx context.Context, p *models.Payment) {
	ctx = context.WithoutCancel(ctx)
	current, err := o.payments.FindByID(ctx, p.ID)
	if err != nil {
		o.log.Error("Failed to load payment for refund", zap.Uint("payment_id", p.ID), zap.Error(err))
		return
	}
	if current.Status == models.StatusSuccess {
		return
	}

	paymentID := p.ID
	balance, err := o.ledger.Credit(ctx, wallet.Entry{
		UserID:      p.UserID,
		Amount:      p.AmountTomans,
		Type:        models.WalletTxRefund,
		Description: "بازگشت وجه " + p.Description,
		PaymentID:   &paymentID,
	})
	if err != nil {
		o.log.Error("Wallet refund failed",
			zap.Uint("payment_id", p.ID),
			zap.Uint("user_id", p.UserID),
			zap.Int64("amount", p.AmountTomans),
			zap.Bool("integrity", true),
			zap.Error(err),
		)
		return
	}
	o.log.Info("Wallet refunded", zap.Uint("payment_id", p.ID), zap.Int64("balance", balance))
}

// hostedAdapter leaves the payment PENDING; the order is opened with CreateHostedOrder.
type hostedAdapter struct{}

func (hostedAdapter) initialStatus() models.PaymentStatus { return models.StatusPending }

func (hostedAdapter) afterCreate(context.Context, *models.Payment) (*Fulfillment, error) {
	return nil, nil
}

// manualAdapter waits for a receipt and an admin decision.
type manualAdapter struct{}

func (manualAdapter) initialStatus() models.PaymentStatus { return models.StatusWaitingReview }

func (manualAdapter) afterCreate(context.Context, *models.Payment) (*Fulfillment, error) {
	return nil, nil
}
