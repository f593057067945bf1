package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vpnstore/internal/metrics"
	"vpnstore/internal/models"
)

const (
	staleBatchSize = 100
	staleNote      = "مهلت پرداخت به پایان رسید"
)

// ExpireStalePayments cancels hosted payments left PENDING for longer than
// olderThan, and manual payments that never received a receipt. Manual
// payments with a receipt wait for an admin regardless of age.
func (o *Orchestrator) ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := o.now().Add(-olderThan)
	expired := 0
	var lastID uint

	for {
		batch, err := o.payments.FindStale(ctx,
			[]models.PaymentStatus{models.StatusPending, models.StatusWaitingReview},
			[]models.PaymentGateway{models.GatewayHosted, models.GatewayManual},
			cutoff, lastID, staleBatchSize)
		if err != nil {
			return expired, fmt.Errorf("find stale payments: %w", err)
		}

		for _, p := range batch {
			lastID = p.ID

			var canceled bool
			switch p.Gateway {
			case models.GatewayHosted:
				canceled, err = o.payments.TransitionStatus(ctx, p.ID,
					[]models.PaymentStatus{models.StatusPending}, models.StatusCanceled,
					map[string]interface{}{"review_note": staleNote})
			case models.GatewayManual:
				canceled, err = o.payments.CancelUnattended(ctx, p.ID, staleNote)
			}
			if err != nil {
				o.log.Warn("Failed to expire payment", zap.Uint("payment_id", p.ID), zap.Error(err))
				continue
			}
			if canceled {
				expired++
				metrics.IncPaymentCompleted(string(p.Type), "expired")
			}
		}

		if len(batch) < staleBatchSize {
			break
		}
	}

	if expired > 0 {
		o.log.Info("Stale payments expired", zap.Int("count", expired), zap.Time("cutoff", cutoff))
	}
	return expired, nil
}
