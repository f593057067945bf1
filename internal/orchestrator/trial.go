package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
)

// CreateTestSubscription provisions the one free trial a user is entitled to.
// The trial flag is claimed before any remote call and released again if
// provisioning fails.
func (o *Orchestrator) CreateTestSubscription(ctx context.Context, telegramID int64) (*models.Service, error) {
	setting, err := o.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !setting.TestEnabled {
		return nil, apperror.ErrTestDisabled
	}

	user, err := o.user(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	reserved, err := o.users.ReserveTrial(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("reserve trial: %w", err)
	}
	if !reserved {
		return nil, apperror.ErrTestAlreadyUsed
	}

	traffic := setting.TestTrafficBytes
	if traffic <= 0 {
		traffic = models.GBToBytes(1)
	}
	days := setting.TestDurationDays
	if days <= 0 {
		days = 1
	}
	now := o.now()

	svc, err := o.provision(ctx, provisionRequest{
		User:         user,
		Name:         fmt.Sprintf("test-%04d", now.UnixMilli()%10000),
		TrafficBytes: traffic,
		ExpireAt:     now.Add(time.Duration(days) * 24 * time.Hour),
		IsTest:       true,
	})
	if err != nil {
		if rerr := o.users.ReleaseTrial(context.WithoutCancel(ctx), user.ID); rerr != nil {
			o.log.Error("Failed to release trial reservation", zap.Uint("user_id", user.ID), zap.Error(rerr))
		}
		return nil, err
	}

	o.log.Info("Trial service created", zap.Int64("telegram_id", telegramID), zap.Uint("service_id", svc.ID))
	return svc, nil
}
