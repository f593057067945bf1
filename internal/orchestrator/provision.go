package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/metrics"
	"vpnstore/internal/models"
	"vpnstore/internal/panel"
	"vpnstore/internal/pkg/utils"
	"vpnstore/internal/repository"
)

type provisionRequest struct {
	User         *models.User
	PlanID       *uint
	Name         string
	TrafficBytes int64
	ExpireAt     time.Time
	Group        string
	IsTest       bool
}

// provision creates the remote account and then the local Service.
// If the local write fails the remote account is deleted again.
func (o *Orchestrator) provision(ctx context.Context, req provisionRequest) (*models.Service, error) {
	username := utils.RemoteUsername(req.User.TelegramID, req.Name)
	acc, err := o.panel.CreateAccount(ctx, panel.CreateAccountRequest{
		Username:          username,
		TrafficLimitBytes: req.TrafficBytes,
		ExpireAt:          req.ExpireAt,
		TelegramID:        req.User.TelegramID,
		Group:             req.Group,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote account: %w", err)
	}

	link := acc.SubscriptionURL
	if link == "" {
		link, err = o.panel.GetSubscriptionLink(ctx, acc.ID)
		if err != nil {
			o.log.Warn("Subscription link unavailable", zap.String("remote_id", acc.ID), zap.Error(err))
		}
	}

	svc := &models.Service{
		UserID:            req.User.ID,
		PlanID:            req.PlanID,
		Name:              req.Name,
		RemoteUsername:    username,
		RemoteID:          acc.ID,
		ShortID:           acc.ShortID,
		SubscriptionURL:   link,
		TrafficLimitBytes: req.TrafficBytes,
		ExpireAt:          req.ExpireAt,
		IsActive:          true,
		IsTest:            req.IsTest,
	}
	if err := o.services.Create(ctx, svc); err != nil {
		o.compensate(ctx, acc.ID, username, err)
		if repository.IsDuplicate(err) {
			return nil, apperror.ErrServiceNameDuplicate
		}
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// compensate deletes a remote account whose local record could not be kept.
// A failure here leaves an orphan on the panel and is logged for operators;
// the caller still returns the original error.
func (o *Orchestrator) compensate(ctx context.Context, remoteID, username string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	err := o.panel.DeleteAccount(ctx, remoteID)
	metrics.IncCompensation(err)
	if err != nil {
		o.log.Error("saga compensation failed",
			zap.Bool("integrity", true),
			zap.String("remote_id", remoteID),
			zap.String("remote_username", username),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	o.log.Warn("Remote account rolled back",
		zap.String("remote_id", remoteID),
		zap.String("remote_username", username),
		zap.NamedError("cause", cause),
	)
}

// rollbackService undoes a provisioned purchase whose payment could not be
// committed as SUCCESS.
func (o *Orchestrator) rollbackService(ctx context.Context, svc *models.Service, cause error) {
	if svc == nil {
		return
	}
	if err := o.services.Delete(context.WithoutCancel(ctx), svc.ID); err != nil {
		o.log.Error("Failed to delete service after failed completion",
			zap.Uint("service_id", svc.ID),
			zap.Bool("integrity", true),
			zap.Error(err),
		)
	}
	o.compensate(ctx, svc.RemoteID, svc.RemoteUsername, cause)
}
