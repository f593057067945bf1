// Package cron runs the periodic sweeps: stale payments, panel usage sync
// and expired-service cleanup.
package cron

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/internal/models"
	"vpnstore/internal/panel"
	"vpnstore/internal/repository"
)

const (
	batchSize       = 100
	expiredGrace    = 7 * 24 * time.Hour
	deleteAttempts  = 2
	remoteCallLimit = 20 * time.Second
)

// PaymentSweeper cancels payments nobody finished.
type PaymentSweeper interface {
	ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error)
}

// ResourceAlerter warns owners whose services are running out.
type ResourceAlerter interface {
	LowResource(ctx context.Context, telegramID int64, svc *models.Service, gbLeft float64, daysLeft int)
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	DB         *gorm.DB
	Panel      panel.PanelClient
	Payments   PaymentSweeper
	Alerts     ResourceAlerter
	PendingTTL time.Duration
	Logger     *zap.Logger
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	services   *repository.ServiceRepository
	users      *repository.UserRepository
	settings   *repository.SettingRepository
	panel      panel.PanelClient
	payments   PaymentSweeper
	alerts     ResourceAlerter
	pendingTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a scheduler on Tehran wall-clock time.
func New(d Deps) *Scheduler {
	if d.PendingTTL <= 0 {
		d.PendingTTL = 24 * time.Hour
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(tehran()),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		services:   repository.NewServiceRepository(d.DB),
		users:      repository.NewUserRepository(d.DB),
		settings:   repository.NewSettingRepository(d.DB),
		panel:      d.Panel,
		payments:   d.Payments,
		alerts:     d.Alerts,
		pendingTTL: d.PendingTTL,
		logger:     d.Logger,
		now:        time.Now,
	}
}

func tehran() *time.Location {
	if loc, err := time.LoadLocation("Asia/Tehran"); err == nil {
		return loc
	}
	return time.FixedZone("IRST", 3*3600+1800)
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func(context.Context)
	}{
		{"0 */5 * * * *", "expire stale payments", s.expireStalePayments},
		{"0 0 16 * * *", "sync usage", s.syncUsage},
		{"0 0 3 * * *", "cleanup test services", s.cleanupTestServices},
		{"0 0 4 * * *", "cleanup expired services", s.cleanupExpiredServices},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() {
			defer s.recoverFromPanic(j.name)
			s.logger.Debug("Running cron job", zap.String("job", j.name))
			j.run(context.Background())
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("Cron scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop halts scheduling; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// ── Stale payments ────────────────────────────────────────────────────

func (s *Scheduler) expireStalePayments(ctx context.Context) {
	n, err := s.payments.ExpireStalePayments(ctx, s.pendingTTL)
	if err != nil {
		s.logger.Error("Stale payment sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Stale payments canceled", zap.Int("count", n))
	}
}

// ── Usage sync and low-resource alerts ────────────────────────────────

func (s *Scheduler) syncUsage(ctx context.Context) {
	setting, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("Usage sync: failed to load settings", zap.Error(err))
		return
	}

	var synced, alerted, missing int
	owners := make(map[uint]int64)
	var afterID uint
	for {
		batch, err := s.services.FindActive(ctx, afterID, batchSize)
		if err != nil {
			s.logger.Error("Usage sync: failed to load services", zap.Error(err))
			return
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID

		for i := range batch {
			svc := &batch[i]
			ok, err := s.refresh(ctx, svc)
			if err != nil {
				s.logger.Warn("Usage sync failed for service", zap.Uint("service_id", svc.ID), zap.Error(err))
				continue
			}
			if !ok {
				missing++
				continue
			}
			synced++

			if svc.IsTest || !s.lowOnResources(svc, setting) {
				continue
			}
			tg, found := owners[svc.UserID]
			if !found {
				u, err := s.users.FindByID(ctx, svc.UserID)
				if err != nil {
					s.logger.Warn("Usage sync: owner not found", zap.Uint("service_id", svc.ID), zap.Error(err))
					continue
				}
				tg = u.TelegramID
				owners[svc.UserID] = tg
			}
			s.alerts.LowResource(ctx, tg, svc, models.BytesToGB(svc.RemainingBytes()), svc.DaysLeft(s.now()))
			alerted++
		}
	}

	s.logger.Info("Usage sync finished",
		zap.Int("synced", synced),
		zap.Int("alerted", alerted),
		zap.Int("missing", missing),
	)
}

// refresh copies the panel's view of svc into the row. It reports false when
// the panel no longer has the account; the row is then deactivated.
func (s *Scheduler) refresh(ctx context.Context, svc *models.Service) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, remoteCallLimit)
	acct, err := s.panel.GetAccountByUsername(callCtx, svc.RemoteUsername)
	cancel()
	if errors.Is(err, panel.ErrAccountNotFound) {
		s.logger.Warn("Service missing on panel, deactivating", zap.Uint("service_id", svc.ID), zap.String("username", svc.RemoteUsername))
		return false, s.services.Update(ctx, svc.ID, map[string]interface{}{"is_active": false})
	}
	if err != nil {
		return false, err
	}

	updates := map[string]interface{}{
		"last_known_used_bytes": acct.UsedTrafficBytes,
		"traffic_limit_bytes":   acct.TrafficLimitBytes,
	}
	svc.LastKnownUsedBytes = acct.UsedTrafficBytes
	svc.TrafficLimitBytes = acct.TrafficLimitBytes
	if !acct.ExpireAt.IsZero() {
		updates["expire_at"] = acct.ExpireAt
		svc.ExpireAt = acct.ExpireAt
	}
	if acct.SubscriptionURL != "" && acct.SubscriptionURL != svc.SubscriptionURL {
		updates["subscription_url"] = acct.SubscriptionURL
		svc.SubscriptionURL = acct.SubscriptionURL
	}
	return true, s.services.Update(ctx, svc.ID, updates)
}

// lowOnResources is true for a still-usable service under either threshold.
func (s *Scheduler) lowOnResources(svc *models.Service, setting *models.Setting) bool {
	days := svc.DaysLeft(s.now())
	if days <= 0 {
		return false
	}
	if setting.NotifyDaysLeft > 0 && days <= setting.NotifyDaysLeft {
		return true
	}
	if setting.NotifyGBLeft > 0 && svc.TrafficLimitBytes > 0 {
		left := svc.RemainingBytes()
		return left > 0 && left <= models.GBToBytes(setting.NotifyGBLeft)
	}
	return false
}

// ── Expired-service cleanup ───────────────────────────────────────────

func (s *Scheduler) cleanupTestServices(ctx context.Context) {
	n := s.cleanup(ctx, true, s.now())
	s.logger.Info("Expired test services removed", zap.Int("count", n))
}

func (s *Scheduler) cleanupExpiredServices(ctx context.Context) {
	n := s.cleanup(ctx, false, s.now().Add(-expiredGrace))
	s.logger.Info("Expired services removed", zap.Int("count", n))
}

// cleanup deletes services expired before cutoff, remote account first.
// It stops once a batch makes no progress so stuck rows are retried next run.
func (s *Scheduler) cleanup(ctx context.Context, isTest bool, cutoff time.Time) int {
	removed := 0
	for {
		batch, err := s.services.FindExpired(ctx, isTest, cutoff, batchSize)
		if err != nil {
			s.logger.Error("Cleanup: failed to load services", zap.Bool("test", isTest), zap.Error(err))
			return removed
		}
		progress := 0
		for i := range batch {
			if s.remove(ctx, &batch[i]) {
				progress++
			}
		}
		removed += progress
		if progress == 0 || len(batch) < batchSize {
			return removed
		}
	}
}

func (s *Scheduler) remove(ctx context.Context, svc *models.Service) bool {
	fields := []zap.Field{zap.Uint("service_id", svc.ID), zap.String("username", svc.RemoteUsername)}

	if svc.RemoteID != "" {
		var err error
		for attempt := 1; attempt <= deleteAttempts; attempt++ {
			callCtx, cancel := context.WithTimeout(ctx, remoteCallLimit)
			err = s.panel.DeleteAccount(callCtx, svc.RemoteID)
			cancel()
			if err == nil {
				break
			}
		}
		if err != nil {
			s.logger.Warn("Cleanup: remote delete failed", append(fields, zap.Error(err))...)
			return false
		}
	}

	var err error
	for attempt := 1; attempt <= deleteAttempts; attempt++ {
		if err = s.services.Delete(ctx, svc.ID); err == nil {
			s.logger.Debug("Service removed", fields...)
			return true
		}
	}
	s.logger.Error("Cleanup: local delete failed after remote delete", append(fields, zap.Error(err))...)
	return false
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
