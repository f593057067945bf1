package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vpnstore/internal/models"
)

// StatsRepository aggregates the admin overview.
type StatsRepository struct {
	db       *gorm.DB
	payments *PaymentRepository
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db, payments: NewPaymentRepository(db)}
}

// Collect counts users and services and sums sales. Sales are purchases and
// renewals; wallet charges are reported separately. RecentSales covers the
// payments completed since `since`.
func (r *StatsRepository) Collect(ctx context.Context, since, now time.Time) (*models.StoreStats, error) {
	st := &models.StoreStats{Since: since, GeneratedAt: now}
	db := r.db.WithContext(ctx)

	counts := []struct {
		name  string
		query *gorm.DB
		dst   *int64
	}{
		{"users", db.Model(&models.User{}), &st.Users},
		{"banned users", db.Model(&models.User{}).Where("is_banned = ?", true), &st.BannedUsers},
		{"services", db.Model(&models.Service{}), &st.Services},
		{"active services", db.Model(&models.Service{}).Where("is_active = ?", true), &st.ActiveServices},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", c.name, err)
		}
	}

	var err error
	if st.PendingReviews, err = r.payments.CountByStatus(ctx, models.StatusWaitingReview); err != nil {
		return nil, fmt.Errorf("count pending reviews: %w", err)
	}
	sales := []models.PaymentType{models.PaymentTypePurchase, models.PaymentTypeRenewal}
	if st.TotalSales, err = r.payments.SumSucceeded(ctx, time.Time{}, sales...); err != nil {
		return nil, fmt.Errorf("sum sales: %w", err)
	}
	if st.RecentSales, err = r.payments.SumSucceeded(ctx, since, sales...); err != nil {
		return nil, fmt.Errorf("sum recent sales: %w", err)
	}
	if st.WalletCharges, err = r.payments.SumSucceeded(ctx, time.Time{}, models.PaymentTypeWalletCharge); err != nil {
		return nil, fmt.Errorf("sum wallet charges: %w", err)
	}
	return st, nil
}
