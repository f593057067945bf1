package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vpnstore/internal/models"
	"vpnstore/internal/repository"
	"vpnstore/internal/testutil"
)

func paidPayment(t *testing.T, db *gorm.DB, userID uint, typ models.PaymentType, status models.PaymentStatus, amount int64, completed time.Time) {
	t.Helper()
	p := &models.Payment{
		UserID:       userID,
		Type:         typ,
		Gateway:      models.GatewayHosted,
		Status:       status,
		AmountTomans: amount,
		AmountRials:  amount * 10,
		HashID:       fmt.Sprintf("h-%d-%d-%s", userID, amount, status),
	}
	if status == models.StatusSuccess {
		p.CompletedAt = &completed
	}
	require.NoError(t, db.Create(p).Error)
}

func TestStatsCollect(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	alice := testutil.CreateUser(t, db, 1, 0)
	bob := testutil.CreateUser(t, db, 2, 0)
	require.NoError(t, db.Model(bob).Update("is_banned", true).Error)

	require.NoError(t, db.Create(&models.Service{UserID: alice.ID, Name: "home", RemoteUsername: "u1", IsActive: true, ExpireAt: now}).Error)
	require.NoError(t, db.Create(&models.Service{UserID: alice.ID, Name: "old", RemoteUsername: "u2", ExpireAt: now}).Error)

	paidPayment(t, db, alice.ID, models.PaymentTypePurchase, models.StatusSuccess, 100000, now.AddDate(0, 0, -40))
	paidPayment(t, db, alice.ID, models.PaymentTypeRenewal, models.StatusSuccess, 50000, now.AddDate(0, 0, -2))
	paidPayment(t, db, alice.ID, models.PaymentTypeWalletCharge, models.StatusSuccess, 30000, now.AddDate(0, 0, -1))
	paidPayment(t, db, alice.ID, models.PaymentTypePurchase, models.StatusFailed, 70000, now)
	paidPayment(t, db, bob.ID, models.PaymentTypeWalletCharge, models.StatusWaitingReview, 20000, now)

	st, err := repository.NewStatsRepository(db).Collect(ctx, now.AddDate(0, 0, -30), now)
	require.NoError(t, err)

	assert.Equal(t, int64(2), st.Users)
	assert.Equal(t, int64(1), st.BannedUsers)
	assert.Equal(t, int64(2), st.Services)
	assert.Equal(t, int64(1), st.ActiveServices)
	assert.Equal(t, int64(1), st.PendingReviews)
	assert.Equal(t, int64(150000), st.TotalSales)
	assert.Equal(t, int64(50000), st.RecentSales)
	assert.Equal(t, int64(30000), st.WalletCharges)
	assert.Equal(t, now, st.GeneratedAt)
}

func TestSumSucceededWithoutFilters(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	user := testutil.CreateUser(t, db, 3, 0)
	paidPayment(t, db, user.ID, models.PaymentTypePurchase, models.StatusSuccess, 100000, now)
	paidPayment(t, db, user.ID, models.PaymentTypeWalletCharge, models.StatusSuccess, 30000, now)

	sum, err := repository.NewPaymentRepository(db).SumSucceeded(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(130000), sum)
}
