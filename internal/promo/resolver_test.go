package promo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/promo"
	"vpnstore/internal/repository"
	"vpnstore/internal/testutil"
)

func TestApplyDiscount(t *testing.T) {
	testCases := []struct {
		name    string
		base    int64
		percent int
		fixed   int64
		want    int64
	}{
		{name: "no discount", base: 130000, want: 130000},
		{name: "fixed only", base: 130000, fixed: 50000, want: 80000},
		{name: "percent floors", base: 99999, percent: 10, want: 90000},
		{name: "percent then fixed", base: 100000, percent: 10, fixed: 5000, want: 85000},
		{name: "never negative", base: 10000, fixed: 50000, want: 0},
		{name: "full percent", base: 10000, percent: 100, want: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, promo.ApplyDiscount(tc.base, tc.percent, tc.fixed))
		})
	}
}

func TestResolver_ComputeDiscount(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	r := promo.NewResolver(db, zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetClock(testutil.FixedClock(now))

	fifty := testutil.CreatePromo(t, db, "50OFF", 0, 50000, 3)
	testutil.CreatePromo(t, db, "EMPTY", 10, 0, 1)
	require.NoError(t, db.Model(&models.PromoCode{}).Where("code = ?", "EMPTY").Update("uses_left", 0).Error)
	inactive := testutil.CreatePromo(t, db, "OFF", 10, 0, 5)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)
	past := now.Add(-time.Hour)
	expired := testutil.CreatePromo(t, db, "OLD", 10, 0, 5)
	require.NoError(t, db.Model(expired).Update("expires_at", past).Error)

	t.Run("no code is identity", func(t *testing.T) {
		d, err := r.ComputeDiscount(ctx, 130000, "  ")
		require.NoError(t, err)
		assert.Equal(t, int64(130000), d.FinalAmount)
		assert.Nil(t, d.PromoCodeID)
	})

	t.Run("code is normalized", func(t *testing.T) {
		d, err := r.ComputeDiscount(ctx, 130000, " 50off ")
		require.NoError(t, err)
		assert.Equal(t, int64(80000), d.FinalAmount)
		require.NotNil(t, d.PromoCodeID)
		assert.Equal(t, fifty.ID, *d.PromoCodeID)
	})

	for _, code := range []string{"MISSING", "EMPTY", "OFF"} {
		t.Run("invalid "+code, func(t *testing.T) {
			_, err := r.ComputeDiscount(ctx, 1000, code)
			assert.True(t, errors.Is(err, apperror.ErrPromoInvalid), "got %v", err)
		})
	}

	t.Run("expired", func(t *testing.T) {
		_, err := r.ComputeDiscount(ctx, 1000, "old")
		assert.True(t, errors.Is(err, apperror.ErrPromoExpired), "got %v", err)
	})
}

func TestResolver_RedeemOncePerPayment(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	r := promo.NewResolver(db, zap.NewNop())
	user := testutil.CreateUser(t, db, 42, 0)
	p := testutil.CreatePromo(t, db, "50OFF", 0, 50000, 5)

	require.NoError(t, r.Redeem(ctx, p.ID, user.ID, 100))
	require.NoError(t, r.Redeem(ctx, p.ID, user.ID, 100))

	var reloaded models.PromoCode
	require.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 4, reloaded.UsesLeft)

	count, err := repository.NewPromoRepository(db).CountUsages(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestResolver_Release(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	r := promo.NewResolver(db, zap.NewNop())
	user := testutil.CreateUser(t, db, 44, 0)
	p := testutil.CreatePromo(t, db, "BACK", 10, 0, 1)

	require.NoError(t, r.Redeem(ctx, p.ID, user.ID, 7))
	require.NoError(t, r.Release(ctx, p.ID, 7))
	// second release must not give the use back twice
	require.NoError(t, r.Release(ctx, p.ID, 7))

	var reloaded models.PromoCode
	require.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 1, reloaded.UsesLeft)

	count, err := repository.NewPromoRepository(db).CountUsages(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestResolver_ConcurrentRedeemRespectsUses(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	r := promo.NewResolver(db, zap.NewNop())
	user := testutil.CreateUser(t, db, 43, 0)
	p := testutil.CreatePromo(t, db, "LIMITED", 20, 0, 3)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(paymentID uint) {
			defer wg.Done()
			err := r.Redeem(ctx, p.ID, user.ID, paymentID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, apperror.ErrPromoInvalid) {
				rejected++
			}
		}(uint(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, attempts-3, rejected)

	var reloaded models.PromoCode
	require.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Zero(t, reloaded.UsesLeft)
}

func TestResolver_Create(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	r := promo.NewResolver(db, zap.NewNop())

	created, err := r.Create(ctx, promo.CreateInput{Code: " spring ", DiscountPercent: 15, UsesLeft: 10})
	require.NoError(t, err)
	assert.Equal(t, "SPRING", created.Code)
	assert.True(t, created.IsActive)

	_, err = r.Create(ctx, promo.CreateInput{Code: "SPRING", DiscountPercent: 5, UsesLeft: 1})
	assert.True(t, errors.Is(err, apperror.ErrPromoDuplicate), "got %v", err)

	_, err = r.Create(ctx, promo.CreateInput{Code: "NOTHING", UsesLeft: 1})
	assert.Error(t, err)

	require.NoError(t, r.Deactivate(ctx, created.ID))
	_, err = r.ComputeDiscount(ctx, 1000, "spring")
	assert.True(t, errors.Is(err, apperror.ErrPromoInvalid))
}
