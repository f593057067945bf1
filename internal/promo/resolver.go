// Package promo validates promo codes, computes discounts and records redemptions.
package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vpnstore/internal/apperror"
	"vpnstore/internal/models"
	"vpnstore/internal/repository"
)

// Discount is the outcome of ComputeDiscount. PromoCodeID is nil when no code applied.
type Discount struct {
	FinalAmount int64
	PromoCodeID *uint
}

type Resolver struct {
	db     *gorm.DB
	promos *repository.PromoRepository
	log    *zap.Logger
	now    func() time.Time
}

func NewResolver(db *gorm.DB, log *zap.Logger) *Resolver {
	return &Resolver{
		db:     db,
		promos: repository.NewPromoRepository(db),
		log:    log,
		now:    time.Now,
	}
}

// SetClock replaces the time source.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Normalize trims and upper-cases a code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ApplyDiscount subtracts the percent part (floored) then the fixed part, never going below zero.
func ApplyDiscount(base int64, percent int, fixed int64) int64 {
	final := base
	if percent > 0 {
		final -= base * int64(percent) / 100
	}
	if fixed > 0 {
		final -= fixed
	}
	if final < 0 {
		return 0
	}
	return final
}

// ComputeDiscount validates code and returns the discounted amount.
// An empty code returns base unchanged. No use is consumed here.
func (r *Resolver) ComputeDiscount(ctx context.Context, base int64, code string) (Discount, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return Discount{FinalAmount: base}, nil
	}

	promo, err := r.promos.FindByCode(ctx, normalized)
	if repository.IsNotFound(err) {
		return Discount{}, apperror.ErrPromoInvalid
	}
	if err != nil {
		return Discount{}, fmt.Errorf("find promo: %w", err)
	}
	if !promo.IsActive || promo.UsesLeft <= 0 {
		return Discount{}, apperror.ErrPromoInvalid
	}
	if promo.ExpiresAt != nil && promo.ExpiresAt.Before(r.now()) {
		return Discount{}, apperror.ErrPromoExpired
	}

	id := promo.ID
	return Discount{
		FinalAmount: ApplyDiscount(base, promo.DiscountPercent, promo.FixedTomans),
		PromoCodeID: &id,
	}, nil
}

// Redeem consumes one use of the promo for a payment. A payment that already
// redeemed is a no-op. The decrement and the usage row commit together, and the
// decrement only happens while uses_left > 0.
func (r *Resolver) Redeem(ctx context.Context, promoID, userID, paymentID uint) error {
	exists, err := r.promos.UsageExists(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("check promo usage: %w", err)
	}
	if exists {
		return nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promos := r.promos.WithTx(tx)
		ok, err := promos.DecrementUses(ctx, promoID)
		if err != nil {
			return fmt.Errorf("decrement promo: %w", err)
		}
		if !ok {
			return apperror.ErrPromoInvalid.WithMessage("ظرفیت استفاده از کد تخفیف تمام شده است")
		}
		return promos.CreateUsage(ctx, &models.PromoUsage{
			PromoCodeID: promoID,
			UserID:      userID,
			PaymentID:   paymentID,
		})
	})
	if repository.IsDuplicate(err) {
		// Another caller redeemed for this payment first; its decrement stands, ours rolled back.
		return nil
	}
	return err
}

// Release returns the use consumed by a payment whose fulfillment failed.
// It is a no-op when the payment never redeemed.
func (r *Resolver) Release(ctx context.Context, promoID, paymentID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promos := r.promos.WithTx(tx)
		removed, err := promos.DeleteUsage(ctx, paymentID)
		if err != nil || !removed {
			return err
		}
		return promos.IncrementUses(ctx, promoID)
	})
}

// CreateInput describes a new promo code.
type CreateInput struct {
	Code            string
	DiscountPercent int
	FixedTomans     int64
	UsesLeft        int
	ExpiresAt       *time.Time
}

// Create stores a new active promo with a normalized code.
func (r *Resolver) Create(ctx context.Context, in CreateInput) (*models.PromoCode, error) {
	code := Normalize(in.Code)
	if code == "" || in.UsesLeft <= 0 || in.DiscountPercent < 0 || in.DiscountPercent > 100 || in.FixedTomans < 0 {
		return nil, apperror.ErrPromoInvalid.WithMessage("اطلاعات کد تخفیف نامعتبر است")
	}
	if in.DiscountPercent == 0 && in.FixedTomans == 0 {
		return nil, apperror.ErrPromoInvalid.WithMessage("کد تخفیف باید درصد یا مبلغ ثابت داشته باشد")
	}
	promo := &models.PromoCode{
		Code:            code,
		DiscountPercent: in.DiscountPercent,
		FixedTomans:     in.FixedTomans,
		UsesLeft:        in.UsesLeft,
		IsActive:        true,
		ExpiresAt:       in.ExpiresAt,
	}
	if err := r.promos.Create(ctx, promo); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperror.ErrPromoDuplicate
		}
		return nil, err
	}
	r.log.Info("Promo created", zap.String("code", code), zap.Int("uses", in.UsesLeft))
	return promo, nil
}

// List returns promos page by page.
func (r *Resolver) List(ctx context.Context, limit, page int) ([]models.PromoCode, int64, error) {
	return r.promos.FindAll(ctx, limit, page)
}

// Deactivate disables a promo.
func (r *Resolver) Deactivate(ctx context.Context, id uint) error {
	if _, err := r.promos.FindByID(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return apperror.ErrPromoNotFound
		}
		return err
	}
	return r.promos.SetActive(ctx, id, false)
}
